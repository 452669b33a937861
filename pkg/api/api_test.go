package api

import (
	"bytes"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"parcrypt/pkg/keytable"
	"parcrypt/pkg/log"
	"parcrypt/pkg/parstream"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func testServer(t *testing.T) (*Server, *keytable.Set) {
	t.Helper()
	s := keytable.NewSet()
	for i, p := range keytable.Known() {
		blob := make([]byte, keytable.Size)
		rand.New(rand.NewSource(int64(i + 20))).Read(blob)
		tbl, err := keytable.FromBytes(blob)
		if err != nil {
			t.Fatal(err)
		}
		s.Add(p, tbl)
	}
	return NewServer(s, parstream.Options{ReadBufferSize: 64, WriteBufferSize: 64}), s
}

func do(srv *Server, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Api.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Api.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestEncryptDecrypt(t *testing.T) {
	srv, tables := testServer(t)
	plain := make([]byte, 8*300)
	rand.New(rand.NewSource(1)).Read(plain)

	enc := do(srv, "/encrypt?type=chara2", plain)
	if enc.Code != http.StatusOK {
		t.Fatalf("encrypt: status %d: %s", enc.Code, enc.Body.String())
	}
	if enc.Header().Get("X-Par-Type") != "chara2" {
		t.Errorf("unexpected par type header %q", enc.Header().Get("X-Par-Type"))
	}

	tbl, _ := tables.Get(keytable.Chara2)
	var want bytes.Buffer
	if _, err := parstream.Encrypt(bytes.NewReader(plain), &want, tbl); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc.Body.Bytes(), want.Bytes()) {
		t.Fatal("HTTP output differs from parstream.Encrypt")
	}

	dec := do(srv, "/decrypt?type=chara2.par", enc.Body.Bytes())
	if dec.Code != http.StatusOK {
		t.Fatalf("decrypt: status %d", dec.Code)
	}
	if !bytes.Equal(dec.Body.Bytes(), plain) {
		t.Fatal("round trip over HTTP failed")
	}
}

func TestAutoDetect(t *testing.T) {
	srv, _ := testServer(t)
	body := append([]byte{0xAC, 0xC5, 0x8B, 0x99}, make([]byte, 12)...)
	rec := do(srv, "/decrypt", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Par-Type") != "chara" {
		t.Errorf("Expected chara, got %q", rec.Header().Get("X-Par-Type"))
	}
	if rec.Body.Len() != 16 {
		t.Errorf("Expected 16 bytes, got %d", rec.Body.Len())
	}
}

func TestBadRequests(t *testing.T) {
	srv, _ := testServer(t)
	if rec := do(srv, "/decrypt?type=chara9", []byte{1}); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type: expected 400, got %d", rec.Code)
	}
	if rec := do(srv, "/decrypt", []byte{0, 0, 0, 0}); rec.Code != http.StatusBadRequest {
		t.Errorf("undetectable header: expected 400, got %d", rec.Code)
	}

	empty := NewServer(keytable.NewSet(), parstream.Options{})
	if rec := do(empty, "/encrypt?type=chara", []byte{1}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing table: expected 400, got %d", rec.Code)
	}
}

func TestRequestBuffers(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, BufferSize},
		{8 << 20, BufferSize},
		{4096, 4096},
	}
	for _, tt := range tests {
		srv := NewServer(keytable.NewSet(), parstream.Options{ReadBufferSize: tt.in, WriteBufferSize: tt.in})
		if srv.Options.ReadBufferSize != tt.want || srv.Options.WriteBufferSize != tt.want {
			t.Errorf("NewServer(%d): buffers %d/%d, want %d", tt.in,
				srv.Options.ReadBufferSize, srv.Options.WriteBufferSize, tt.want)
		}
	}
}
