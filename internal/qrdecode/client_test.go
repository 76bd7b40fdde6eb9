package qrdecode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("request is not multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part missing: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"type":"qrcode","symbol":[{"seq":0,"data":"STU001|Jane|jane@x.com","error":null}]}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	got, err := c.Decode(context.Background(), "badge.png", []byte("fake-image-bytes"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "STU001|Jane|jane@x.com" {
		t.Errorf("decoded text = %q", got)
	}
}

func TestDecodeNoSymbol(t *testing.T) {
	cases := []string{
		`[]`,
		`[{"symbol":[]}]`,
		`[{"symbol":[{"seq":0,"data":"","error":"could not find code"}]}]`,
	}
	for _, body := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		}))
		c := New(srv.URL, false)
		_, err := c.Decode(context.Background(), "badge.png", []byte("x"))
		if !errors.Is(err, ErrNoCode) {
			t.Errorf("body %s: err = %v, want ErrNoCode", body, err)
		}
		srv.Close()
	}
}

func TestDecodeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	if _, err := c.Decode(context.Background(), "badge.png", []byte("x")); err == nil {
		t.Error("5xx from decode service must surface an error")
	}
}

func TestDecodeSkip(t *testing.T) {
	c := New("http://unreachable.invalid", true)
	got, err := c.Decode(context.Background(), "badge.png", nil)
	if err != nil {
		t.Fatalf("skip mode failed: %v", err)
	}
	if got == "" {
		t.Error("skip mode must return a canned payload")
	}
}

func TestDecodeEmptyImage(t *testing.T) {
	c := New("http://unreachable.invalid", false)
	if _, err := c.Decode(context.Background(), "badge.png", nil); err == nil {
		t.Error("empty image must be rejected before any request")
	}
}
