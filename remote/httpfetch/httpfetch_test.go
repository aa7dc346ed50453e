package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book-1/images/cover.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Fetch(context.Background(), "book-1", "images/cover.jpg")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Data) != "jpegbytes" || res.MimeType != "image/jpeg" {
		t.Fatalf("resource = %q %q", res.Data, res.MimeType)
	}
}

func TestFetchEscapesSegmentsButKeepsSlashes(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL + "/"})
	if _, err := c.Fetch(context.Background(), "book 1", "ch 2/a b.txt"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/book%201/ch%202/a%20b.txt" {
		t.Fatalf("request path = %q", gotPath)
	}
}

func TestFetchNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	if _, err := c.Fetch(context.Background(), "b1", "r"); err == nil {
		t.Fatal("expected an error for a 404")
	}
}

func TestFetchHonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c, _ := New(Config{BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Fetch(ctx, "b1", "r"); err == nil {
		t.Fatal("expected a cancellation error")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err != ErrEmptyBaseURL {
		t.Fatalf("err = %v, want ErrEmptyBaseURL", err)
	}
}
