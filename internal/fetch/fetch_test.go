package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skrushinsky/torspider-go/internal/crawlerr"
)

func TestVisit_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	c := New(Config{})
	resp, err := c.Visit(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "<html><body>hi</body></html>" {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestVisit_NonHTMLRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := New(Config{})
	_, err := c.Visit(context.Background(), srv.URL)
	if _, ok := err.(*crawlerr.BadContentTypeError); !ok {
		t.Fatalf("err = %v, want BadContentTypeError", err)
	}
}

func TestVisit_BadLanguageRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Language", "fr")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	c := New(Config{})
	_, err := c.Visit(context.Background(), srv.URL)
	if _, ok := err.(*crawlerr.BadLanguageError); !ok {
		t.Fatalf("err = %v, want BadLanguageError", err)
	}
}

func TestVisit_AllowedLanguagePasses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Language", "ru-RU")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	c := New(Config{})
	_, err := c.Visit(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
}

func TestVisit_ContentTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Length", "2097152") // 2048 KiB
		w.Write(make([]byte, 10))
	}))
	defer srv.Close()

	c := New(Config{MaxContentSizeKB: 1024})
	_, err := c.Visit(context.Background(), srv.URL)
	if _, ok := err.(*crawlerr.ContentTooLargeError); !ok {
		t.Fatalf("err = %v, want ContentTooLargeError", err)
	}
}

func TestVisit_NonHTTPStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{})
	_, err := c.Visit(context.Background(), srv.URL)
	httpErr, ok := err.(*crawlerr.HTTPError)
	if !ok {
		t.Fatalf("err = %v, want HTTPError", err)
	}
	if httpErr.StatusCode != 404 {
		t.Errorf("status = %d, want 404", httpErr.StatusCode)
	}
}
