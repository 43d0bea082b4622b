package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScrape_OpenGraphPreferred(t *testing.T) {
	srv := serve(t, `<html><head>
		<meta property="og:site_name" content="Casa do João">
		<meta property="og:image" content="https://cdn.example.com/joao.png">
		<title>fallback title</title>
	</head><body><h1 class="site-name">wrong</h1></body></html>`)

	got, err := New().Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if got.Name != "Casa do João" {
		t.Errorf("name = %q", got.Name)
	}
	if got.ImageURL != "https://cdn.example.com/joao.png" {
		t.Errorf("image = %q", got.ImageURL)
	}
	if got.RecentPosts == nil || len(got.RecentPosts) != 0 {
		t.Errorf("recent posts must be an empty list, got %v", got.RecentPosts)
	}
}

func TestScrape_ClassHeuristicFallback(t *testing.T) {
	srv := serve(t, `<html><head><title>Tab Title</title></head><body>
		<h1 class="profile-name">Maria Souza</h1>
		<img class="user-avatar" src="/static/maria.jpg">
	</body></html>`)

	got, err := New().Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if got.Name != "Maria Souza" {
		t.Errorf("name = %q", got.Name)
	}
	if got.ImageURL != srv.URL+"/static/maria.jpg" {
		t.Errorf("image = %q (relative src not resolved)", got.ImageURL)
	}
}

func TestScrape_GenericFallbacks(t *testing.T) {
	srv := serve(t, `<html><head>
		<title>Plain Site</title>
		<link rel="shortcut icon" href="/favicon.ico">
	</head><body><p>nothing else</p></body></html>`)

	got, err := New().Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if got.Name != "Plain Site" {
		t.Errorf("name = %q", got.Name)
	}
	if got.ImageURL != srv.URL+"/favicon.ico" {
		t.Errorf("image = %q", got.ImageURL)
	}
}

func TestScrape_NothingExtracted(t *testing.T) {
	srv := serve(t, `<html><head></head><body><p>bare page</p></body></html>`)

	_, err := New().Scrape(context.Background(), srv.URL)
	if !errors.Is(err, ErrNothingExtracted) {
		t.Fatalf("expected ErrNothingExtracted, got %v", err)
	}
}

func TestScrape_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "not a url", "/relative"} {
		if _, err := New().Scrape(context.Background(), raw); err == nil {
			t.Errorf("url %q: expected error", raw)
		}
	}
}

func TestScrape_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	if _, err := New().Scrape(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
