package crawl

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// mockIngester records ingested pages.
type mockIngester struct {
	mu    sync.Mutex
	pages map[string]string
}

func (m *mockIngester) IngestText(filename, source, text string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pages == nil {
		m.pages = make(map[string]string)
	}
	m.pages[filename] = text
	return 1, nil
}

func TestSiteCrawlsSameHostPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body>
			<article><p>We are an AI consulting studio helping teams ship automation that works.</p></article>
			<a href="/services">Services</a>
			<a href="/pricing#plans">Pricing</a>
			<a href="/pricing?utm=x">Pricing again</a>
			<a href="https://elsewhere.example.com/external">External</a>
			<a href="mailto:hi@example.com">Mail</a>
		</body></html>`)
	})
	mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><article><p>Our services include strategy assessments, custom automation builds, and hands-on team training engagements.</p></article></body></html>`)
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><article><p>Plans start at $99 per month with a free initial consultation for every new customer.</p></article></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ing := &mockIngester{}
	c := New(ing, slog.New(slog.NewTextHandler(io.Discard, nil)))

	count, err := c.Site(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("crawling: %v", err)
	}
	if count != 3 {
		t.Errorf("ingested = %d, want root + services + pricing", count)
	}

	found := false
	for page, text := range ing.pages {
		if strings.HasSuffix(page, "/pricing") {
			found = true
			if !strings.Contains(text, "$99") {
				t.Errorf("pricing page text = %q", text)
			}
		}
		if strings.Contains(page, "elsewhere.example.com") {
			t.Errorf("external page crawled: %s", page)
		}
	}
	if !found {
		t.Error("pricing page not ingested")
	}
}

func TestSiteRespectsPageLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		b.WriteString(`<html><body><article><p>Index page with plenty of links to follow below this paragraph.</p></article>`)
		for i := 0; i < 20; i++ {
			b.WriteString(`<a href="/page-` + string(rune('a'+i)) + `">link</a>`)
		}
		b.WriteString(`</body></html>`)
		io.WriteString(w, b.String())
	})
	mux.HandleFunc("/page-", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ing := &mockIngester{}
	c := New(ing, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.maxPages = 3

	if _, err := c.Site(context.Background(), srv.URL); err != nil {
		t.Fatalf("crawling: %v", err)
	}
	if len(ing.pages) > 3 {
		t.Errorf("ingested %d pages, want at most 3", len(ing.pages))
	}
}

func TestSiteInvalidURL(t *testing.T) {
	c := New(&mockIngester{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := c.Site(context.Background(), "not a url"); err == nil {
		t.Fatal("crawl accepted an invalid url")
	}
}
