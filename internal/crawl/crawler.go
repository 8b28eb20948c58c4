// Package crawl pulls a marketing site's pages into the knowledge base so a
// fresh install can answer questions about the business it fronts.
package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxPages    = 10
	defaultConcurrency = 4
	fetchTimeout       = 15 * time.Second
	maxPageBytes       = 2 << 20
)

// Ingester is the slice of the knowledge store the crawler needs.
type Ingester interface {
	IngestText(filename, source, text string) (int64, error)
}

type Crawler struct {
	ingester   Ingester
	log        *slog.Logger
	httpClient *http.Client

	maxPages    int
	concurrency int
}

func New(ingester Ingester, logger *slog.Logger) *Crawler {
	return &Crawler{
		ingester:    ingester,
		log:         logger,
		httpClient:  &http.Client{Timeout: fetchTimeout},
		maxPages:    defaultMaxPages,
		concurrency: defaultConcurrency,
	}
}

// Site fetches the root page plus same-host pages it links to and ingests
// each as a knowledge document. Returns how many pages were ingested; a page
// that fails to fetch or parse is skipped, not fatal.
func (c *Crawler) Site(ctx context.Context, siteURL string) (int, error) {
	root, err := url.Parse(siteURL)
	if err != nil || root.Host == "" {
		return 0, fmt.Errorf("invalid site url %q", siteURL)
	}

	body, err := c.fetch(ctx, root.String())
	if err != nil {
		return 0, fmt.Errorf("fetching root page: %w", err)
	}

	pages := []string{root.String()}
	for _, link := range sameHostLinks(body, root) {
		if len(pages) >= c.maxPages {
			break
		}
		pages = append(pages, link)
	}

	var (
		mu       sync.Mutex
		ingested int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, page := range pages {
		g.Go(func() error {
			if err := c.ingestPage(gctx, page); err != nil {
				c.log.Warn("skipping page", "url", page, "error", err)
				return nil
			}
			mu.Lock()
			ingested++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ingested, err
	}

	c.log.Info("site crawl finished", "url", siteURL, "pages", ingested)
	return ingested, nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}

func (c *Crawler) ingestPage(ctx context.Context, pageURL string) error {
	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		return err
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	article, err := readability.FromReader(strings.NewReader(body), parsed)
	if err != nil {
		return fmt.Errorf("extracting readable text: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return fmt.Errorf("no readable text")
	}
	if article.Title != "" {
		text = article.Title + "\n\n" + text
	}

	if _, err := c.ingester.IngestText(pageURL, "crawl", text); err != nil {
		return fmt.Errorf("ingesting: %w", err)
	}
	return nil
}

// sameHostLinks extracts deduplicated same-host links from an HTML page,
// dropping anchors, assets, and query-only variants.
func sameHostLinks(body string, root *url.URL) []string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	seen := map[string]struct{}{root.String(): {}}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				u, err := root.Parse(attr.Val)
				if err != nil || u.Host != root.Host {
					continue
				}
				u.Fragment = ""
				u.RawQuery = ""
				link := u.String()
				if _, dup := seen[link]; dup {
					continue
				}
				seen[link] = struct{}{}
				links = append(links, link)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return links
}
