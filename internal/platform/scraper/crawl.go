package scraper

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
)

type CrawlOptions struct {
	MaxPages int
	// MaxDepth 0 means the default; negative crawls the seeds only.
	MaxDepth    int
	Concurrency int
}

func (o CrawlOptions) withDefaults() CrawlOptions {
	if o.MaxPages <= 0 {
		o.MaxPages = 25
	}
	if o.MaxDepth < 0 {
		o.MaxDepth = 0
	} else if o.MaxDepth == 0 {
		o.MaxDepth = 2
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// CrawlResult is one visited URL. Exactly one of Page and Err is set.
type CrawlResult struct {
	URL   string
	Depth int
	Page  *Page
	Err   error
}

type frontierItem struct {
	url  string
	host string
}

// Crawl walks links breadth-first from seeds, staying on the host each seed
// lands on after redirects.
// Per-URL failures are recorded in the results and never abort the crawl.
// Results come back in discovery order.
func (s *Scraper) Crawl(ctx context.Context, seeds []string, opts CrawlOptions) ([]CrawlResult, error) {
	opts = opts.withDefaults()

	seen := map[string]bool{}
	var level []frontierItem
	var results []CrawlResult
	for _, raw := range seeds {
		u, err := ValidateURL(raw)
		if err != nil {
			results = append(results, CrawlResult{URL: strings.TrimSpace(raw), Err: err})
			continue
		}
		key := u.String()
		if seen[key] || len(level) >= opts.MaxPages {
			continue
		}
		seen[key] = true
		level = append(level, frontierItem{url: key, host: u.Hostname()})
	}

	visited := 0
	for depth := 0; len(level) > 0 && depth <= opts.MaxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if remaining := opts.MaxPages - visited; len(level) > remaining {
			level = level[:remaining]
		}
		batch := make([]CrawlResult, len(level))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for i, item := range level {
			i, item := i, item
			g.Go(func() error {
				page, err := s.Scrape(gctx, item.url)
				batch[i] = CrawlResult{URL: item.url, Depth: depth, Page: page, Err: err}
				return nil
			})
		}
		_ = g.Wait()
		visited += len(level)
		results = append(results, batch...)

		if depth == opts.MaxDepth || visited >= opts.MaxPages {
			break
		}
		var next []frontierItem
		for i, r := range batch {
			if r.Page == nil {
				continue
			}
			host := landedHost(r.Page, level[i].host)
			for _, link := range r.Page.Links {
				if seen[link] {
					continue
				}
				u, err := ValidateURL(link)
				if err != nil || !strings.EqualFold(u.Hostname(), host) {
					continue
				}
				seen[link] = true
				next = append(next, frontierItem{url: link, host: host})
			}
		}
		level = next
	}
	s.log.Debug("crawl finished", "seeds", len(seeds), "visited", visited)
	return results, ctx.Err()
}

// landedHost is the host a page was served from after redirects, so a seed
// that redirects to www. keeps its links.
func landedHost(p *Page, fallback string) string {
	if u, err := url.Parse(p.FinalURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return fallback
}

// ScrapeMany fetches urls independently and returns one result per input,
// in input order.
func (s *Scraper) ScrapeMany(ctx context.Context, urls []string, concurrency int) []CrawlResult {
	if concurrency <= 0 {
		concurrency = 4
	}
	out := make([]CrawlResult, len(urls))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			page, err := s.Scrape(ctx, u)
			out[i] = CrawlResult{URL: u, Page: page, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
