package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/yungbote/sitechat-backend/internal/observability"
	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/httpx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrUnsupportedContent = errors.New("unsupported content type")
	ErrBodyTooLarge       = errors.New("response body too large")
)

type Heading struct {
	Level int
	Text  string
}

// Section is the text between two h1-h3 headings.
type Section struct {
	Heading string
	Level   int
	Text    string
}

type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Title       string
	Description string
	Headings    []Heading
	Sections    []Section
	Links       []string
	Text        string
	WordCount   int
	Raw         []byte
	FetchedAt   time.Time
}

type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxRetries   int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	// PerHostRPS throttles requests to a single host. Zero disables it.
	PerHostRPS float64
	// AllowPrivateNetworks lets the scraper reach loopback and private
	// addresses. Off in production.
	AllowPrivateNetworks bool
	HTTPClient           *http.Client
}

func OptionsFromEnv() Options {
	return Options{
		UserAgent:    envutil.String("SCRAPER_USER_AGENT", "SitechatBot/1.0 (+https://sitechat.app/bot)"),
		Timeout:      envutil.Duration("SCRAPER_TIMEOUT_SECONDS", 20*time.Second),
		MaxBodyBytes: int64(envutil.Int("SCRAPER_MAX_BODY_BYTES", 5<<20)),
		MaxRetries:   envutil.Int("SCRAPER_MAX_RETRIES", 3),
		BaseBackoff:  500 * time.Millisecond,
		MaxBackoff:   8 * time.Second,
		PerHostRPS:   envutil.Float("SCRAPER_PER_HOST_RPS", 2),

		AllowPrivateNetworks: envutil.Bool("SCRAPER_ALLOW_PRIVATE_NETWORKS", false),
	}
}

type Scraper struct {
	log  *logger.Logger
	opts Options
	http *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(log *logger.Logger, opts Options) *Scraper {
	if opts.UserAgent == "" {
		opts.UserAgent = "SitechatBot/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 8 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(opts.Timeout, opts.AllowPrivateNetworks)
	}
	return &Scraper{
		log:      log.With("component", "Scraper"),
		opts:     opts,
		http:     hc,
		limiters: map[string]*rate.Limiter{},
	}
}

// ValidateURL returns the normalized absolute http(s) form of raw.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q must be absolute http(s)", ErrInvalidURL, raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func (s *Scraper) limiter(host string) *rate.Limiter {
	if s.opts.PerHostRPS <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.opts.PerHostRPS), 1)
		s.limiters[host] = l
	}
	return l
}

// Scrape fetches and extracts one page, retrying transient failures.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Page, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	target := u.String()

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if l := s.limiter(u.Host); l != nil {
			if err := l.Wait(ctx); err != nil {
				return nil, err
			}
		}
		page, resp, err := s.fetch(ctx, target)
		if err == nil {
			observability.Current().IncScrapedPage("ok")
			return page, nil
		}
		lastErr = err
		if errors.Is(err, ErrBlockedAddress) {
			s.log.Warn("scrape blocked", "url", target, "error", err)
			break
		}
		if !httpx.IsRetryableError(err) || attempt == s.opts.MaxRetries {
			break
		}
		wait := httpx.JitterSleep(httpx.Backoff(attempt, s.opts.BaseBackoff, s.opts.MaxBackoff))
		wait = httpx.RetryAfterDuration(resp, wait, s.opts.MaxBackoff)
		s.log.Debug("scrape retrying", "url", target, "attempt", attempt+1, "sleep", wait.String(), "error", err)
		if err := httpx.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	observability.Current().IncScrapedPage("error")
	return nil, lastErr
}

func (s *Scraper) fetch(ctx context.Context, target string) (*Page, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp, &httpx.StatusError{Service: "scrape", StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, resp, err
	}
	if int64(len(raw)) > s.opts.MaxBodyBytes {
		return nil, resp, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, s.opts.MaxBodyBytes)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(raw)
	}
	mediaType, _, _ := mime.ParseMediaType(ct)

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	base, _ := url.Parse(final)

	page := &Page{
		URL:         target,
		FinalURL:    final,
		StatusCode:  resp.StatusCode,
		ContentType: mediaType,
		Raw:         raw,
		FetchedAt:   time.Now().UTC(),
	}

	switch mediaType {
	case "text/html", "application/xhtml+xml":
		body, err := charset.NewReader(bytes.NewReader(raw), ct)
		if err != nil {
			body = bytes.NewReader(raw)
		}
		if err := extractHTML(body, base, page); err != nil {
			return nil, resp, fmt.Errorf("parse html: %w", err)
		}
	case "text/plain":
		text := normalizeText(string(raw))
		page.Text = text
		page.Sections = []Section{{Text: text}}
	default:
		return nil, resp, fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}
	page.WordCount = len(strings.Fields(page.Text))
	return page, resp, nil
}
