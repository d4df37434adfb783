// Package scrape fetches vendor directory pages with SSRF guards, an
// allowlist, per-host rate limiting, and size/timeout caps.
package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/manuid/internal/config"
	"github.com/sells-group/manuid/internal/resilience"
)

// Result holds a fetched page.
type Result struct {
	RequestedURL string
	FinalURL     string
	StatusCode   int
	HTML         string
	ContentHash  string
	RetrievedAt  time.Time
}

// Fetcher fetches HTML pages within the configured scrape policy.
type Fetcher struct {
	client    *http.Client
	cfg       config.ScrapeConfig
	allowlist []string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// allowPrivate disables forbidden-address checks so package tests
	// can fetch from loopback httptest servers.
	allowPrivate bool
}

// NewFetcher creates a Fetcher from the scrape configuration.
func NewFetcher(cfg config.ScrapeConfig) *Fetcher {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	f := &Fetcher{
		cfg:       cfg,
		allowlist: cfg.AllowedDomains(),
		limiters:  make(map[string]*rate.Limiter),
	}
	f.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
				Control: guardDial,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		// Every redirect hop must satisfy the same policy as the
		// original URL.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return eris.New("scrape: too many redirects")
			}
			return f.validate(req.URL)
		},
	}
	return f
}

// validate enforces scheme, allowlist, and public-address policy on u.
func (f *Fetcher) validate(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return resilience.NewPermanentError(eris.Errorf("scrape: scheme %q not allowed", u.Scheme))
	}
	host := u.Hostname()
	if host == "" {
		return resilience.NewPermanentError(eris.New("scrape: url hostname is missing"))
	}
	if !DomainAllowed(host, f.allowlist) {
		return resilience.NewPermanentError(
			eris.Errorf("scrape: domain %s is not in the allowlist", host))
	}
	if f.allowPrivate {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if isForbiddenIP(ip) {
			return resilience.NewPermanentError(
				eris.Errorf("scrape: address %s is private or local", host))
		}
		return nil
	}
	return checkPublicHostname(host)
}

// limiter returns the per-host rate limiter, creating it on first use.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		r := f.cfg.PerHostRate
		if r <= 0 {
			r = 1
		}
		burst := f.cfg.PerHostBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(r), burst)
		f.limiters[host] = l
	}
	return l
}

// Fetch retrieves the page at rawURL, enforcing the scrape policy on the
// target and every redirect, and retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrapf(err, "scrape: parse url %s", rawURL))
	}
	if err := f.validate(u); err != nil {
		return nil, err
	}

	if err := f.limiter(u.Hostname()).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scrape: rate limit wait")
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = f.cfg.MaxFetchAttempts
	retryCfg.OnRetry = func(attempt int, err error) {
		zap.L().Debug("scrape: retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*Result, error) {
		return f.fetchOnce(ctx, rawURL)
	})
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: fetch %s", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("scrape: source returned HTTP %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, resilience.NewPermanentError(
			eris.Errorf("scrape: source returned HTTP %d", resp.StatusCode))
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "html") && !strings.Contains(contentType, "xml") {
		return nil, resilience.NewPermanentError(
			eris.Errorf("scrape: unsupported content-type %q", contentType))
	}

	maxBytes := f.cfg.MaxHTMLBytes
	if maxBytes <= 0 {
		maxBytes = 1_500_000
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: read body")
	}
	if int64(len(body)) > maxBytes {
		return nil, resilience.NewPermanentError(
			eris.Errorf("scrape: HTML payload exceeds %d bytes", maxBytes))
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	hash := sha256.Sum256(body)
	return &Result{
		RequestedURL: rawURL,
		FinalURL:     finalURL,
		StatusCode:   resp.StatusCode,
		HTML:         string(body),
		ContentHash:  hex.EncodeToString(hash[:]),
		RetrievedAt:  time.Now().UTC(),
	}, nil
}
