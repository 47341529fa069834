package legal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

const (
	// DefaultUserAgent identifies the fetcher to legal sites.
	DefaultUserAgent = "CaseGroundsBot/1.0 (legal research)"

	// DefaultFetchTimeout bounds one page fetch.
	DefaultFetchTimeout = 15 * time.Second

	// maxBodyBytes caps a fetched page.
	maxBodyBytes = 10 << 20
)

// FetcherConfig configures the legal fetcher.
type FetcherConfig struct {
	Whitelist []string
	Timeout   time.Duration
	UserAgent string
}

// Fetcher retrieves whitelisted pages and snapshots them. The whitelist is
// checked before any network or cache access.
type Fetcher struct {
	whitelist Whitelist
	cache     *Cache
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewFetcher creates a fetcher over the given snapshot cache.
func NewFetcher(cache *Cache, cfg FetcherConfig, logger *slog.Logger) (*Fetcher, error) {
	wl := NewWhitelist(cfg.Whitelist)
	if len(wl) == 0 {
		return nil, cgerrors.ConfigError("legal whitelist must not be empty", nil)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		whitelist: wl,
		cache:     cache,
		client:    &http.Client{Timeout: timeout},
		userAgent: ua,
		logger:    logger,
	}, nil
}

// Whitelist returns the active whitelist entries.
func (f *Fetcher) Whitelist() []string {
	return append([]string(nil), f.whitelist...)
}

// Cache returns the underlying snapshot cache.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Fetch returns the snapshot for a URL. The host must be whitelisted; a
// cached snapshot is returned unless forceRefresh is set; otherwise the page
// is fetched, extracted, and persisted. Network and HTTP failures return a
// retryable fetch error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, forceRefresh bool) (*Snapshot, error) {
	domain, err := f.whitelist.CheckURL(rawURL)
	if err != nil {
		return nil, err
	}

	if !forceRefresh {
		if snap, ok, err := f.cache.Get(domain, rawURL); err != nil {
			return nil, err
		} else if ok {
			f.logger.Debug("snapshot_cache_hit",
				slog.String("url", rawURL), slog.String("id", snap.ID))
			return snap, nil
		}
	}

	rawHTML, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	title, text := ExtractText(rawHTML)
	snap := &Snapshot{
		ID:          SnapshotID(rawURL),
		URL:         rawURL,
		Domain:      domain,
		Title:       title,
		ContentHash: contentHash(text),
		FetchedAt:   time.Now().UTC(),
		Text:        text,
	}

	if err := f.cache.Put(snap, rawHTML); err != nil {
		return nil, err
	}
	return snap, nil
}

// get performs the HTTP GET and returns the body.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, cgerrors.FetchError(rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, cgerrors.FetchError(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, cgerrors.FetchError(rawURL,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, cgerrors.FetchError(rawURL, err)
	}
	return body, nil
}
