package legal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// searchTimeout bounds one site's search-page fetch.
	searchTimeout = 10 * time.Second

	// resultsPerSite caps candidates taken from each site's search page.
	resultsPerSite = 2
)

// SearchSite describes one whitelisted site's public search page.
type SearchSite struct {
	Name         string
	Domain       string
	BuildURL     func(query string) string
	ItemSelector string // CSS selector for one result entry; first <a> inside is the link
	BaseURL      string // prefix for relative hrefs
}

// DefaultSearchSites are the built-in scrapers for the standard whitelist.
func DefaultSearchSites() []SearchSite {
	return []SearchSite{
		{
			Name:   "gov.uk",
			Domain: "gov.uk",
			BuildURL: func(q string) string {
				return "https://www.gov.uk/search/all?keywords=" + url.QueryEscape(q)
			},
			ItemSelector: ".gem-c-document-list__item",
			BaseURL:      "https://www.gov.uk",
		},
		{
			Name:   "acas",
			Domain: "acas.org.uk",
			BuildURL: func(q string) string {
				return "https://www.acas.org.uk/search?keys=" + url.QueryEscape(q)
			},
			ItemSelector: ".search-result, .views-row",
			BaseURL:      "https://www.acas.org.uk",
		},
		{
			Name:   "citizensadvice",
			Domain: "citizensadvice.org.uk",
			BuildURL: func(q string) string {
				return "https://www.citizensadvice.org.uk/search/?q=" + url.QueryEscape(q)
			},
			ItemSelector: ".search-results__item, .result-item",
			BaseURL:      "https://www.citizensadvice.org.uk",
		},
	}
}

// Searcher finds candidate legal pages for a question by scraping the
// public search pages of whitelisted sites, then snapshots each candidate
// through the fetcher. Best effort: a failing site is logged and skipped.
type Searcher struct {
	fetcher *Fetcher
	sites   []SearchSite
	client  *http.Client
	logger  *slog.Logger
}

// NewSearcher creates a searcher over the fetcher's whitelist. Sites whose
// domain is not whitelisted are dropped, so the searcher never surfaces a
// source the fetcher would refuse.
func NewSearcher(fetcher *Fetcher, sites []SearchSite, logger *slog.Logger) *Searcher {
	if sites == nil {
		sites = DefaultSearchSites()
	}
	if logger == nil {
		logger = slog.Default()
	}
	wl := NewWhitelist(fetcher.Whitelist())
	active := make([]SearchSite, 0, len(sites))
	for _, s := range sites {
		if wl.Allows(s.Domain) {
			active = append(active, s)
		}
	}
	return &Searcher{
		fetcher: fetcher,
		sites:   active,
		client:  &http.Client{Timeout: searchTimeout},
		logger:  logger,
	}
}

// Search returns up to maxSnapshots snapshots relevant to the query.
func (s *Searcher) Search(ctx context.Context, query string, maxSnapshots int) []*Snapshot {
	if strings.TrimSpace(query) == "" || maxSnapshots <= 0 {
		return nil
	}

	var snapshots []*Snapshot
	seen := make(map[string]bool)

	for _, site := range s.sites {
		if len(snapshots) >= maxSnapshots {
			break
		}

		urls, err := s.searchSite(ctx, site, query)
		if err != nil {
			s.logger.Warn("legal_search_site_failed",
				slog.String("site", site.Name), slog.String("error", err.Error()))
			continue
		}

		for _, candidate := range urls {
			if len(snapshots) >= maxSnapshots {
				break
			}
			if seen[candidate] {
				continue
			}
			seen[candidate] = true

			snap, err := s.fetcher.Fetch(ctx, candidate, false)
			if err != nil {
				s.logger.Warn("legal_search_fetch_failed",
					slog.String("url", candidate), slog.String("error", err.Error()))
				continue
			}
			snapshots = append(snapshots, snap)
		}
	}

	return snapshots
}

// searchSite scrapes one site's search page for result links.
func (s *Searcher) searchSite(ctx context.Context, site SearchSite, query string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site.BuildURL(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.fetcher.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search page returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	var urls []string
	doc.Find(site.ItemSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Find("a").First().Attr("href")
		if !ok || href == "" {
			return true
		}
		if strings.HasPrefix(href, "/") {
			href = site.BaseURL + href
		}
		urls = append(urls, href)
		return len(urls) < resultsPerSite
	})

	return urls, nil
}
