package source

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"

	"github.com/mustafarshd/corec-tracker/config"
	"github.com/mustafarshd/corec-tracker/internal/model"
	"github.com/mustafarshd/corec-tracker/internal/parse"
	"github.com/mustafarshd/corec-tracker/internal/store"
)

const pageCacheKey = "facility-usage-page"

// RecWell scrapes the RecWell facility-usage widget. The whole page carries
// every facility, so the parsed page is cached briefly and one collection
// pass costs a single upstream request.
type RecWell struct {
	cfg      *config.SourceConfig
	registry *store.Registry
	client   *http.Client
	clock    clockwork.Clock

	// fetchMu serializes the fetch-and-fill on a cold cache so concurrent
	// facility fetches within one pass share a single upstream request.
	fetchMu sync.Mutex
	pages   *cache.Cache
}

// NewRecWell creates a source for the configured facility-usage page.
func NewRecWell(cfg *config.SourceConfig, registry *store.Registry, clock clockwork.Clock) *RecWell {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Source will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	ttl := time.Duration(cfg.PageCacheTTLSeconds) * time.Second

	return &RecWell{
		cfg:      cfg,
		registry: registry,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		clock: clock,
		pages: cache.New(ttl, 2*ttl),
	}
}

// Fetch returns the current observation for one facility.
func (r *RecWell) Fetch(ctx context.Context, facilityID string) (model.Observation, error) {
	facility, ok := r.registry.Lookup(facilityID)
	if !ok {
		return model.Observation{}, Permanent(facilityID, fmt.Errorf("facility not in registry"))
	}

	page, err := r.page(ctx, facilityID)
	if err != nil {
		return model.Observation{}, err
	}

	text, ok := page[normalizeName(facility.DisplayName)]
	if !ok {
		return model.Observation{}, Permanent(facilityID, fmt.Errorf("facility %q not present on page", facility.DisplayName))
	}

	parsed, err := parse.ParseCount(text)
	if err != nil {
		return model.Observation{}, Permanent(facilityID, err)
	}

	obs := model.Observation{
		FacilityID:       facilityID,
		CollectedAt:      r.clock.Now().UTC(),
		OccupancyCount:   parsed.Count,
		OccupancyPercent: parsed.Percent,
		Status:           model.StatusUnknown,
	}
	switch {
	case parsed.Closed:
		obs.Status = model.StatusClosed
	case parsed.Count != nil || parsed.Percent != nil:
		obs.Status = model.StatusOpen
	}
	obs.DerivePercent(facility.Capacity)

	return obs, nil
}

// page returns the parsed facility blocks, fetching the upstream page only
// when the cached copy has expired.
func (r *RecWell) page(ctx context.Context, facilityID string) (map[string]string, error) {
	if cached, found := r.pages.Get(pageCacheKey); found {
		return cached.(map[string]string), nil
	}

	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()
	// Another fetch may have filled the cache while this one waited.
	if cached, found := r.pages.Get(pageCacheKey); found {
		return cached.(map[string]string), nil
	}

	page, err := r.fetchPage(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	r.pages.SetDefault(pageCacheKey, page)
	return page, nil
}

func (r *RecWell) fetchPage(ctx context.Context, facilityID string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL, nil)
	if err != nil {
		return nil, Permanent(facilityID, fmt.Errorf("failed to create request: %w", err))
	}
	for key, value := range r.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, Transient(facilityID, fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, Transient(facilityID, err)
		}
		return nil, Permanent(facilityID, err)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, Permanent(facilityID, fmt.Errorf("failed to parse page: %w", err))
	}

	page := make(map[string]string)
	doc.Find(".rw-c2c-feed__location").Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Find(".rw-c2c-feed__location--name").Text())
		if name == "" {
			return
		}
		page[normalizeName(name)] = strings.TrimSpace(sel.Text())
	})

	if len(page) == 0 {
		return nil, Permanent(facilityID, fmt.Errorf("page has no facility blocks; structure may have changed"))
	}
	return page, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
