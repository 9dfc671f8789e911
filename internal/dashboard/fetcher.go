package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"my-page/internal/client"
	"my-page/internal/config"
	"my-page/internal/logger"
	"my-page/internal/model"

	"golang.org/x/sync/errgroup"
)

const newsURL = "https://orz.ai/api/v1/dailynews/"

// Parser maps an upstream response body to the widget payload.
type Parser func(body []byte) (any, error)

type Endpoint struct {
	URL   string
	Parse Parser
}

// FetchOptions selects a row of the cache policy:
//   - neither flag: cached entry if present, otherwise network
//   - ForceRefresh: skip the cache read and go to the network
//   - CacheOnly: never touch the network; ErrNoCacheAvailable on a miss
type FetchOptions struct {
	ForceRefresh bool
	CacheOnly    bool
}

// Fetcher pulls widget content and news from the third-party APIs and
// overwrites the matching AppState cache entry on every network fetch.
type Fetcher struct {
	app       *AppState
	client    client.Doer
	endpoints map[model.ContentKind]Endpoint
	newsURL   string
}

func NewFetcher(app *AppState, doer client.Doer, keys config.APIConfig) *Fetcher {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Fetcher{app: app, client: doer, endpoints: Endpoints(keys), newsURL: newsURL}
}

// Endpoints builds the fixed endpoint table for the configured credentials.
func Endpoints(keys config.APIConfig) map[model.ContentKind]Endpoint {
	cat := url.Values{"limit": {"1"}}
	if keys.CatKey != "" {
		cat.Set("api_key", keys.CatKey)
	}
	apihz := url.Values{}
	if keys.ApihzID != "" {
		apihz.Set("id", keys.ApihzID)
	}
	if keys.ApihzKey != "" {
		apihz.Set("key", keys.ApihzKey)
	}
	nasa := url.Values{"api_key": {keys.NasaKey}}

	return map[model.ContentKind]Endpoint{
		model.ContentCat:     {URL: "https://api.thecatapi.com/v1/images/search?" + cat.Encode(), Parse: parseCat},
		model.ContentAnime:   {URL: "https://api.animechan.io/v1/quotes/random", Parse: parseAnime},
		model.ContentNasa:    {URL: "https://api.nasa.gov/planetary/apod?" + nasa.Encode(), Parse: parseNasa},
		model.ContentHistory: {URL: withQuery("https://cn.apihz.cn/api/zici/today.php", apihz), Parse: parseHistory},
		model.ContentQuote:   {URL: withQuery("https://cn.apihz.cn/api/yiyan/api.php", apihz), Parse: parseQuote},
	}
}

func withQuery(base string, q url.Values) string {
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

// FetchData returns the payload for kind as JSON, following opts.
func (f *Fetcher) FetchData(ctx context.Context, kind model.ContentKind, opts FetchOptions) (json.RawMessage, error) {
	key := kind.CacheKey()
	if !opts.ForceRefresh {
		if e, ok := f.app.GetCachedContent(key); ok {
			logger.Debug("fetch.cache_hit", "key", key)
			return e.Content, nil
		}
	}
	if opts.CacheOnly {
		return nil, fmt.Errorf("%s: %w", key, ErrNoCacheAvailable)
	}

	ep, ok := f.endpoints[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownContent, kind)
	}
	body, err := f.get(ctx, ep.URL)
	if err != nil {
		logger.Error("fetch failed", "key", key, "err", err)
		return nil, err
	}
	payload, err := ep.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	if err := f.app.CacheContent(ctx, key, payload); err != nil {
		// the widget still renders; the cache just stays stale on the server
		logger.Warn("fetch.cache_failed", "key", key, "err", err)
	}
	return json.Marshal(payload)
}

// FetchNews returns the news array for p. It follows the same policy as
// FetchData, but the cache holds the bare array with no envelope.
func (f *Fetcher) FetchNews(ctx context.Context, p model.NewsPlatform, opts FetchOptions) (json.RawMessage, error) {
	if !opts.ForceRefresh {
		if items, ok := f.app.CachedNews(p); ok {
			return items, nil
		}
	}
	if opts.CacheOnly {
		return nil, fmt.Errorf("%s: %w", p.CacheKey(), ErrNoCacheAvailable)
	}

	body, err := f.get(ctx, f.newsURL+"?"+url.Values{"platform": {p.String()}}.Encode())
	if err != nil {
		logger.Error("fetch news failed", "platform", p.String(), "err", err)
		return nil, err
	}
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse news %s: %w", p, err)
	}
	items := resp.Data
	if len(items) == 0 || string(items) == "null" {
		items = json.RawMessage(`[]`)
	}
	if err := f.app.CacheNews(ctx, p, items); err != nil {
		logger.Warn("fetch.cache_failed", "key", p.CacheKey(), "err", err)
	}
	return items, nil
}

// RefreshAll force-refreshes every widget and platform. It is refused inside
// the cooldown window; otherwise per-key failures are collected and the
// remaining keys still refresh.
func (f *Fetcher) RefreshAll(ctx context.Context) (map[string]error, error) {
	if err := f.app.StartRefresh(ctx); err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		failed = map[string]error{}
	)
	record := func(key string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		failed[key] = err
		mu.Unlock()
		logger.Warn("refresh.failed", "key", key, "err", err)
	}

	var g errgroup.Group
	g.SetLimit(4)
	for _, kind := range model.AllContentKinds() {
		kind := kind
		g.Go(func() error {
			_, err := f.FetchData(ctx, kind, FetchOptions{ForceRefresh: true})
			record(kind.CacheKey(), err)
			return nil
		})
	}
	for _, p := range model.AllNewsPlatforms() {
		p := p
		g.Go(func() error {
			_, err := f.FetchNews(ctx, p, FetchOptions{ForceRefresh: true})
			record(p.CacheKey(), err)
			return nil
		})
	}
	_ = g.Wait()
	logger.Info("refresh.done", "failed", len(failed))
	return failed, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Host, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP error! status: %d", req.URL.Host, resp.StatusCode)
	}
	return data, nil
}
