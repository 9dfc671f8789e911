package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"my-page/internal/config"
	"my-page/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResponse struct {
	status int
	body   string
}

// stubDoer answers by host+path and records every URL it was asked for.
type stubDoer struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	urls      []string
}

func newStubDoer() *stubDoer {
	return &stubDoer{responses: map[string]stubResponse{
		"api.thecatapi.com/v1/images/search": {200, `[{"id":"x","url":"https://cdn2.thecatapi.com/x.jpg","width":800,"height":600}]`},
		"api.animechan.io/v1/quotes/random":  {200, `{"status":"success","data":{"content":"Believe it","anime":{"id":1,"name":"Naruto"},"character":{"id":2,"name":"Naruto Uzumaki"}}}`},
		"api.nasa.gov/planetary/apod":        {200, `{"title":"Pillars","explanation":"gas","url":"https://apod/p.jpg","date":"2026-10-16"}`},
		"cn.apihz.cn/api/zici/today.php":     {200, `{"code":200,"title":"新中国成立","y":1949,"m":"10","d":1,"words":"开国大典"}`},
		"cn.apihz.cn/api/yiyan/api.php":      {200, `{"code":200,"msg":"千里之行，始于足下"}`},
		"orz.ai/api/v1/dailynews/":           {200, `{"status":"200","data":[{"title":"n1","url":"u1"},{"title":"n2","url":"u2"}]}`},
	}}
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.urls = append(d.urls, req.URL.String())
	r, ok := d.responses[req.URL.Host+req.URL.Path]
	d.mu.Unlock()
	if !ok {
		r = stubResponse{http.StatusNotFound, `{}`}
	}
	return &http.Response{
		StatusCode: r.status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Request:    req,
	}, nil
}

func (d *stubDoer) set(hostPath string, status int, body string) {
	d.mu.Lock()
	d.responses[hostPath] = stubResponse{status, body}
	d.mu.Unlock()
}

func (d *stubDoer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func newFetcher(t *testing.T) (*Fetcher, *AppState, *stubDoer) {
	t.Helper()
	srv := newTestServer(t)
	app, _ := newApp(t, srv)
	doer := newStubDoer()
	return NewFetcher(app, doer, config.APIConfig{CatKey: "cat-key", NasaKey: "DEMO_KEY"}), app, doer
}

func TestFetchDataCacheOnlyMiss(t *testing.T) {
	f, _, doer := newFetcher(t)

	_, err := f.FetchData(context.Background(), model.ContentCat, FetchOptions{CacheOnly: true})
	require.ErrorIs(t, err, ErrNoCacheAvailable)
	assert.Zero(t, doer.calls())
}

func TestFetchDataCacheHit(t *testing.T) {
	f, app, doer := newFetcher(t)
	ctx := context.Background()
	require.NoError(t, app.CacheContent(ctx, "quote", model.Quote{Message: "cached"}))

	for _, opts := range []FetchOptions{{}, {CacheOnly: true}} {
		raw, err := f.FetchData(ctx, model.ContentQuote, opts)
		require.NoError(t, err)
		assert.JSONEq(t, `{"message":"cached"}`, string(raw))
	}
	assert.Zero(t, doer.calls())
}

func TestFetchDataMissFetchesAndCaches(t *testing.T) {
	f, app, doer := newFetcher(t)

	raw, err := f.FetchData(context.Background(), model.ContentCat, FetchOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"image":"https://cdn2.thecatapi.com/x.jpg","width":800,"height":600}`, string(raw))
	require.Equal(t, 1, doer.calls())
	assert.Contains(t, doer.urls[0], "api_key=cat-key")

	e, ok := app.GetCachedContent("cat")
	require.True(t, ok)
	assert.JSONEq(t, string(raw), string(e.Content))
	assert.Equal(t, "api", e.Source)
}

func TestFetchDataForceRefreshOverwrites(t *testing.T) {
	f, app, doer := newFetcher(t)
	ctx := context.Background()
	require.NoError(t, app.CacheContent(ctx, "quote", model.Quote{Message: "old"}))

	raw, err := f.FetchData(ctx, model.ContentQuote, FetchOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"千里之行，始于足下"}`, string(raw))
	assert.Equal(t, 1, doer.calls())

	e, ok := app.GetCachedContent("quote")
	require.True(t, ok)
	assert.JSONEq(t, string(raw), string(e.Content))
}

func TestFetchDataForceRefreshWithCacheOnly(t *testing.T) {
	f, app, doer := newFetcher(t)
	ctx := context.Background()
	require.NoError(t, app.CacheContent(ctx, "quote", model.Quote{Message: "old"}))

	_, err := f.FetchData(ctx, model.ContentQuote, FetchOptions{ForceRefresh: true, CacheOnly: true})
	require.ErrorIs(t, err, ErrNoCacheAvailable)
	assert.Zero(t, doer.calls())
}

func TestFetchDataHTTPError(t *testing.T) {
	f, app, doer := newFetcher(t)
	doer.set("api.nasa.gov/planetary/apod", http.StatusTooManyRequests, `{"error":"rate"}`)

	_, err := f.FetchData(context.Background(), model.ContentNasa, FetchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP error! status: 429")

	_, ok := app.GetCachedContent("nasa")
	assert.False(t, ok)
}

func TestParsersTolerateMissingFields(t *testing.T) {
	cases := []struct {
		name  string
		parse Parser
		body  string
		want  any
	}{
		{"cat empty array", parseCat, `[]`, model.CatImage{}},
		{"cat no size", parseCat, `[{"url":"u"}]`, model.CatImage{Image: "u"}},
		{"anime no data", parseAnime, `{"status":"success"}`, model.AnimeQuote{}},
		{"anime partial", parseAnime, `{"data":{"content":"c"}}`, model.AnimeQuote{Quote: "c"}},
		{"nasa empty", parseNasa, `{}`, model.NasaPhoto{}},
		{"history numbers", parseHistory, `{"title":"t","y":1949,"m":10,"d":"1"}`, model.HistoryToday{Title: "t", Year: "1949", Month: "10", Day: "1"}},
		{"history empty", parseHistory, `{"code":400}`, model.HistoryToday{}},
		{"quote empty", parseQuote, `{"code":200}`, model.Quote{}},
		{"cat error object", parseCat, `{"message":"rate limited"}`, model.CatImage{}},
		{"cat fractional size", parseCat, `[{"url":"u","width":640.5,"height":"480"}]`, model.CatImage{Image: "u", Width: 640, Height: 480}},
		{"cat not an object", parseCat, `["u"]`, model.CatImage{}},
		{"anime data is a string", parseAnime, `{"data":"none today"}`, model.AnimeQuote{}},
		{"nasa error body", parseNasa, `{"error":{"code":"OVER_RATE_LIMIT"}}`, model.NasaPhoto{}},
		{"history numeric title", parseHistory, `{"title":1949,"y":1949,"words":["a"]}`, model.HistoryToday{Title: "1949", Year: "1949"}},
		{"quote msg is null", parseQuote, `{"msg":null}`, model.Quote{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.parse([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := parseQuote([]byte(`<html>`))
	assert.Error(t, err)
}

func TestFetchNews(t *testing.T) {
	f, app, doer := newFetcher(t)
	ctx := context.Background()

	_, err := f.FetchNews(ctx, model.NewsWeibo, FetchOptions{CacheOnly: true})
	require.ErrorIs(t, err, ErrNoCacheAvailable)
	assert.Zero(t, doer.calls())

	items, err := f.FetchNews(ctx, model.NewsWeibo, FetchOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"title":"n1","url":"u1"},{"title":"n2","url":"u2"}]`, string(items))
	require.Equal(t, 1, doer.calls())
	assert.Contains(t, doer.urls[0], "platform=weibo")

	cached, ok := app.CachedNews(model.NewsWeibo)
	require.True(t, ok)
	assert.JSONEq(t, string(items), string(cached))

	again, err := f.FetchNews(ctx, model.NewsWeibo, FetchOptions{CacheOnly: true})
	require.NoError(t, err)
	assert.JSONEq(t, string(items), string(again))
	assert.Equal(t, 1, doer.calls())
}

func TestFetchNewsWithoutData(t *testing.T) {
	f, _, doer := newFetcher(t)
	doer.set("orz.ai/api/v1/dailynews/", 200, `{"status":"500","data":null}`)

	items, err := f.FetchNews(context.Background(), model.NewsDouyin, FetchOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(items))
}

func TestRefreshAll(t *testing.T) {
	f, app, doer := newFetcher(t)
	ctx := context.Background()

	failed, err := f.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, len(model.ValidCacheKeys()), doer.calls())
	assert.ElementsMatch(t, model.ValidCacheKeys(), app.CacheKeys())

	_, err = f.RefreshAll(ctx)
	require.ErrorIs(t, err, ErrRefreshCooldown)
	assert.Equal(t, len(model.ValidCacheKeys()), doer.calls())
}

func TestRefreshAllCollectsFailures(t *testing.T) {
	f, app, doer := newFetcher(t)
	doer.set("api.animechan.io/v1/quotes/random", http.StatusInternalServerError, ``)

	failed, err := f.RefreshAll(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed, "anime")
	assert.NotContains(t, app.CacheKeys(), "anime")
	assert.Contains(t, app.CacheKeys(), "news_bilibili")
	assert.WithinDuration(t, fixedNow, app.LastRefreshTime(), time.Millisecond)
}

func TestEndpoints(t *testing.T) {
	eps := Endpoints(config.APIConfig{NasaKey: "DEMO_KEY", ApihzID: "10001", ApihzKey: "k"})
	require.Len(t, eps, len(model.AllContentKinds()))
	assert.Equal(t, "https://api.thecatapi.com/v1/images/search?limit=1", eps[model.ContentCat].URL)
	assert.Equal(t, "https://api.nasa.gov/planetary/apod?api_key=DEMO_KEY", eps[model.ContentNasa].URL)
	assert.Equal(t, "https://cn.apihz.cn/api/yiyan/api.php?id=10001&key=k", eps[model.ContentQuote].URL)

	// the payload type survives a JSON round trip through the cache
	raw, err := json.Marshal(model.HistoryToday{Year: "1949"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"year":"1949"`)
}
