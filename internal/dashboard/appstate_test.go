package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"my-page/internal/client"
	"my-page/internal/config"
	"my-page/internal/handler"
	"my-page/internal/logger"
	"my-page/internal/model"
	"my-page/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

// postCounter counts document writes sent to the store server.
type postCounter struct {
	next  client.Doer
	posts atomic.Int32
}

func (d *postCounter) Do(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost {
		d.posts.Add(1)
	}
	return d.next.Do(req)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Silence()

	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	backend, err := service.NewFileBackend(cfg.Storage.DataDir)
	require.NoError(t, err)
	srv := httptest.NewServer(handler.NewRouter(cfg, service.NewStore(backend, cfg.BackupDir())))
	t.Cleanup(srv.Close)
	return srv
}

func newApp(t *testing.T, srv *httptest.Server) (*AppState, *postCounter) {
	t.Helper()
	doer := &postCounter{next: srv.Client()}
	app := NewAppState(client.New(srv.URL+"/api", doer))
	app.now = func() time.Time { return fixedNow }
	require.NoError(t, app.Init(context.Background()))
	return app, doer
}

// seed writes doc straight to the server with a separate client.
func seed(t *testing.T, srv *httptest.Server, dt model.DocType, doc string) {
	t.Helper()
	_, err := client.New(srv.URL+"/api", srv.Client()).SaveData(context.Background(), dt, json.RawMessage(doc))
	require.NoError(t, err)
}

func serverDoc(t *testing.T, srv *httptest.Server, dt model.DocType) string {
	t.Helper()
	return string(client.New(srv.URL+"/api", srv.Client()).GetData(context.Background(), dt))
}

func TestCacheContentReplacesEntry(t *testing.T) {
	srv := newTestServer(t)
	app, _ := newApp(t, srv)
	ctx := context.Background()

	require.NoError(t, app.CacheContent(ctx, "cat", map[string]any{"image": "a.jpg", "width": 10}))
	require.NoError(t, app.CacheContent(ctx, "cat", map[string]any{"note": "second"}))

	e, ok := app.GetCachedContent("cat")
	require.True(t, ok)
	assert.JSONEq(t, `{"note":"second"}`, string(e.Content))
	assert.Equal(t, "api", e.Source)
	assert.True(t, e.Timestamp.Equal(fixedNow))

	var daily map[string]model.CacheEntry
	require.NoError(t, json.Unmarshal([]byte(serverDoc(t, srv, model.DocDailyData)), &daily))
	assert.JSONEq(t, `{"note":"second"}`, string(daily["cat"].Content))
}

func TestGetCachedContentMisses(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv, model.DocDailyData, `{"news_baidu":[{"title":"x"}],"broken":"nope"}`)
	app, _ := newApp(t, srv)

	_, ok := app.GetCachedContent("cat")
	assert.False(t, ok)
	_, ok = app.GetCachedContent("news_baidu")
	assert.False(t, ok)
	_, ok = app.GetCachedContent("broken")
	assert.False(t, ok)

	items, ok := app.CachedNews(model.NewsBaidu)
	require.True(t, ok)
	assert.JSONEq(t, `[{"title":"x"}]`, string(items))
}

func TestInitRestoresSession(t *testing.T) {
	srv := newTestServer(t)
	last := fixedNow.Add(-time.Minute).UnixMilli()
	seed(t, srv, model.DocAdminData, `{"currentUser":{"id":2,"username":"user","role":"user"},"globalSettings":{"theme":"dark","lastRefreshTime":`+jsonInt(last)+`}}`)

	app, doer := newApp(t, srv)
	require.NotNil(t, app.User())
	assert.Equal(t, "user", app.User().Username)
	assert.Equal(t, model.ThemeDark, app.Theme())
	assert.Equal(t, last, app.LastRefreshTime().UnixMilli())
	assert.EqualValues(t, 0, doer.posts.Load(), "nothing to migrate, nothing saved")
}

func TestInitDropsLegacyKeys(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv, model.DocDailyData, `{
		"cat": {"content": {"image": "a"}, "timestamp": "2026-10-16T00:00:00Z", "source": "api"},
		"cat_Mon Oct 13 2025": {"content": {"image": "old"}},
		"news_baidu_Tue Oct 14 2025": [],
		"quote_2025-10-01": {"content": {"message": "m"}}
	}`)

	app, doer := newApp(t, srv)
	assert.Equal(t, []string{"cat", "quote_2025-10-01"}, app.CacheKeys())
	assert.EqualValues(t, 1, doer.posts.Load(), "only daily-data is saved")

	var daily map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(serverDoc(t, srv, model.DocDailyData)), &daily))
	assert.Len(t, daily, 2)

	n, err := app.CleanupExpiredCache(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"cat"}, app.CacheKeys())
}

func TestSetUserAndLogout(t *testing.T) {
	srv := newTestServer(t)
	app, _ := newApp(t, srv)
	ctx := context.Background()

	alice := model.User{ID: 3, Username: "alice", Role: model.RoleUser}
	require.NoError(t, app.SetUser(ctx, alice))
	assert.Equal(t, &alice, app.User())

	var users model.Users
	require.NoError(t, json.Unmarshal([]byte(serverDoc(t, srv, model.DocUsers)), &users))
	assert.Equal(t, alice, users["alice"])

	var admin model.AdminData
	require.NoError(t, json.Unmarshal([]byte(serverDoc(t, srv, model.DocAdminData)), &admin))
	require.NotNil(t, admin.CurrentUser)
	assert.Equal(t, "alice", admin.CurrentUser.Username)

	require.NoError(t, app.Logout(ctx))
	assert.Nil(t, app.User())
	admin = model.AdminData{}
	require.NoError(t, json.Unmarshal([]byte(serverDoc(t, srv, model.DocAdminData)), &admin))
	assert.Nil(t, admin.CurrentUser)
}

func TestToggleTheme(t *testing.T) {
	srv := newTestServer(t)
	app, _ := newApp(t, srv)
	ctx := context.Background()

	theme, err := app.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeDark, theme)

	again, _ := newApp(t, srv)
	assert.Equal(t, model.ThemeDark, again.Theme())

	theme, err = app.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeLight, theme)
}

func TestClearAllServerDataAdminOnly(t *testing.T) {
	srv := newTestServer(t)
	app, _ := newApp(t, srv)
	ctx := context.Background()
	require.NoError(t, app.CacheContent(ctx, "quote", map[string]string{"message": "m"}))

	assert.ErrorIs(t, app.ClearAllServerData(ctx), ErrForbidden)

	require.NoError(t, app.SetUser(ctx, model.User{ID: 2, Username: "user", Role: model.RoleUser}))
	assert.ErrorIs(t, app.ClearAllServerData(ctx), ErrForbidden)
	assert.Equal(t, []string{"quote"}, app.CacheKeys())

	require.NoError(t, app.SetUser(ctx, model.User{ID: 1, Username: "admin", Role: model.RoleAdmin}))
	require.NoError(t, app.ClearAllServerData(ctx))
	assert.Empty(t, app.CacheKeys())
	assert.JSONEq(t, `{}`, serverDoc(t, srv, model.DocDailyData))
}

func TestClearByKind(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv, model.DocDailyData, `{
		"cat": {"content": {}},
		"nasa": {"content": {}},
		"news_baidu": [],
		"news_weibo": []
	}`)
	app, _ := newApp(t, srv)
	ctx := context.Background()

	n, err := app.ClearSingleCache(ctx, "nasa")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"cat", "news_baidu", "news_weibo"}, app.CacheKeys())

	n, err = app.ClearSingleCache(ctx, "nasa")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = app.ClearNewsCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = app.ClearContentCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.JSONEq(t, `{}`, serverDoc(t, srv, model.DocDailyData))
}

func TestRefreshCooldown(t *testing.T) {
	srv := newTestServer(t)
	app, _ := newApp(t, srv)
	ctx := context.Background()

	require.NoError(t, app.CheckRefresh())
	require.NoError(t, app.StartRefresh(ctx))

	app.now = func() time.Time { return fixedNow.Add(5 * time.Second) }
	err := app.StartRefresh(ctx)
	require.ErrorIs(t, err, ErrRefreshCooldown)
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 10*time.Second, cd.Remaining)
	assert.Equal(t, "请等待 10 秒后再刷新", cd.Error())

	app.now = func() time.Time { return fixedNow.Add(RefreshCooldown) }
	require.NoError(t, app.StartRefresh(ctx))

	var admin model.AdminData
	require.NoError(t, json.Unmarshal([]byte(serverDoc(t, srv, model.DocAdminData)), &admin))
	assert.Equal(t, fixedNow.Add(RefreshCooldown).UnixMilli(), admin.GlobalSettings.LastRefreshTime)
}

func TestSaveFailureIsReported(t *testing.T) {
	srv := newTestServer(t)
	app, _ := newApp(t, srv)
	srv.Close()

	assert.Error(t, app.CacheContent(context.Background(), "cat", map[string]string{}))
	// the in-memory cache still has the entry
	_, ok := app.GetCachedContent("cat")
	assert.True(t, ok)
}

func TestSessionsRebaseAfterConflict(t *testing.T) {
	srv := newTestServer(t)
	a, _ := newApp(t, srv)
	b, doer := newApp(t, srv)
	ctx := context.Background()

	require.NoError(t, a.CacheContent(ctx, "quote", map[string]string{"message": "a"}))
	require.NoError(t, b.CacheContent(ctx, "cat", map[string]string{"image": "b.jpg"}))
	assert.EqualValues(t, 2, doer.posts.Load(), "one rejected save, one retry")
	assert.Equal(t, []string{"cat", "quote"}, b.CacheKeys())

	var daily map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(serverDoc(t, srv, model.DocDailyData)), &daily))
	assert.Len(t, daily, 2)

	// b keeps working without a restart
	require.NoError(t, b.CacheContent(ctx, "nasa", map[string]string{"title": "t"}))
	assert.EqualValues(t, 3, doer.posts.Load())

	_, err := a.ToggleTheme(ctx)
	require.NoError(t, err)
	theme, err := b.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ThemeDark, theme)

	require.NoError(t, a.SetUser(ctx, model.User{ID: 3, Username: "alice", Role: model.RoleUser}))
	require.NoError(t, b.SetUser(ctx, model.User{ID: 4, Username: "bob", Role: model.RoleUser}))
	var users model.Users
	require.NoError(t, json.Unmarshal([]byte(serverDoc(t, srv, model.DocUsers)), &users))
	assert.Contains(t, users, "alice")
	assert.Contains(t, users, "bob")

	var admin model.AdminData
	require.NoError(t, json.Unmarshal([]byte(serverDoc(t, srv, model.DocAdminData)), &admin))
	require.NotNil(t, admin.CurrentUser)
	assert.Equal(t, "bob", admin.CurrentUser.Username)
}

func TestSaveToServer(t *testing.T) {
	srv := newTestServer(t)
	app, doer := newApp(t, srv)
	ctx := context.Background()

	require.NoError(t, app.SaveToServer(ctx))
	assert.EqualValues(t, 2, doer.posts.Load())
	assert.JSONEq(t, `{}`, serverDoc(t, srv, model.DocDailyData))
	assert.JSONEq(t, `{"currentUser":null,"globalSettings":{"theme":"light","lastRefreshTime":0}}`,
		serverDoc(t, srv, model.DocAdminData))
}

func TestThemeRevertsWhenSaveFails(t *testing.T) {
	srv := newTestServer(t)
	app, _ := newApp(t, srv)
	srv.Close()

	theme, err := app.ToggleTheme(context.Background())
	assert.Error(t, err)
	assert.Equal(t, model.ThemeLight, theme)
	assert.Equal(t, model.ThemeLight, app.Theme())
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
