package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"my-page/internal/client"
	"my-page/internal/logger"
	"my-page/internal/model"

	"golang.org/x/sync/errgroup"
)

// RefreshCooldown is the minimum spacing between two full refreshes.
const RefreshCooldown = 15 * time.Second

var (
	ErrForbidden        = errors.New("权限不足")
	ErrRefreshCooldown  = errors.New("refresh cooldown")
	ErrNoCacheAvailable = errors.New("无缓存数据且不允许网络请求")
)

type CooldownError struct{ Remaining time.Duration }

func (e *CooldownError) Error() string {
	return fmt.Sprintf("请等待 %d 秒后再刷新", int((e.Remaining+time.Second-1)/time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrRefreshCooldown }

// legacy keys carried a Date.toDateString() suffix, e.g. "cat_Mon Oct 16 2026"
var legacyKeyMarkers = []string{"_Mon", "_Tue", "_Wed", "_Thu", "_Fri", "_Sat", "_Sun"}

// AppState holds the signed-in user, the theme and the daily-data cache for
// one dashboard session. Every mutation persists the affected documents
// before the lock is released, so two mutations from the same session never
// overwrite each other.
type AppState struct {
	dm  *client.DataManager
	now func() time.Time

	mu          sync.Mutex
	user        *model.User
	theme       string
	lastRefresh int64
	daily       model.DailyData
}

func NewAppState(dm *client.DataManager) *AppState {
	return &AppState{dm: dm, now: time.Now, theme: model.ThemeLight, daily: model.DailyData{}}
}

// Init loads all three documents in parallel, restores the session, and
// drops cache keys from the old date-suffixed layout.
func (a *AppState) Init(ctx context.Context) error {
	var (
		daily model.DailyData
		admin model.AdminData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { daily = a.dm.DailyData(gctx); return nil })
	g.Go(func() error { admin = a.dm.AdminData(gctx); return nil })
	g.Go(func() error { a.dm.Users(gctx); return nil })
	if err := g.Wait(); err != nil {
		return err
	}

	a.mu.Lock()
	a.daily = daily
	if admin.CurrentUser != nil {
		u := *admin.CurrentUser
		a.user = &u
	}
	if gs := admin.GlobalSettings; gs != nil {
		if gs.Theme != "" {
			a.theme = gs.Theme
		}
		a.lastRefresh = gs.LastRefreshTime
	}
	a.mu.Unlock()

	logger.Info("app.init", "daily_keys", len(daily), "user", a.userName(), "theme", a.Theme())

	if _, err := a.CleanOldCache(ctx); err != nil {
		return fmt.Errorf("migrate cache: %w", err)
	}
	return nil
}

// CleanOldCache removes weekday-suffixed keys and persists only if any went.
func (a *AppState) CleanOldCache(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	err := a.saveDailyLocked(ctx, func(d model.DailyData) bool {
		removed = 0
		for key := range d {
			if isLegacyKey(key) {
				delete(d, key)
				removed++
				logger.Info("app.migrate.drop", "key", key)
			}
		}
		return removed > 0
	})
	return removed, err
}

// CleanupExpiredCache drops legacy keys whose date suffix is older than maxAge.
func (a *AppState) CleanupExpiredCache(ctx context.Context, maxAge time.Duration) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-maxAge)
	removed := 0
	err := a.saveDailyLocked(ctx, func(d model.DailyData) bool {
		removed = 0
		for key := range d {
			_, suffix, ok := strings.Cut(key, "_")
			if !ok {
				continue
			}
			if t, ok := parseKeyDate(suffix); ok && t.Before(cutoff) {
				delete(d, key)
				removed++
			}
		}
		return removed > 0
	})
	return removed, err
}

// CacheContent replaces the entry for key with {content, now, "api"} and
// persists daily-data. Nothing of the previous entry survives.
func (a *AppState) CacheContent(ctx context.Context, key string, content any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	entry, err := json.Marshal(model.CacheEntry{Content: raw, Timestamp: a.now().UTC(), Source: "api"})
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	err = a.saveDailyLocked(ctx, func(d model.DailyData) bool {
		d[key] = entry
		return true
	})
	if err != nil {
		return fmt.Errorf("cache %s: %w", key, err)
	}
	logger.Debug("app.cache", "key", key)
	return nil
}

// GetCachedContent returns the widget entry for key, if there is one.
func (a *AppState) GetCachedContent(key string) (*model.CacheEntry, bool) {
	a.mu.Lock()
	raw, ok := a.daily[key]
	a.mu.Unlock()
	if !ok {
		return nil, false
	}
	var e model.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil || len(e.Content) == 0 {
		return nil, false
	}
	return &e, true
}

// CacheNews stores the raw news array for p.
func (a *AppState) CacheNews(ctx context.Context, p model.NewsPlatform, items json.RawMessage) error {
	items = append(json.RawMessage(nil), items...)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveDailyLocked(ctx, func(d model.DailyData) bool {
		d[p.CacheKey()] = items
		return true
	})
}

func (a *AppState) CachedNews(p model.NewsPlatform) (json.RawMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	raw, ok := a.daily[p.CacheKey()]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), raw...), true
}

// SetUser records u in the users document, then saves admin-data. The two
// documents are written separately.
func (a *AppState) SetUser(ctx context.Context, u model.User) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.saveUserLocked(ctx, u); err != nil {
		return fmt.Errorf("保存用户状态失败: %w", err)
	}
	prev := a.user
	a.user = &u
	if err := a.saveAdminLocked(ctx); err != nil {
		a.user = prev
		return fmt.Errorf("保存用户状态失败: %w", err)
	}
	logger.Info("app.user", "username", u.Username, "role", u.Role)
	return nil
}

func (a *AppState) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.user
	a.user = nil
	if err := a.saveAdminLocked(ctx); err != nil {
		a.user = prev
		return err
	}
	return nil
}

func (a *AppState) ToggleTheme(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.theme
	if a.theme == model.ThemeDark {
		a.theme = model.ThemeLight
	} else {
		a.theme = model.ThemeDark
	}
	if err := a.saveAdminLocked(ctx); err != nil {
		a.theme = prev
		return prev, err
	}
	return a.theme, nil
}

// SaveToServer writes daily-data, then admin-data, as this session sees them.
func (a *AppState) SaveToServer(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.saveDailyLocked(ctx, func(model.DailyData) bool { return true }); err != nil {
		return fmt.Errorf("save daily-data: %w", err)
	}
	if err := a.saveAdminLocked(ctx); err != nil {
		return fmt.Errorf("save admin-data: %w", err)
	}
	return nil
}

// saveDailyLocked applies mutate to the session copy and saves it when mutate
// reports a change. If another client wrote daily-data in between, the
// server copy is re-read, mutate is applied to it and the save is retried once.
func (a *AppState) saveDailyLocked(ctx context.Context, mutate func(model.DailyData) bool) error {
	if !mutate(a.daily) {
		return nil
	}
	_, err := a.dm.SaveDailyData(ctx, a.dailyCopy())
	if !errors.Is(err, client.ErrConflict) {
		return err
	}
	logger.Warn("app.save.rebase", "type", model.DocDailyData.String(), "err", err)

	raw, err := a.dm.Refresh(ctx, model.DocDailyData)
	if err != nil {
		return err
	}
	fresh := model.DailyData{}
	if err := json.Unmarshal(raw, &fresh); err != nil || fresh == nil {
		fresh = model.DailyData{}
	}
	mutate(fresh)
	a.daily = fresh
	_, err = a.dm.SaveDailyData(ctx, a.dailyCopy())
	return err
}

// saveAdminLocked writes admin-data. Every field of it belongs to this
// session, so after a conflict the revision is refreshed and the session's
// view is written over the other client's.
func (a *AppState) saveAdminLocked(ctx context.Context) error {
	_, err := a.dm.SaveAdminData(ctx, a.adminLocked())
	if !errors.Is(err, client.ErrConflict) {
		return err
	}
	logger.Warn("app.save.rebase", "type", model.DocAdminData.String(), "err", err)
	if _, err := a.dm.Refresh(ctx, model.DocAdminData); err != nil {
		return err
	}
	_, err = a.dm.SaveAdminData(ctx, a.adminLocked())
	return err
}

func (a *AppState) saveUserLocked(ctx context.Context, u model.User) error {
	users := a.dm.Users(ctx)
	users[u.Username] = u
	_, err := a.dm.SaveUsers(ctx, users)
	if !errors.Is(err, client.ErrConflict) {
		return err
	}
	logger.Warn("app.save.rebase", "type", model.DocUsers.String(), "err", err)

	raw, err := a.dm.Refresh(ctx, model.DocUsers)
	if err != nil {
		return err
	}
	fresh := model.Users{}
	if err := json.Unmarshal(raw, &fresh); err != nil || fresh == nil {
		fresh = model.Users{}
	}
	fresh[u.Username] = u
	_, err = a.dm.SaveUsers(ctx, fresh)
	return err
}

func (a *AppState) adminLocked() model.AdminData {
	admin := model.AdminData{GlobalSettings: &model.GlobalSettings{Theme: a.theme, LastRefreshTime: a.lastRefresh}}
	if a.user != nil {
		u := *a.user
		admin.CurrentUser = &u
	}
	return admin
}

// ClearAllServerData empties daily-data. Admins only.
func (a *AppState) ClearAllServerData(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.user.IsAdmin() {
		return ErrForbidden
	}
	err := a.saveDailyLocked(ctx, func(d model.DailyData) bool {
		for k := range d {
			delete(d, k)
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("清空数据失败: %w", err)
	}
	a.dm.ClearCache()
	logger.Info("app.clear_all", "by", a.user.Username)
	return nil
}

// ClearSingleCache drops key and returns 1, or 0 when there was no such key.
func (a *AppState) ClearSingleCache(ctx context.Context, key string) (int, error) {
	return a.clearWhere(ctx, func(k string) bool { return k == key })
}

// ClearContentCache drops every widget entry and keeps news.
func (a *AppState) ClearContentCache(ctx context.Context) (int, error) {
	return a.clearWhere(ctx, func(k string) bool { return !strings.HasPrefix(k, model.NewsKeyPrefix) })
}

func (a *AppState) ClearNewsCache(ctx context.Context) (int, error) {
	return a.clearWhere(ctx, func(k string) bool { return strings.HasPrefix(k, model.NewsKeyPrefix) })
}

// ClearCacheForDate drops keys containing date, for leftovers of the old layout.
func (a *AppState) ClearCacheForDate(ctx context.Context, date string) (int, error) {
	return a.clearWhere(ctx, func(k string) bool { return strings.Contains(k, date) })
}

func (a *AppState) clearWhere(ctx context.Context, match func(string) bool) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	err := a.saveDailyLocked(ctx, func(d model.DailyData) bool {
		n = 0
		for k := range d {
			if match(k) {
				delete(d, k)
				n++
			}
		}
		return n > 0
	})
	return n, err
}

// CheckRefresh reports a *CooldownError while the last refresh is recent.
func (a *AppState) CheckRefresh() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkRefreshLocked()
}

func (a *AppState) checkRefreshLocked() error {
	if a.lastRefresh == 0 {
		return nil
	}
	elapsed := a.now().Sub(time.UnixMilli(a.lastRefresh))
	if elapsed < RefreshCooldown {
		return &CooldownError{Remaining: RefreshCooldown - elapsed}
	}
	return nil
}

// StartRefresh checks the cooldown and records now as the refresh time.
func (a *AppState) StartRefresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkRefreshLocked(); err != nil {
		return err
	}
	prev := a.lastRefresh
	a.lastRefresh = a.now().UnixMilli()
	if err := a.saveAdminLocked(ctx); err != nil {
		a.lastRefresh = prev
		return err
	}
	return nil
}

func (a *AppState) User() *model.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

func (a *AppState) userName() string {
	if u := a.User(); u != nil {
		return u.Username
	}
	return "none"
}

func (a *AppState) Theme() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.theme
}

func (a *AppState) LastRefreshTime() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastRefresh == 0 {
		return time.Time{}
	}
	return time.UnixMilli(a.lastRefresh)
}

// CacheKeys lists the daily-data keys in order.
func (a *AppState) CacheKeys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]string, 0, len(a.daily))
	for k := range a.daily {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *AppState) dailyCopy() model.DailyData {
	out := make(model.DailyData, len(a.daily))
	for k, v := range a.daily {
		out[k] = v
	}
	return out
}

func isLegacyKey(key string) bool {
	for _, m := range legacyKeyMarkers {
		if strings.Contains(key, m) {
			return true
		}
	}
	return false
}

func parseKeyDate(s string) (time.Time, bool) {
	for _, layout := range []string{"Mon Jan 02 2006", "2006-01-02", "Mon_Jan_02_2006"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
