package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"my-page/internal/logger"
	"my-page/internal/model"

	"golang.org/x/sync/errgroup"
)

var (
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrConflict means the server document changed since this client last saw it.
	ErrConflict = errors.New("document changed on server")
)

// Doer is the transport; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store api %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusConflict {
		return ErrConflict
	}
	return ErrHTTPStatus
}

// DataManager is the client side of the document store. Reads are memoised
// per type for the lifetime of the manager; a failed read yields the
// client default instead of an error, while a failed save is returned.
type DataManager struct {
	baseURL string
	client  Doer

	mu    sync.Mutex
	memo  map[model.DocType]json.RawMessage
	revs  map[model.DocType]string
	token string
}

func New(baseURL string, client Doer) *DataManager {
	if client == nil {
		client = http.DefaultClient
	}
	return &DataManager{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		memo:    make(map[model.DocType]json.RawMessage),
		revs:    make(map[model.DocType]string),
	}
}

// DefaultDocument is what GetData returns when the server cannot be reached.
func DefaultDocument(t model.DocType) json.RawMessage {
	switch t {
	case model.DocAdminData:
		return json.RawMessage(`{"currentUser":null,"globalSettings":{"theme":"light","lastRefreshTime":0}}`)
	default:
		return json.RawMessage(`{}`)
	}
}

func (m *DataManager) GetData(ctx context.Context, t model.DocType) json.RawMessage {
	m.mu.Lock()
	if doc, ok := m.memo[t]; ok {
		m.mu.Unlock()
		return clone(doc)
	}
	m.mu.Unlock()

	body, err := m.load(ctx, t)
	if err != nil {
		logger.Warn("client.get.fallback", "type", t.String(), "err", err)
		return DefaultDocument(t)
	}
	return body
}

// Refresh drops the memo for t and reads it from the server again. Unlike
// GetData a failed read is returned, so callers can rebase onto it safely.
func (m *DataManager) Refresh(ctx context.Context, t model.DocType) (json.RawMessage, error) {
	m.forget(t)
	return m.load(ctx, t)
}

func (m *DataManager) load(ctx context.Context, t model.DocType) (json.RawMessage, error) {
	var body json.RawMessage
	hdr, err := m.doJSON(ctx, http.MethodGet, "/"+t.String(), nil, nil, &body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		body = DefaultDocument(t)
	}

	m.mu.Lock()
	m.memo[t] = clone(body)
	if rev := hdr.Get("X-Revision"); rev != "" {
		m.revs[t] = rev
	} else {
		delete(m.revs, t)
	}
	m.mu.Unlock()
	return body, nil
}

func (m *DataManager) forget(t model.DocType) {
	m.mu.Lock()
	delete(m.memo, t)
	delete(m.revs, t)
	m.mu.Unlock()
}

// SaveData replaces the server document. When a revision for t is known the
// request is conditional, so a document written by someone else since is
// reported as ErrConflict rather than overwritten. A conflict also clears
// what the manager remembers about t.
func (m *DataManager) SaveData(ctx context.Context, t model.DocType, doc any) (*model.SaveResponse, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}

	m.mu.Lock()
	rev := m.revs[t]
	m.mu.Unlock()

	headers := map[string]string{}
	if rev != "" {
		headers["If-Match"] = `"` + rev + `"`
	}
	var resp model.SaveResponse
	hdr, err := m.doJSON(ctx, http.MethodPost, "/"+t.String(), data, headers, &resp)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// the memo no longer matches the server; the next read fetches it
			m.forget(t)
		}
		logger.Error("client.save failed", "type", t.String(), "err", err)
		return nil, err
	}

	m.mu.Lock()
	m.memo[t] = data
	if resp.Revision == "" {
		resp.Revision = hdr.Get("X-Revision")
	}
	if resp.Revision != "" {
		m.revs[t] = resp.Revision
	} else {
		delete(m.revs, t)
	}
	m.mu.Unlock()
	logger.Debug("client.save", "type", t.String(), "message", resp.Message)
	return &resp, nil
}

// Revision is the last server revision seen for t, or "".
func (m *DataManager) Revision(t model.DocType) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revs[t]
}

// ClearCache forgets every memoised document and revision.
func (m *DataManager) ClearCache() {
	m.mu.Lock()
	m.memo = make(map[model.DocType]json.RawMessage)
	m.revs = make(map[model.DocType]string)
	m.mu.Unlock()
}

// Preload warms the memo for every document type.
func (m *DataManager) Preload(ctx context.Context) {
	var g errgroup.Group
	for _, t := range model.AllDocTypes() {
		t := t
		g.Go(func() error {
			m.GetData(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	logger.Debug("client.preload done")
}

func (m *DataManager) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// --- typed documents ---

func (m *DataManager) Users(ctx context.Context) model.Users {
	users := model.Users{}
	if err := json.Unmarshal(m.GetData(ctx, model.DocUsers), &users); err != nil || users == nil {
		return model.Users{}
	}
	return users
}

func (m *DataManager) SaveUsers(ctx context.Context, users model.Users) (*model.SaveResponse, error) {
	return m.SaveData(ctx, model.DocUsers, users)
}

func (m *DataManager) DailyData(ctx context.Context) model.DailyData {
	daily := model.DailyData{}
	if err := json.Unmarshal(m.GetData(ctx, model.DocDailyData), &daily); err != nil || daily == nil {
		return model.DailyData{}
	}
	return daily
}

func (m *DataManager) SaveDailyData(ctx context.Context, daily model.DailyData) (*model.SaveResponse, error) {
	return m.SaveData(ctx, model.DocDailyData, daily)
}

// AdminData always has GlobalSettings set.
func (m *DataManager) AdminData(ctx context.Context) model.AdminData {
	var admin model.AdminData
	if err := json.Unmarshal(m.GetData(ctx, model.DocAdminData), &admin); err != nil {
		admin = model.AdminData{}
	}
	if admin.GlobalSettings == nil {
		admin.GlobalSettings = model.DefaultAdminData().GlobalSettings
	}
	return admin
}

func (m *DataManager) SaveAdminData(ctx context.Context, admin model.AdminData) (*model.SaveResponse, error) {
	return m.SaveData(ctx, model.DocAdminData, admin)
}

// --- server utilities ---

func (m *DataManager) Health(ctx context.Context) (*model.HealthResponse, error) {
	var resp model.HealthResponse
	if _, err := m.doJSON(ctx, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (m *DataManager) Stats(ctx context.Context) (map[string]model.DocStats, error) {
	var resp map[string]model.DocStats
	if _, err := m.doJSON(ctx, http.MethodGet, "/stats", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *DataManager) Backup(ctx context.Context) (*model.BackupResponse, error) {
	var resp model.BackupResponse
	if _, err := m.doJSON(ctx, http.MethodPost, "/backup", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login checks the credentials on the server and keeps the returned token
// for later requests.
func (m *DataManager) Login(ctx context.Context, username, password string) (*model.LoginResponse, error) {
	body, _ := json.Marshal(model.LoginRequest{Username: username, Password: password})
	var resp model.LoginResponse
	if _, err := m.doJSON(ctx, http.MethodPost, "/login", body, nil, &resp); err != nil {
		return nil, err
	}
	m.SetToken(resp.Token)
	return &resp, nil
}

// --- HTTP helper ---

func (m *DataManager) doJSON(ctx context.Context, method, path string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("store api %s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header, nil
}

func clone(b json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), b...)
}
