package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"my-page/internal/logger"
	"my-page/internal/model"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrConflict        = errors.New("revision conflict")
	ErrCorrupt         = errors.New("stored document is not valid JSON")
	ErrInvalidDocument = errors.New("document is not valid JSON")
)

// Backend is the raw byte storage behind a Store. Read returns ErrNotFound
// for a document that was never written.
type Backend interface {
	Read(ctx context.Context, t model.DocType) ([]byte, time.Time, error)
	Write(ctx context.Context, t model.DocType, data []byte) error
	Name() string
}

type Document struct {
	Type     model.DocType
	Body     json.RawMessage
	Revision string
	Exists   bool
	ModTime  time.Time
}

// Store maps each DocType to one JSON document. Writes to the same type are
// serialized; a Put carrying an expected revision is rejected with
// ErrConflict when the stored document has moved on.
type Store struct {
	backend   Backend
	backupDir string
	locks     map[model.DocType]*sync.Mutex
	now       func() time.Time
}

func NewStore(backend Backend, backupDir string) *Store {
	locks := make(map[model.DocType]*sync.Mutex)
	for _, t := range model.AllDocTypes() {
		locks[t] = &sync.Mutex{}
	}
	return &Store{backend: backend, backupDir: backupDir, locks: locks, now: time.Now}
}

func (s *Store) Backend() string { return s.backend.Name() }

func (s *Store) Get(ctx context.Context, t model.DocType) (*Document, error) {
	mu, err := s.lock(t)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return s.read(ctx, t)
}

// Put replaces the whole document. ifMatch, when non-empty, must equal the
// current revision.
func (s *Store) Put(ctx context.Context, t model.DocType, body json.RawMessage, ifMatch string) (string, error) {
	if !json.Valid(body) {
		return "", ErrInvalidDocument
	}
	mu, err := s.lock(t)
	if err != nil {
		return "", err
	}
	mu.Lock()
	defer mu.Unlock()

	if ifMatch != "" {
		cur, err := s.read(ctx, t)
		if err != nil {
			return "", err
		}
		if cur.Revision != ifMatch {
			logger.Warn("store.put.conflict", "type", t.String(), "want", ifMatch, "have", cur.Revision)
			return "", fmt.Errorf("%w: %s is at %s", ErrConflict, t, cur.Revision)
		}
	}

	data, err := indent(body)
	if err != nil {
		return "", err
	}
	if err := s.backend.Write(ctx, t, data); err != nil {
		return "", fmt.Errorf("write %s: %w", t, err)
	}
	rev := Revision(data)
	logger.Info("store.put", "type", t.String(), "bytes", len(data), "revision", rev)
	return rev, nil
}

func (s *Store) read(ctx context.Context, t model.DocType) (*Document, error) {
	data, mod, err := s.backend.Read(ctx, t)
	if errors.Is(err, ErrNotFound) {
		def := t.ServerDefault()
		return &Document{Type: t, Body: def, Revision: Revision(def)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, t)
	}
	return &Document{Type: t, Body: data, Revision: Revision(data), Exists: true, ModTime: mod}, nil
}

func (s *Store) lock(t model.DocType) (*sync.Mutex, error) {
	mu, ok := s.locks[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownDocType, t)
	}
	return mu, nil
}

// Stats reports every document, keyed by type name.
func (s *Store) Stats(ctx context.Context) map[string]model.DocStats {
	out := make(map[string]model.DocStats, len(model.AllDocTypes()))
	for _, t := range model.AllDocTypes() {
		doc, err := s.Get(ctx, t)
		if err != nil {
			out[t.String()] = model.DocStats{Exists: false, Error: err.Error()}
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, doc.Body); err != nil {
			out[t.String()] = model.DocStats{Exists: false, Error: err.Error()}
			continue
		}
		mod := doc.ModTime
		if !doc.Exists {
			mod = s.now()
		}
		out[t.String()] = model.DocStats{
			Exists:       true,
			Size:         compact.Len(),
			Items:        countItems(doc.Body),
			LastModified: mod.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}

// Backup copies every document into a new timestamped directory under the
// backup root. A document that cannot be read is skipped.
func (s *Store) Backup(ctx context.Context) (string, []string, error) {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(s.now().UTC().Format("2006-01-02T15:04:05.000Z"))
	dir := filepath.Join(s.backupDir, stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create backup dir: %w", err)
	}

	files := []string{}
	for _, t := range model.AllDocTypes() {
		doc, err := s.Get(ctx, t)
		if err != nil {
			logger.Warn("store.backup.skip", "type", t.String(), "err", err)
			continue
		}
		data, err := indent(doc.Body)
		if err != nil {
			logger.Warn("store.backup.skip", "type", t.String(), "err", err)
			continue
		}
		if err := writeFileAtomic(filepath.Join(dir, t.FileName()), data); err != nil {
			logger.Warn("store.backup.skip", "type", t.String(), "err", err)
			continue
		}
		files = append(files, t.FileName())
	}
	logger.Info("store.backup", "dir", dir, "files", len(files))
	return stamp, files, nil
}

// Revision is the content hash used for optimistic concurrency.
func Revision(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func indent(body json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return buf.Bytes(), nil
}

func countItems(body json.RawMessage) int {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return 0
	}
	switch x := v.(type) {
	case []any:
		return len(x)
	case map[string]any:
		return len(x)
	default:
		return 0
	}
}
