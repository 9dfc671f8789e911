package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"my-page/internal/model"
)

// FileBackend keeps one <type>.json file per document in a directory.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) Name() string { return "file" }

func (b *FileBackend) path(t model.DocType) string {
	return filepath.Join(b.dir, t.FileName())
}

func (b *FileBackend) Read(_ context.Context, t model.DocType) ([]byte, time.Time, error) {
	p := b.path(t)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, err
	}
	var mod time.Time
	if fi, err := os.Stat(p); err == nil {
		mod = fi.ModTime()
	}
	return data, mod, nil
}

func (b *FileBackend) Write(_ context.Context, t model.DocType, data []byte) error {
	return writeFileAtomic(b.path(t), data)
}

// writeFileAtomic writes data next to path and renames it into place, so a
// failed write never leaves a truncated document behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// 1) 写临时文件
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	// 2) 同步临时文件
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// 3) 原子替换
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// 4) 同步父目录
	_ = fsyncDir(dir)
	return nil
}

func fsyncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer df.Close()
	if err := df.Sync(); err != nil {
		// macOS may report ENOTSUP for directories
		if errors.Is(err, syscall.ENOTSUP) {
			return nil
		}
		return err
	}
	return nil
}
