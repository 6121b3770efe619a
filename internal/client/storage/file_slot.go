package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileSlot は1キー1ファイル（<dir>/<key>.json）
type FileSlot struct {
	fs  afero.Fs
	dir string
}

var _ Slot = (*FileSlot)(nil)

func NewFileSlot(fs afero.Fs, dir string) *FileSlot {
	return &FileSlot{fs: fs, dir: dir}
}

func (s *FileSlot) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *FileSlot) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := afero.ReadFile(s.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return b, nil
}

// 一時ファイルに書いてからrename（書きかけを読ませない）
func (s *FileSlot) Put(ctx context.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", s.dir, err)
	}

	tmp := p + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, value, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (s *FileSlot) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}
