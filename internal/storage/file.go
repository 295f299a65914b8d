package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const digestSuffix = ".blake3"

// File writes each object under a local directory. Writes go through a temp
// file and a rename so a reader never sees a partial payload.
type File struct {
	dir string
}

var _ Backend = (*File)(nil)

func NewFile(dir string) (*File, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, ErrDestinationRequired
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

func (f *File) Dir() string {
	return f.dir
}

// Path resolves key inside the backend directory.
func (f *File) Path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(f.dir, clean), nil
}

func (f *File) Put(ctx context.Context, key string, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	if err := writeAtomic(path, obj.Body); err != nil {
		return err
	}
	return writeAtomic(path+digestSuffix, []byte(obj.Digest+"\n"))
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
