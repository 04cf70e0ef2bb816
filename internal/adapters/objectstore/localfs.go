package objectstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	perr "rangeload/internal/platform/errors"
	"rangeload/internal/services/ingest/domain"
)

// LocalFS serves objects from a directory: bucket is a subdirectory, key a
// relative path. It backs the file mode of the worker and tests
type LocalFS struct {
	Root string
}

// NewLocalFS roots a source at dir
func NewLocalFS(dir string) *LocalFS { return &LocalFS{Root: dir} }

func (l *LocalFS) path(ref domain.ObjectRef) (string, error) {
	rel := filepath.Join(ref.Bucket, filepath.FromSlash(ref.Key))
	if !filepath.IsLocal(rel) {
		return "", perr.WithField(perr.InvalidArgf("key %q escapes the source root", ref.Key), "key")
	}
	return filepath.Join(l.Root, rel), nil
}

// OpenRange implements domain.ObjectSource
func (l *LocalFS) OpenRange(_ context.Context, ref domain.ObjectRef, offset int64) (domain.Object, error) {
	p, err := l.path(ref)
	if err != nil {
		return domain.Object{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return domain.Object{}, fsError(err, ref)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return domain.Object{}, fsError(err, ref)
	}
	if _, err := f.Seek(min(offset, st.Size()), io.SeekStart); err != nil {
		_ = f.Close()
		return domain.Object{}, fsError(err, ref)
	}
	return domain.Object{Body: f, Size: st.Size()}, nil
}

// Delete implements domain.ObjectSource
func (l *LocalFS) Delete(_ context.Context, ref domain.ObjectRef) error {
	p, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fsError(err, ref)
	}
	return nil
}

func fsError(err error, ref domain.ObjectRef) error {
	if errors.Is(err, fs.ErrNotExist) {
		return perr.Wrapf(err, perr.ErrorCodeNotFound, "object %s", ref)
	}
	return perr.Wrapf(err, perr.ErrorCodeSource, "object %s", ref)
}
