package os

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("file is locked")

type Flock struct {
	f *flock.Flock
}

func NewFileLock(path string) (*Flock, error) {
	if path == "" {
		path = os.TempDir() + string(os.PathSeparator) + "edgeviewer.lock"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, err
	} else {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0660)
		if err != nil {
			return nil, err
		}
		_ = f.Close()
	}

	f := Flock{
		f: flock.New(path),
	}

	return &f, nil
}

func (f *Flock) Lock() error   { return f.f.Lock() }
func (f *Flock) Unlock() error { return f.f.Unlock() }
func (f *Flock) Path() string  { return f.f.Path() }

// LockContext retries to take the lock until ctx is done.
func (f *Flock) LockContext(ctx context.Context, retry time.Duration) error {
	ok, err := f.f.TryLockContext(ctx, retry)
	if err != nil {
		return errors.Join(ErrLocked, err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}
