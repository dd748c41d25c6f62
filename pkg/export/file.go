package export

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/edgeviewer/edgeviewer/pkg/os"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
)

const lockName = ".edgeviewer.lock"

// File writes PNG snapshots into a directory.
// Writers from other processes are kept out with a file lock in the dir.
type File struct {
	dir   string
	name  string
	label bool
	lock  *os.Flock
	log   *logger.Logger
}

func NewFile(dir, name string, label bool, log *logger.Logger) (*File, error) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err = os.CheckCreateDir(path); err != nil {
		return nil, err
	}
	lock, err := os.NewFileLock(filepath.Join(path, lockName))
	if err != nil {
		return nil, err
	}
	return &File{dir: path, name: name, label: label, lock: lock, log: log.Stage("file")}, nil
}

func (f *File) Dir() string { return f.dir }

func (f *File) Export(ctx context.Context, snap pipeline.FrozenSnapshot, meta pipeline.ExportMeta) error {
	data, err := EncodePNG(snap, meta, f.label)
	if err != nil {
		return err
	}

	if err = f.lock.LockContext(ctx, 10*time.Millisecond); err != nil {
		return err
	}
	defer func() { _ = f.lock.Unlock() }()

	path := f.free(ParseName(f.name, meta.Mode.String(), meta.CapturedAt))
	if err = os.WriteFileAtomic(path, data, 0660); err != nil {
		return err
	}
	f.log.Info().Str("path", path).Int("size", len(data)).Msg("Snapshot saved")
	return nil
}

// free returns a path of a not yet existing file for the name.
func (f *File) free(name string) string {
	path := filepath.Join(f.dir, name+".png")
	for i := 1; os.Exists(path); i++ {
		path = filepath.Join(f.dir, name+"_"+strconv.Itoa(i)+".png")
	}
	return path
}
