package walk

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"path/filepath"

	"github.com/CZERTAINLY/symstat/internal/model"
	"github.com/CZERTAINLY/symstat/internal/stats"
)

// Dir lists the direct children of root whose name matches and returns a
// handle for every regular file found. Subdirectories are not entered.
// Each model.Entry's Path() is prefixed with name, in most cases the
// absolute path of the folder. Entries come in lexical order.
// If the folder itself can't be read, a single error is yielded.
func Dir(ctx context.Context, counter *stats.Stats, root fs.FS, name string, match Matcher) iter.Seq2[model.Entry, error] {
	if root == nil {
		slog.WarnContext(ctx, "root is nil: not iterating")
		return nil
	}

	return func(yield func(model.Entry, error) bool) {
		dirents, err := fs.ReadDir(root, ".")
		if err != nil {
			yield(nil, err)
			return
		}
		for _, d := range dirents {
			if ctx.Err() != nil {
				return
			}
			if d.IsDir() || !match.Match(d.Name()) {
				continue
			}
			var entry = fsEntry{
				root:    root,
				abspath: filepath.Join(name, d.Name()),
				path:    d.Name(),
			}
			info, err := d.Info()
			if err != nil {
				counter.IncErrFiles()
				entry.infoErr = err
				if !yield(entry, err) {
					return
				}
				continue
			}
			if !info.Mode().IsRegular() {
				counter.IncExcludedFiles()
				continue
			}
			entry.info = info
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// File returns an entry for the direct child base of root. Stat is
// resolved lazily, so a file deleted in the meantime reports
// fs.ErrNotExist from both Stat and Open.
func File(root fs.FS, name, base string) model.Entry {
	return fsEntry{
		root:    root,
		abspath: filepath.Join(name, base),
		path:    base,
	}
}

// fsEntry implements model.Entry for a filesystem
// it uses root.Open to open the file
type fsEntry struct {
	root    fs.FS
	abspath string
	path    string
	info    fs.FileInfo
	infoErr error
}

// returns the absolute path to the file
func (e fsEntry) Path() string {
	return e.abspath
}

func (e fsEntry) Open() (io.ReadCloser, error) {
	if e.infoErr != nil {
		return nil, e.infoErr
	}
	return e.root.Open(e.path)
}

func (e fsEntry) Stat() (fs.FileInfo, error) {
	if e.info == nil && e.infoErr == nil {
		return fs.Stat(e.root, e.path)
	}
	return e.info, e.infoErr
}
