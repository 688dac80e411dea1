package archivator

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// FileEntry is one regular file selected for backup.
type FileEntry struct {
	// Path is the absolute (or root-joined) source path.
	Path string
	// Name is the archive-relative, forward-slash path.
	Name string
	// Size is the file size in bytes at scan time.
	Size int64
}

// ScanOptions customises Scan.
type ScanOptions struct {
	// Progress, when non-nil, is called after every file found with the running file
	// count and byte total. Implementations throttle themselves.
	Progress ScanProgressFunc
}

// Scan recursively enumerates every regular file under root.
//
// Directory symlinks are followed, with cycles broken by a visited set of resolved real
// paths; a repeated real path is skipped, not an error. Symlinks to regular files are
// included and will be archived by content. Sockets, devices and other non-regular files
// are skipped. A subdirectory that cannot be listed is recorded as a FileError and the
// scan continues.
//
// The returned entries are sorted by Name so that repeated scans of an unmodified tree
// yield the same sequence.
func Scan(ctx context.Context, root string, optFns ...func(*ScanOptions)) ([]FileEntry, []FileError, error) {
	opts := &ScanOptions{}
	for _, fn := range optFns {
		fn(opts)
	}

	fi, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil, &NotFoundError{Path: root}
	case err != nil:
		return nil, nil, err
	case !fi.IsDir():
		return nil, nil, &NotADirectoryError{Path: root}
	}

	w := &walker{visited: make(map[string]struct{}), progress: opts.Progress}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		w.visited[real] = struct{}{}
	}

	if err = w.walk(ctx, root, ""); err != nil {
		return nil, nil, err
	}

	sort.Slice(w.entries, func(i, j int) bool { return w.entries[i].Name < w.entries[j].Name })
	return w.entries, w.errs, nil
}

type walker struct {
	// visited holds resolved real paths of every directory already descended into.
	visited  map[string]struct{}
	entries  []FileEntry
	errs     []FileError
	progress ScanProgressFunc
	bytes    int64
}

func (w *walker) found(e FileEntry) {
	w.entries = append(w.entries, e)
	w.bytes += e.Size

	if w.progress != nil {
		w.progress(len(w.entries), w.bytes)
	}
}

func (w *walker) walk(ctx context.Context, dir, rel string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// an unlistable root is fatal; an unlistable subdirectory is recorded and
		// skipped.
		if rel == "" {
			return err
		}

		w.errs = append(w.errs, FileError{Path: dir, Err: err})
		return nil
	}

	// os.ReadDir sorts by name already.
	for _, e := range entries {
		name := path.Join(rel, filepath.ToSlash(e.Name()))
		full := filepath.Join(dir, e.Name())

		switch {
		case e.IsDir():
			if err = w.descend(ctx, full, name); err != nil {
				return err
			}

		case e.Type()&fs.ModeSymlink != 0:
			fi, err := os.Stat(full)
			if err != nil {
				w.errs = append(w.errs, FileError{Path: full, Err: err})
				continue
			}

			if fi.IsDir() {
				if err = w.descend(ctx, full, name); err != nil {
					return err
				}
			} else if fi.Mode().IsRegular() {
				w.found(FileEntry{Path: full, Name: name, Size: fi.Size()})
			}

		case e.Type().IsRegular():
			fi, err := e.Info()
			if err != nil {
				w.errs = append(w.errs, FileError{Path: full, Err: err})
				continue
			}

			w.found(FileEntry{Path: full, Name: name, Size: fi.Size()})
		}
	}

	return nil
}

func (w *walker) descend(ctx context.Context, dir, rel string) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.errs = append(w.errs, FileError{Path: dir, Err: err})
		return nil
	}

	if _, ok := w.visited[real]; ok {
		return nil
	}
	w.visited[real] = struct{}{}

	return w.walk(ctx, dir, rel)
}
