package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// OpenExclFile creates a new file for writing with the condition that the file did not
// exist prior to this call.
//
// The first argument is the parent directory of the file to be created. The second
// argument is the stem of the file, the third the extension. If the desired name is
// taken, numeric suffixes are tried: "stem-1.ext", "stem-2.ext", and so on. The file is
// opened with flag `os.O_RDWR|os.O_CREATE|os.O_EXCL`; caller is responsible for closing
// the file upon a successful return. See MkExclDir for a dir equivalent.
//
// This method gives you a more predictable name over os.CreateTemp at the cost of
// performance and concurrency.
func OpenExclFile(parent, stem, ext string, perm os.FileMode) (file *os.File, err error) {
	name := filepath.Join(parent, stem+ext)
	for i := 0; ; {
		switch file, err = os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm); {
		case err == nil:
			return
		case errors.Is(err, os.ErrExist):
			i++
			name = filepath.Join(parent, fmt.Sprintf("%s-%d%s", stem, i, ext))
		default:
			return nil, fmt.Errorf("create file error: %w", err)
		}
	}
}

// MkExclDir creates a new child directory that did not exist prior to this invocation.
//
// Stem is the desired name of the directory. The actual directory that is created might
// have numeric suffixes such as stem-1, stem-2, etc. The return value "name" is the
// actual path to the newly created directory.
func MkExclDir(parent, stem string, perm os.FileMode) (name string, err error) {
	name = filepath.Join(parent, stem)
	for i := 0; ; {
		switch err = os.Mkdir(name, perm); {
		case err == nil:
			return
		case errors.Is(err, os.ErrExist):
			i++
			name = filepath.Join(parent, stem+"-"+strconv.Itoa(i))
		default:
			return "", fmt.Errorf("create directory error: %w", err)
		}
	}
}
