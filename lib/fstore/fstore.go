package fstore

// abstracts temporary file creation in configured directory

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

const maxAttempts = 10000

type FStore struct {
	root string
}

// OpenFStore prepares store rooted at dir.
// Empty dir means system temporary directory.
// Existing files are never touched.
func OpenFStore(dir string) (FStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return FStore{}, xerrors.Errorf("error at os.MkdirAll: %w", err)
	}
	return FStore{root: filepath.Clean(dir)}, nil
}

func (fs FStore) Root() string {
	return fs.root
}

// TempFile atomically creates new file named pfx+random+ext and opens it for
// writing. Name generation and creation are single O_EXCL step so concurrent
// creators never share file.
func (fs FStore) TempFile(pfx, ext string) (f *os.File, err error) {
	if fs.root == "" {
		return nil, xerrors.New("fstore: not opened")
	}
	nconflict := 0
	for i := 0; i < maxAttempts; i++ {
		name := filepath.Join(fs.root, pfx+nextSuffix()+ext)
		f, err = os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
		if os.IsExist(err) {
			if nconflict++; nconflict > 10 {
				reseed()
				nconflict = 0
			}
			continue
		}
		if err != nil {
			return nil, xerrors.Errorf("error at os.OpenFile: %w", err)
		}
		return f, nil
	}
	return nil, xerrors.Errorf("fstore: failed to pick unique name after %d attempts: %w", maxAttempts, err)
}
