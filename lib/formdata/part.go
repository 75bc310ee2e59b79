package formdata

import (
	"errors"
	"os"

	"github.com/elliotchance/orderedmap/v3"
)

// Part is one decoded section. Exactly one of Content and File is set:
// File for parts declaring filename, Content otherwise.
type Part struct {
	// Headers keep header keys and attributes in order of appearance.
	Headers *orderedmap.OrderedMap[string, string]

	Content []byte

	// File is path of temporary file holding content. Caller owns it.
	File string
	// Size of content, for both kinds.
	Size int64
	// Hash is textual content hash of file parts, if hashing was enabled.
	Hash string
}

func (p Part) IsFile() bool {
	return p.File != ""
}

func (p Part) Header(key string) (string, bool) {
	if p.Headers == nil {
		return "", false
	}
	return p.Headers.Get(key)
}

func (p Part) Name() string {
	v, _ := p.Header("name")
	return v
}

// FileName returns sanitized filename attribute.
// It's empty string for field parts, and may be empty for file parts too.
func (p Part) FileName() string {
	v, _ := p.Header("filename")
	return v
}

type Parts []Part

// Field returns content of first field part with given name.
func (ps Parts) Field(name string) ([]byte, bool) {
	for i := range ps {
		if !ps[i].IsFile() && ps[i].Name() == name {
			return ps[i].Content, true
		}
	}
	return nil, false
}

// Files returns all file parts with given name.
func (ps Parts) Files(name string) (r []Part) {
	for i := range ps {
		if ps[i].IsFile() && ps[i].Name() == name {
			r = append(r, ps[i])
		}
	}
	return
}

// RemoveAll removes temporary files of file parts.
func (ps Parts) RemoveAll() error {
	var errs []error
	for i := range ps {
		if ps[i].File == "" {
			continue
		}
		if err := os.Remove(ps[i].File); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
