package formdata

import (
	"fmt"
	"io"
	"strings"

	"github.com/elliotchance/orderedmap/v3"

	"lfupload/lib/textutils"
)

const (
	hdrName     = "name"
	hdrFilename = "filename"
)

// readHeaders reads header block up to empty line.
// limit > 0 bounds bytes of whole block including line terminators.
func (s *scanner) readHeaders(limit int) (*orderedmap.OrderedMap[string, string], error) {
	h := orderedmap.NewOrderedMap[string, string]()
	used := 0
	for {
		room := 0
		if limit > 0 {
			room = limit - used
			if room <= 0 {
				return nil, newError(ErrLimitExceeded,
					fmt.Sprintf("part headers exceed %d bytes", limit))
			}
		}
		line, n, err := s.nextLine(room)
		if err != nil {
			switch err {
			case io.EOF:
				return nil, newError(ErrIncompleteStream, "input ended inside part headers")
			case errLineTooLong:
				return nil, newError(ErrLimitExceeded,
					fmt.Sprintf("part headers exceed %d bytes", limit))
			}
			return nil, err
		}
		used += n
		if len(line) == 0 {
			return h, nil
		}
		if err = parseHeaderLine(h, string(line)); err != nil {
			return nil, err
		}
	}
}

// parseHeaderLine splits `Key: value; attr=val; attr2=val2` into h.
// Quoted values containing "; " or "=" are not understood.
func parseHeaderLine(h *orderedmap.OrderedMap[string, string], line string) error {
	segs := strings.Split(line, "; ")

	kv := strings.Split(segs[0], ": ")
	if len(kv) != 2 {
		return newError(ErrHeaderMalformed, fmt.Sprintf("%q", line))
	}
	h.Set(kv[0], kv[1])

	for _, seg := range segs[1:] {
		av := strings.Split(seg, "=")
		if len(av) != 2 {
			return newError(ErrHeaderMalformed, fmt.Sprintf("%q", line))
		}
		h.Set(av[0], av[1])
	}
	return nil
}

// finishHeaders validates and cleans name and filename attributes.
// Reports whether part is file part.
func finishHeaders(h *orderedmap.OrderedMap[string, string], normalize bool) (bool, error) {
	name, ok := h.Get(hdrName)
	if !ok {
		return false, newError(ErrMissingName, "")
	}
	h.Set(hdrName, unquote(name))

	fn, ok := h.Get(hdrFilename)
	if !ok {
		return false, nil
	}
	fn = baseName(unquote(fn))
	if normalize {
		fn = textutils.NormalizeFileName(fn)
	}
	h.Set(hdrFilename, fn)
	return true, nil
}

// unquote strips one leading and one trailing double quote, if present.
func unquote(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}

// baseName keeps only final path component, for both UNIX and Windows paths.
func baseName(fn string) string {
	fn = strings.TrimRight(fn, `/\`)
	if i := strings.LastIndexAny(fn, `/\`); i >= 0 {
		fn = fn[i+1:]
	}
	if fn == "." || fn == ".." {
		return ""
	}
	return fn
}
