package formdata

import (
	"bytes"
	"errors"
	"io"

	"lfupload/lib/bufreader"
)

var errLineTooLong = errors.New("line too long")

const maxPaddingLine = 1024

// scanner owns parse buffer of single Read call.
// store[r:w] always holds exact next unconsumed bytes of input stream.
type scanner struct {
	src   *bufreader.BufReader
	store []byte
	r, w  int
	// boundary is "--"+token, delim is CRLF+boundary as found after content
	boundary []byte
	delim    []byte
	chunk    int
	eof      bool
	line     []byte // scratch for line reads
}

func newScanner(src io.Reader, token string, chunk int) *scanner {
	d := []byte("\r\n--" + token)
	return &scanner{
		src:      bufreader.NewBufReader(src),
		store:    make([]byte, chunk+len(d)),
		boundary: d[2:],
		delim:    d,
		chunk:    chunk,
	}
}

func (s *scanner) buffered() []byte {
	return s.store[s.r:s.w]
}

func (s *scanner) consume(n int) {
	s.r += n
	if s.r == s.w {
		s.r, s.w = 0, 0
	}
}

// reserve returns free space of n bytes just after buffered data,
// compacting or growing store if needed.
func (s *scanner) reserve(n int) []byte {
	if len(s.store)-s.w < n {
		if s.r != 0 {
			copy(s.store, s.store[s.r:s.w])
			s.w -= s.r
			s.r = 0
		}
		if len(s.store)-s.w < n {
			ns := make([]byte, s.w+n)
			copy(ns, s.store[:s.w])
			s.store = ns
		}
	}
	return s.store[s.w : s.w+n]
}

func (s *scanner) setReadErr(err error) error {
	if err == io.EOF {
		s.eof = true
		return nil
	}
	return wrapError(ErrIO, "reading input", err)
}

// appendLine reads single line (or limit bytes of it if limit > 0) from source into buffer.
func (s *scanner) appendLine(limit int) error {
	var err error
	s.line, err = s.src.ReadLine(s.line[:0], limit)
	copy(s.reserve(len(s.line)), s.line)
	s.w += len(s.line)
	if err == bufreader.ErrDelimNotFound {
		return nil
	}
	if err != nil {
		return s.setReadErr(err)
	}
	return nil
}

// nextLine consumes line and returns it without line terminator,
// along with count of consumed bytes.
// Returned slice is valid only until next read.
func (s *scanner) nextLine(limit int) (line []byte, n int, err error) {
	for {
		b := s.buffered()
		if i := bytes.IndexByte(b, '\n'); i >= 0 {
			if limit > 0 && i >= limit {
				return nil, 0, errLineTooLong
			}
			s.consume(i + 1)
			return trimEOL(b[:i+1]), i + 1, nil
		}
		if limit > 0 && len(b) >= limit {
			return nil, 0, errLineTooLong
		}
		if s.eof {
			return nil, 0, io.EOF
		}
		left := 0
		if limit > 0 {
			left = limit - len(b)
		}
		if err = s.appendLine(left); err != nil {
			return
		}
	}
}

func trimEOL(b []byte) []byte {
	if len(b) != 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
		if len(b) != 0 && b[len(b)-1] == '\r' {
			b = b[:len(b)-1]
		}
	}
	return b
}

// expectBoundary consumes boundary line preceding part.
// Returns true if terminal boundary was found instead; it and anything after is left unread.
func (s *scanner) expectBoundary() (end bool, err error) {
	need := len(s.boundary) + 2
	for s.w-s.r < need && !s.eof {
		if err = s.appendLine(need - (s.w - s.r)); err != nil {
			return
		}
	}

	b := s.buffered()
	if bytes.HasPrefix(b, s.boundary) && len(b) >= need &&
		b[need-2] == '-' && b[need-1] == '-' {

		return true, nil
	}
	if !bytes.HasPrefix(b, s.boundary) {
		if s.eof && bytes.HasPrefix(s.boundary, b) {
			return false, newError(ErrIncompleteStream, "input ended where boundary expected")
		}
		return false, newError(ErrStreamFormat, "input data does not continue with boundary")
	}
	s.consume(len(s.boundary))

	// only transport padding may follow boundary on its line
	line, _, err := s.nextLine(maxPaddingLine)
	if err != nil {
		switch err {
		case io.EOF:
			err = newError(ErrIncompleteStream, "input ended after boundary")
		case errLineTooLong:
			err = newError(ErrStreamFormat, "garbage after boundary")
		}
		return
	}
	if len(bytes.Trim(line, " \t")) != 0 {
		return false, newError(ErrStreamFormat, "garbage after boundary")
	}
	return false, nil
}

type contentWriter interface {
	write(b []byte) error
}

// readContent streams part content into w until delimiter.
// At most chunk bytes are read per iteration and prefix of buffer which provably
// doesn't contain delimiter start is flushed, so buffer stays bounded.
// On success buffer starts with boundary.
func (s *scanner) readContent(w contentWriter) error {
	for {
		if !s.eof {
			n, err := s.src.ReadChunk(s.reserve(s.chunk))
			s.w += n
			if err != nil {
				if err = s.setReadErr(err); err != nil {
					return err
				}
			}
		}

		b := s.buffered()
		if i := bytes.Index(b, s.delim); i >= 0 {
			if err := w.write(b[:i]); err != nil {
				return err
			}
			// keep boundary itself for expectBoundary
			s.consume(i + 2)
			return nil
		}
		if s.eof {
			return newError(ErrIncompleteStream, "input ended inside part content")
		}

		n := safeLen(b, s.delim)
		if n != 0 {
			if err := w.write(b[:n]); err != nil {
				return err
			}
			s.consume(n)
		}
	}
}

// safeLen returns length of longest prefix of b which can't contain start of delim.
// b must not contain complete delim.
func safeLen(b, delim []byte) int {
	i := len(b) - len(delim) + 1
	if i < 0 {
		i = 0
	}
	for i < len(b) {
		j := bytes.IndexByte(b[i:], delim[0])
		if j < 0 {
			break
		}
		i += j
		if bytes.HasPrefix(delim, b[i:]) {
			return i
		}
		i++
	}
	return len(b)
}
