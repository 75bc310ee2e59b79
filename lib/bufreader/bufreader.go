package bufreader

import (
	"bytes"
	"errors"
	"io"
)

var ErrDelimNotFound = errors.New("bufreader: delimiter not found")

const defaultBufSize = 4096

const maxConsecutiveEmptyReads = 100

// BufReader is pull-based reader over raw byte stream,
// supporting line reads and fixed-size chunk reads.
// Errors of underlying reader are queued and returned after buffered data.
type BufReader struct {
	u    io.Reader
	b    []byte
	w, r int
	err  error
}

func NewBufReader(u io.Reader) *BufReader {
	return &BufReader{u: u, b: make([]byte, defaultBufSize)}
}

func NewBufReaderSize(u io.Reader, s int) *BufReader {
	if s <= 0 {
		panic("size must be >0\n")
	}
	return &BufReader{u: u, b: make([]byte, s)}
}

func (r *BufReader) readErr() (err error) {
	err = r.err
	r.err = nil
	return
}

// fill refills empty internal buffer
func (r *BufReader) fill() error {
	r.r = 0
	r.w = 0
	for i := 0; i < maxConsecutiveEmptyReads; i++ {
		if r.err != nil {
			return r.readErr()
		}
		var x int
		x, r.err = r.u.Read(r.b)
		if x > 0 {
			r.w = x
			return nil
		}
	}
	return io.ErrNoProgress
}

// implements io.Reader interface
func (r *BufReader) Read(p []byte) (n int, _ error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.r == r.w {
		if r.err != nil {
			return 0, r.readErr()
		}
		if len(p) >= len(r.b) {
			// direct read
			return r.u.Read(p)
		}
		if e := r.fill(); e != nil {
			return 0, e
		}
	}
	n = copy(p, r.b[r.r:r.w])
	r.r += n
	return
}

// ReadLine appends bytes upto and including '\n' to dst.
// If stream ends before '\n', partial line is appended and error is returned (usually io.EOF).
// If limit > 0 and '\n' was not found within limit bytes, these bytes are appended
// and ErrDelimNotFound is returned.
func (r *BufReader) ReadLine(dst []byte, limit int) ([]byte, error) {
	n := 0
	for {
		if r.r == r.w {
			if e := r.fill(); e != nil {
				return dst, e
			}
		}
		b := r.b[r.r:r.w]
		// clamp so that we don't scan bytes we won't be able to take
		if limit > 0 && len(b) > limit-n {
			b = b[:limit-n]
		}
		if i := bytes.IndexByte(b, '\n'); i >= 0 {
			dst = append(dst, b[:i+1]...)
			r.r += i + 1
			return dst, nil
		}
		dst = append(dst, b...)
		r.r += len(b)
		n += len(b)
		if limit > 0 && n >= limit {
			return dst, ErrDelimNotFound
		}
	}
}

// ReadChunk fills p completely unless stream ends or errors.
// Returns number of bytes put in p; error is non-nil only if p wasn't filled.
func (r *BufReader) ReadChunk(p []byte) (n int, _ error) {
	n = copy(p, r.b[r.r:r.w])
	r.r += n
	empty := 0
	for n < len(p) {
		if r.err != nil {
			return n, r.readErr()
		}
		if len(p)-n >= len(r.b) {
			// big enough to bypass our buffer
			var x int
			x, r.err = r.u.Read(p[n:])
			n += x
			if x > 0 {
				empty = 0
			} else if empty++; empty >= maxConsecutiveEmptyReads {
				return n, io.ErrNoProgress
			}
			continue
		}
		if e := r.fill(); e != nil {
			return n, e
		}
		x := copy(p[n:], r.b[r.r:r.w])
		r.r += x
		n += x
	}
	return n, nil
}

// Buffered returns data already read from underlying reader but not consumed yet.
func (r *BufReader) Buffered() []byte {
	return r.b[r.r:r.w]
}
