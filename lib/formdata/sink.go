package formdata

import (
	"bytes"
	"fmt"
	"os"

	"lfupload/lib/hashtools"
)

// sink consumes content runs flushed by scanner.
type sink interface {
	contentWriter
	// finish completes part, releasing resources
	finish(p *Part) error
	// abort releases resources after failure, keeping whatever was written
	abort()
}

// quota is remaining byte allowance; negative means unlimited.
type quota int64

func (q *quota) take(n int, what string) error {
	if *q < 0 {
		return nil
	}
	if int64(n) > int64(*q) {
		return newError(ErrLimitExceeded, what+" too big")
	}
	*q -= quota(n)
	return nil
}

type fieldSink struct {
	buf bytes.Buffer
	mem *quota // shared by all fields
}

func (s *fieldSink) write(b []byte) error {
	if err := s.mem.take(len(b), "form fields"); err != nil {
		return err
	}
	s.buf.Write(b)
	return nil
}

func (s *fieldSink) finish(p *Part) error {
	p.Content = s.buf.Bytes()
	if p.Content == nil {
		p.Content = []byte{}
	}
	p.Size = int64(len(p.Content))
	return nil
}

func (s *fieldSink) abort() {}

type fileSink struct {
	f      *os.File
	n      int64
	h      *hashtools.Hasher
	single quota
	all    *quota // shared by all files
}

func (s *fileSink) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := s.single.take(len(b), "file"); err != nil {
		return err
	}
	if err := s.all.take(len(b), "files"); err != nil {
		return err
	}
	if _, err := s.f.Write(b); err != nil {
		return wrapError(ErrIO, "writing temporary file", err)
	}
	if s.h != nil {
		s.h.Write(b)
	}
	s.n += int64(len(b))
	return nil
}

func (s *fileSink) finish(p *Part) error {
	name := s.f.Name()
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return wrapError(ErrIO, fmt.Sprintf("closing temporary file %q", name), err)
	}
	p.File = name
	p.Size = s.n
	if s.h != nil {
		p.Hash = s.h.String()
	}
	return nil
}

func (s *fileSink) abort() {
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
}

// discardSink eats content of parts nobody wants
type discardSink struct{}

func (discardSink) write([]byte) error { return nil }
func (discardSink) finish(*Part) error { return nil }
func (discardSink) abort() {}
