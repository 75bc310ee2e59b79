package formdata

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gobwas/glob"

	"lfupload/lib/fstore"
	"lfupload/lib/hashtools"
	"lfupload/lib/logx"
)

const tempPrefix = "lfu"

// Uploader decodes multipart/form-data bodies without buffering them whole.
// Its configuration is immutable; single Uploader may serve any number of
// Read calls, including concurrent ones.
type Uploader struct {
	env        map[string]string
	fs         fstore.FStore
	chunk      int
	limits     Limits
	fields     []glob.Glob
	fileFields []glob.Glob
	hashType   hashtools.HashType
	normalize  bool
	log        logx.Logger
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	gs := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, wrapError(ErrConfiguration, fmt.Sprintf("bad field pattern %q", p), err)
		}
		gs[i] = g
	}
	return gs, nil
}

func New(cfg Config) (*Uploader, error) {
	if cfg.Env == nil {
		return nil, newError(ErrConfiguration, "no environment supplied")
	}
	if cfg.ChunkSize < 0 {
		return nil, newError(ErrConfiguration, fmt.Sprintf("negative chunk size %d", cfg.ChunkSize))
	}
	if cfg.HashType != hashtools.None {
		if _, err := hashtools.NewHasher(cfg.HashType); err != nil {
			return nil, wrapError(ErrConfiguration, "bad hash type", err)
		}
	}

	u := &Uploader{
		env:       cfg.Env,
		chunk:     cfg.ChunkSize,
		limits:    cfg.Limits,
		hashType:  cfg.HashType,
		normalize: cfg.NormalizeFileNames,
		log:       cfg.Logger,
	}
	if u.chunk == 0 {
		u.chunk = DefaultChunkSize
	}
	if u.log == nil {
		u.log = logx.NopLogger{}
	}

	var err error
	if u.fields, err = compileGlobs(cfg.Fields); err != nil {
		return nil, err
	}
	if u.fileFields, err = compileGlobs(cfg.FileFields); err != nil {
		return nil, err
	}
	if u.fs, err = fstore.OpenFStore(cfg.TempDir); err != nil {
		return nil, wrapError(ErrConfiguration, "bad temporary directory", err)
	}

	return u, nil
}

// TempDir returns directory where file parts are stored.
func (u *Uploader) TempDir() string {
	return u.fs.Root()
}

// checkRequest validates request metadata and returns boundary token.
func (u *Uploader) checkRequest() (string, error) {
	if m := u.env[envMethod]; m != "POST" {
		return "", newError(ErrMethod, fmt.Sprintf("got %q", m))
	}
	return parseContentType(u.env[envContentType])
}

// ReadFile opens named file and decodes it as request body.
func (u *Uploader) ReadFile(name string) (Parts, error) {
	if _, err := u.checkRequest(); err != nil {
		return nil, err
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, wrapError(ErrStreamOpen, name, err)
	}
	return u.Read(f)
}

// Read decodes all parts of request body rc, which is always closed before return.
// On error no parts are returned; temporary files already created are listed
// in returned *Error's Leftover and must be removed by caller.
func (u *Uploader) Read(rc io.ReadCloser) (_ Parts, err error) {
	if rc == nil {
		return nil, newError(ErrStreamOpen, "nil input")
	}
	defer func() {
		if e := rc.Close(); e != nil {
			u.log.LogPrintf(logx.WARN, "failed closing input: %v", e)
		}
	}()

	token, err := u.checkRequest()
	if err != nil {
		u.log.LogPrintf(logx.INFO, "rejecting request: %v", err)
		return nil, err
	}

	st := &readState{
		u:  u,
		sc: newScanner(rc, token, u.chunk),
	}
	st.initQuotas()

	parts, err := st.run()
	if err != nil {
		var fe *Error
		if errors.As(err, &fe) {
			fe.Leftover = st.created
		}
		u.log.LogPrintf(logx.WARN,
			"failed at part %d: %v (%d temporary files left)",
			len(parts), err, len(st.created))
		return nil, err
	}
	u.log.LogPrintf(logx.DEBUG, "decoded %d parts", len(parts))
	return parts, nil
}

// readState holds everything single Read call owns.
type readState struct {
	u  *Uploader
	sc *scanner

	created []string

	mem        quota
	fileBytes  quota
	fieldsLeft int
	filesLeft  int
}

func limitQuota(n int64) quota {
	if n > 0 {
		return quota(n)
	}
	return -1
}

func (st *readState) initQuotas() {
	l := st.u.limits
	st.mem = limitQuota(l.MaxMemory)
	st.fileBytes = limitQuota(l.MaxFileAllSize)
	st.fieldsLeft = -1
	if l.MaxFields > 0 {
		st.fieldsLeft = l.MaxFields
	}
	st.filesLeft = -1
	if l.MaxFileCount > 0 {
		st.filesLeft = l.MaxFileCount
	}
}

func (st *readState) run() (parts Parts, err error) {
	for {
		var end bool
		end, err = st.sc.expectBoundary()
		if err != nil || end {
			return
		}
		var p Part
		var keep bool
		p, keep, err = st.readPart()
		if err != nil {
			return
		}
		if keep {
			parts = append(parts, p)
		}
	}
}

func matchAny(gs []glob.Glob, name string) bool {
	if gs == nil {
		return true
	}
	for _, g := range gs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func takeCount(left *int, what string) error {
	if *left < 0 {
		return nil
	}
	if *left == 0 {
		return newError(ErrLimitExceeded, "too many "+what)
	}
	*left--
	return nil
}

func (st *readState) newFileSink() (*fileSink, error) {
	f, err := st.u.fs.TempFile(tempPrefix, "")
	if err != nil {
		return nil, wrapError(ErrIO, "creating temporary file", err)
	}
	st.created = append(st.created, f.Name())
	s := &fileSink{
		f:      f,
		single: limitQuota(st.u.limits.MaxFileSingleSize),
		all:    &st.fileBytes,
	}
	if st.u.hashType != hashtools.None {
		// type was validated in New
		s.h, _ = hashtools.NewHasher(st.u.hashType)
	}
	return s, nil
}

func (st *readState) readPart() (p Part, keep bool, err error) {
	h, err := st.sc.readHeaders(st.u.limits.MaxHeaderBytes)
	if err != nil {
		return
	}
	isFile, err := finishHeaders(h, st.u.normalize)
	if err != nil {
		return
	}
	p.Headers = h
	name := p.Name()

	var s sink
	switch {
	case isFile && matchAny(st.u.fileFields, name):
		if err = takeCount(&st.filesLeft, "files"); err != nil {
			return
		}
		if s, err = st.newFileSink(); err != nil {
			return
		}
		keep = true
	case !isFile && matchAny(st.u.fields, name):
		if err = takeCount(&st.fieldsLeft, "fields"); err != nil {
			return
		}
		s = &fieldSink{mem: &st.mem}
		keep = true
	default:
		st.u.log.LogPrintf(logx.DEBUG, "skipping unwanted part %q", name)
		s = discardSink{}
	}

	if err = st.sc.readContent(s); err != nil {
		s.abort()
		return
	}
	if err = s.finish(&p); err != nil {
		return
	}
	if keep {
		st.u.log.LogPrintf(logx.DEBUG,
			"part %q: file=%v size=%d", name, p.IsFile(), p.Size)
	}
	return
}
