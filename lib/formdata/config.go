package formdata

import (
	"errors"
	"mime"
	"os"
	"strings"

	"lfupload/lib/hashtools"
	"lfupload/lib/logx"
)

const DefaultChunkSize = 8192

// Limits bound resources one Read may consume. Zero values mean unlimited.
type Limits struct {
	MaxHeaderBytes    int   // single part header block
	MaxMemory         int64 // all field contents together
	MaxFields         int
	MaxFileCount      int
	MaxFileSingleSize int64
	MaxFileAllSize    int64
}

// DefaultLimits are reasonable for public facing servers.
var DefaultLimits = Limits{
	MaxHeaderBytes: 16 * 1024,
	MaxMemory:      1024 * 1024,
	MaxFields:      1024,
	MaxFileCount:   256,
}

type Config struct {
	// Env must contain REQUEST_METHOD and CONTENT_TYPE.
	Env map[string]string
	// TempDir receives file parts; empty means os.TempDir().
	TempDir string
	// ChunkSize is maximum size of single read from input; 0 means DefaultChunkSize.
	ChunkSize int

	Limits Limits

	// Fields and FileFields are glob patterns of accepted part names.
	// Empty list accepts everything; not accepted parts are skipped.
	Fields     []string
	FileFields []string

	// HashType, if not None, makes file parts carry content hash.
	HashType hashtools.HashType

	// NormalizeFileNames applies NFC and drops control characters in filenames.
	NormalizeFileNames bool

	Logger logx.Logger
}

const (
	envMethod      = "REQUEST_METHOD"
	envContentType = "CONTENT_TYPE"

	mediaFormData = "multipart/form-data"
)

// EnvFromOS builds environment map from process environment, as CGI would see.
func EnvFromOS() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

// parseContentType extracts boundary token from declared content type.
func parseContentType(ct string) (string, error) {
	mt, params, err := mime.ParseMediaType(ct)
	if mt != mediaFormData {
		if err != nil {
			return "", wrapError(ErrContentType, ct, err)
		}
		return "", newError(ErrContentType, ct)
	}
	if err != nil {
		if errors.Is(err, mime.ErrInvalidMediaParameter) && !hasBoundaryParam(ct) {
			return "", newError(ErrBoundaryMissing, ct)
		}
		return "", wrapError(ErrContentType, ct, err)
	}
	b := params["boundary"]
	if b == "" {
		return "", newError(ErrBoundaryMissing, ct)
	}
	return b, nil
}

// hasBoundaryParam reports whether non-empty boundary parameter is spelled out
func hasBoundaryParam(ct string) bool {
	for _, p := range strings.Split(ct, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), "boundary") && strings.Trim(v, "\" \t") != "" {
			return true
		}
	}
	return false
}
