package formdata

import (
	"errors"
	"strings"
)

// Error kinds. Returned errors are *Error values matching one of these via errors.Is.
var (
	ErrConfiguration    = errors.New("formdata: bad configuration")
	ErrMethod           = errors.New("formdata: request method is not POST")
	ErrContentType      = errors.New("formdata: bad content type")
	ErrBoundaryMissing  = errors.New("formdata: no boundary defined")
	ErrStreamOpen       = errors.New("formdata: unable to open input stream")
	ErrStreamFormat     = errors.New("formdata: malformed input stream")
	ErrHeaderMalformed  = errors.New("formdata: invalid MIME header")
	ErrMissingName      = errors.New("formdata: no 'name' header")
	ErrIncompleteStream = errors.New("formdata: input ended before terminal boundary")
	ErrIO               = errors.New("formdata: I/O error")
	ErrLimitExceeded    = errors.New("formdata: limit exceeded")
)

// Error carries kind, optional detail and optional underlying cause.
type Error struct {
	Kind   error
	Detail string
	Err    error
	// Leftover lists temporary files created before failure, for caller to clean up.
	Leftover []string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind. Header-level kinds are stream format violations too.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return target == ErrStreamFormat &&
		(e.Kind == ErrHeaderMalformed || e.Kind == ErrMissingName)
}

func newError(kind error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func wrapError(kind error, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns kind of err, or nil if err did not originate here.
func KindOf(err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return nil
}

// Leftover returns temporary files left behind by failed Read.
func Leftover(err error) []string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Leftover
	}
	return nil
}
