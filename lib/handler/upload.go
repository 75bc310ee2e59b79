package handler

import (
	"encoding/json"
	"net/http"

	"lfupload/lib/formdata"
	"lfupload/lib/logx"
	"lfupload/lib/textutils"
)

// maxReportedName bounds names echoed back in responses
const maxReportedName = 255

// Upload decodes multipart/form-data request bodies with formdata.
// Config.Env is ignored; request method and content type are injected per request.
type Upload struct {
	Config formdata.Config
	Logger logx.Logger

	// Process, if non-nil, is invoked with decoded parts before response is written.
	// Returned error fails request with 500.
	// Temporary files are removed once it returns, so it must move away anything it wants to keep.
	Process func(r *http.Request, parts formdata.Parts) error
	// Indent of JSON response, none if empty.
	Indent string
}

var _ http.Handler = (*Upload)(nil)

// PartInfo describes single decoded part in response.
type PartInfo struct {
	Name     string `json:"name"`
	FileName string `json:"filename,omitempty"`
	File     bool   `json:"file"`
	Size     int64  `json:"size"`
	Hash     string `json:"hash,omitempty"`
}

type Result struct {
	Parts []PartInfo `json:"parts,omitempty"`
	Error string     `json:"error,omitempty"`
}

// StatusFor maps formdata error kind to HTTP status code.
func StatusFor(err error) int {
	switch formdata.KindOf(err) {
	case nil:
		if err == nil {
			return http.StatusOK
		}
		return http.StatusInternalServerError
	case formdata.ErrMethod:
		return http.StatusMethodNotAllowed
	case formdata.ErrContentType, formdata.ErrBoundaryMissing:
		return http.StatusUnsupportedMediaType
	case formdata.ErrLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case formdata.ErrStreamFormat, formdata.ErrHeaderMalformed,
		formdata.ErrMissingName, formdata.ErrIncompleteStream:
		return http.StatusBadRequest
	default:
		// configuration, I/O, open
		return http.StatusInternalServerError
	}
}

func (h *Upload) log() logx.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return logx.NopLogger{}
}

func (h *Upload) reply(w http.ResponseWriter, code int, res *Result) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	if h.Indent != "" {
		enc.SetIndent("", h.Indent)
	}
	if err := enc.Encode(res); err != nil {
		h.log().LogPrintf(logx.WARN, "failed writing response: %v", err)
	}
}

func (h *Upload) fail(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	if code == http.StatusMethodNotAllowed {
		w.Header().Set("Allow", "POST")
	}
	lvl := logx.INFO
	if code >= 500 {
		lvl = logx.ERROR
	}
	h.log().LogPrintf(lvl, "upload failed (%d): %v", code, err)
	h.reply(w, code, &Result{Error: err.Error()})
}

func removeLeftover(log logx.Logger, err error) {
	for _, fn := range formdata.Leftover(err) {
		ps := formdata.Parts{{File: fn}}
		if e := ps.RemoveAll(); e != nil {
			log.LogPrintf(logx.WARN, "failed removing leftover %q: %v", fn, e)
		}
	}
}

func (h *Upload) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm != nil || r.PostForm != nil {
		h.fail(w, &formdata.Error{
			Kind:   formdata.ErrConfiguration,
			Detail: "request body was already parsed",
		})
		return
	}

	cfg := h.Config
	cfg.Env = map[string]string{
		"REQUEST_METHOD": r.Method,
		"CONTENT_TYPE":   r.Header.Get("Content-Type"),
	}
	if cfg.Logger == nil {
		cfg.Logger = h.Logger
	}

	u, err := formdata.New(cfg)
	if err != nil {
		h.fail(w, err)
		return
	}

	parts, err := u.Read(r.Body)
	if err != nil {
		removeLeftover(h.log(), err)
		h.fail(w, err)
		return
	}
	defer func() {
		if e := parts.RemoveAll(); e != nil {
			h.log().LogPrintf(logx.WARN, "failed removing uploaded files: %v", e)
		}
	}()

	if h.Process != nil {
		if err = h.Process(r, parts); err != nil {
			if formdata.KindOf(err) == nil {
				err = &formdata.Error{Kind: formdata.ErrIO, Detail: "processing upload", Err: err}
			}
			h.fail(w, err)
			return
		}
	}

	res := &Result{Parts: make([]PartInfo, len(parts))}
	for i, p := range parts {
		res.Parts[i] = PartInfo{
			Name:     textutils.TruncateText(p.Name(), maxReportedName),
			FileName: textutils.TruncateText(p.FileName(), maxReportedName),
			File:     p.IsFile(),
			Size:     p.Size,
			Hash:     p.Hash,
		}
	}
	h.log().LogPrintf(logx.INFO, "accepted upload of %d parts from %s", len(parts), r.RemoteAddr)
	h.reply(w, http.StatusOK, res)
}
