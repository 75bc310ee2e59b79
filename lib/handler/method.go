package handler

import (
	"net/http"
	"strings"
)

// Method dispatches by request method.
// Unknown methods get 405 with Allow header unless fallback is set.
type Method struct {
	methods  []string
	handlers []http.Handler
	fallback http.Handler
}

func NewMethod() *Method {
	return &Method{}
}

func (m *Method) has(method string) bool {
	for _, s := range m.methods {
		if s == method {
			return true
		}
	}
	return false
}

// Handle registers handler for method; first registration wins.
// Registering GET also covers HEAD.
func (m *Method) Handle(method string, handler http.Handler) *Method {
	um := strings.ToUpper(method)
	if !m.has(um) {
		m.methods = append(m.methods, um)
		m.handlers = append(m.handlers, handler)
		if um == http.MethodGet && !m.has(http.MethodHead) {
			m.methods = append(m.methods, http.MethodHead)
			m.handlers = append(m.handlers, handler)
		}
	}
	return m
}

func (m *Method) Fallback(handler http.Handler) *Method {
	m.fallback = handler
	return m
}

func (m *Method) allow() string {
	return strings.Join(append([]string{http.MethodOptions}, m.methods...), ", ")
}

func (m *Method) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for i, s := range m.methods {
		if r.Method == s {
			m.handlers[i].ServeHTTP(w, r)
			return
		}
	}
	switch {
	case r.Method == http.MethodOptions:
		w.Header().Set("Allow", m.allow())
		w.WriteHeader(http.StatusNoContent)
	case m.fallback != nil:
		m.fallback.ServeHTTP(w, r)
	default:
		w.Header().Set("Allow", m.allow())
		http.Error(w, "405 method not allowed", http.StatusMethodNotAllowed)
	}
}

var _ http.Handler = (*Method)(nil)
