package xdialer

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/xerrors"
)

type Dialer = proxy.Dialer

func direct() *net.Dialer {
	return &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
}

// ProxyDialer builds dialer out of chain of socks5 proxies, each next one
// nested in path of previous, e.g. socks5://127.0.0.1:9050/socks5://10.1.1.1:1080.
// First proxy is connected to directly. Empty chain means direct connections.
func ProxyDialer(chain string) (d Dialer, err error) {
	d = direct()
	for chain != "" {
		u, e := url.Parse(chain)
		if e != nil {
			return nil, xerrors.Errorf("bad proxy URL %q: %w", chain, e)
		}
		if u.Scheme != "socks" && u.Scheme != "socks5" {
			return nil, xerrors.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return nil, xerrors.Errorf("no host in proxy URL %q", chain)
		}
		var a *proxy.Auth
		if u.User != nil {
			a = &proxy.Auth{User: u.User.Username()}
			a.Password, _ = u.User.Password()
		}
		d, e = proxy.SOCKS5("tcp", u.Host, a, d)
		if e != nil {
			return nil, xerrors.Errorf("SOCKS5 error: %w", e)
		}
		chain = strings.TrimPrefix(u.Path, "/")
	}
	return
}

func dialContext(d Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

// HTTPClient returns client making all connections through d.
func HTTPClient(d Dialer) *http.Client {
	tr := &http.Transport{
		DialContext:           dialContext(d),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: tr}
}
