package http

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidProxy is returned by ParseProxy.
var ErrInvalidProxy = errors.New("http: invalid proxy")

// Proxy is an outbound proxy applied to every request.
type Proxy struct {
	Scheme string
	Host   string
	Port   int
}

// ParseProxy parses a proxy URL such as "http://127.0.0.1:7890".
// A missing scheme defaults to http; a missing port defaults to the
// scheme's well-known port.
func ParseProxy(raw string) (*Proxy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidProxy)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}

	p := &Proxy{Scheme: strings.ToLower(u.Scheme), Host: u.Hostname()}
	switch p.Scheme {
	case "http":
		p.Port = 80
	case "https":
		p.Port = 443
	case "socks5":
		p.Port = 1080
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}
	if p.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidProxy, raw)
	}

	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("%w: bad port %q", ErrInvalidProxy, port)
		}
		p.Port = n
	}

	return p, nil
}

// URL returns the proxy as a URL usable with http.ProxyURL.
func (p *Proxy) URL() *url.URL {
	return &url.URL{
		Scheme: p.Scheme,
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
}

func (p *Proxy) String() string {
	return p.URL().String()
}
