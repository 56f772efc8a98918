package sentinel

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/publicsuffix"
)

// SessionOptions configures the HTTP session opened for one job.
type SessionOptions struct {
	// ConnectTimeout bounds TCP connection setup. Zero means no limit.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for response headers. Zero means no limit.
	ReadTimeout time.Duration

	// Timeout bounds a whole request including the body. Zero means no limit,
	// which is what large product downloads normally want.
	Timeout time.Duration

	// Transport overrides the session-owned transport.
	Transport http.RoundTripper

	// OnClose is invoked once when the session is released.
	OnClose func()
}

// Session is an authenticated HTTP session scoped to a single download job.
type Session struct {
	client   *http.Client
	owned    *http.Transport
	user     string
	password string
	onClose  func()

	closeOnce sync.Once
	closed    atomic.Bool
}

// ParseCredentials splits a "user:password" pair. The password may contain colons.
func ParseCredentials(credentials string) (string, string, error) {
	user, password, ok := strings.Cut(credentials, ":")
	if !ok || strings.TrimSpace(user) == "" {
		return "", "", ErrBadCredentials
	}
	return user, password, nil
}

// OpenSession builds a session that applies basic auth to every request.
// The caller must Close it on every exit path.
func OpenSession(credentials string, opts SessionOptions) (*Session, error) {
	user, password, err := ParseCredentials(credentials)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	s := &Session{
		user:     user,
		password: password,
		onClose:  opts.OnClose,
	}
	transport := opts.Transport
	if transport == nil {
		dialer := &net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}
		s.owned = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: opts.ReadTimeout,
			ExpectContinueTimeout: time.Second,
		}
		transport = s.owned
	}
	s.client = &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   opts.Timeout,
	}
	return s, nil
}

// Get issues an authenticated GET. Redirects are followed.
func (s *Session) Get(ctx context.Context, url string) (*http.Response, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(s.user, s.password)
	return s.client.Do(req)
}

// Close releases pooled connections. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.owned != nil {
			s.owned.CloseIdleConnections()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}
