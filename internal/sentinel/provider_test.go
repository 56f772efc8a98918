package sentinel

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	testUser  = "alice"
	testPass  = "secret"
	testCreds = testUser + ":" + testPass
)

// fakeProvider mimics the OData product endpoints for a single dataset.
type fakeProvider struct {
	mu sync.Mutex

	online        string
	triggerStatus int
	fetchStatus   int
	headers       map[string]string
	body          []byte

	onlineCalls int
	valueCalls  int
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if user, pass, ok := r.BasicAuth(); !ok || user != testUser || pass != testPass {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/Online/$value"):
		p.onlineCalls++
		_, _ = w.Write([]byte(p.online))
	case strings.HasSuffix(r.URL.Path, "/$value"):
		p.valueCalls++
		if p.online != "true" {
			w.WriteHeader(p.triggerStatus)
			_, _ = w.Write([]byte("trigger response"))
			return
		}
		for k, v := range p.headers {
			w.Header().Set(k, v)
		}
		status := p.fetchStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write(p.body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *fakeProvider) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onlineCalls, p.valueCalls
}

func startProvider(t *testing.T, p *fakeProvider) string {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return srv.URL + "/odata/v1"
}
