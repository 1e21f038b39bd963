package influxpool

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeInflux answers the endpoints of an InfluxDB 1.x server used by the
// client. Requests are recorded for assertions.
type fakeInflux struct {
	*httptest.Server

	healthy atomic.Bool

	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	path     string
	database string
	command  string
	username string
	password string
	body     string
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()

	fake := &fakeInflux{}
	fake.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		fake.record(r, "")
		if !fake.healthy.Load() {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Influxdb-Version", "1.8.10")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		fake.record(r, "")
		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("q") == "BROKEN" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"error parsing query: found BROKEN"}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"statement_id":0,"series":[{"name":"cpu","columns":["time","value"],"values":[["2020-01-01T00:00:00Z",1]]}]}]}`))
	})
	mux.HandleFunc("/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fake.record(r, string(body))
		w.WriteHeader(http.StatusNoContent)
	})

	fake.Server = httptest.NewServer(mux)
	t.Cleanup(fake.Close)
	return fake
}

func (f *fakeInflux) record(r *http.Request, body string) {
	username, password, _ := r.BasicAuth()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{
		path:     r.URL.Path,
		database: r.FormValue("db"),
		command:  r.FormValue("q"),
		username: username,
		password: password,
		body:     body,
	})
}

func (f *fakeInflux) lastRequest(path string) (recordedRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].path == path {
			return f.requests[i], true
		}
	}
	return recordedRequest{}, false
}

func (f *fakeInflux) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, request := range f.requests {
		if request.path == path {
			n++
		}
	}
	return n
}

// newHangingServer accepts requests and never answers them.
func newHangingServer(t *testing.T) *httptest.Server {
	t.Helper()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	return server
}

func hostPort(t *testing.T, rawURL string) (string, uint16) {
	t.Helper()

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.ParseUint(u.Port(), 10, 16)
	require.NoError(t, err)
	return u.Hostname(), uint16(port)
}

func (f *fakeInflux) manager(t *testing.T, database string) *ConnectionManager {
	host, port := hostPort(t, f.URL)
	return NewConnectionManager(host, port, database)
}

// closedAddr returns a host and port nothing listens on.
func closedAddr(t *testing.T) (string, uint16) {
	t.Helper()

	server := httptest.NewServer(http.NotFoundHandler())
	host, port := hostPort(t, server.URL)
	server.Close()
	return host, port
}

func unreachableManager(t *testing.T) *ConnectionManager {
	host, port := closedAddr(t)
	return NewConnectionManager(host, port, "tutorial")
}

type fakeConn struct {
	id     int64
	broken atomic.Bool
	closed atomic.Bool
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeManager struct {
	next       atomic.Int64
	connectErr error
}

func (m *fakeManager) Connect(ctx context.Context) (*fakeConn, error) {
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return &fakeConn{id: m.next.Add(1)}, nil
}

func (m *fakeManager) IsValid(ctx context.Context, conn *fakeConn) error {
	if conn.broken.Load() {
		return ErrConnection
	}
	return nil
}

func (m *fakeManager) HasBroken(ctx context.Context, conn *fakeConn) bool {
	return m.IsValid(ctx, conn) != nil
}
