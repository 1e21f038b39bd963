package influxpool

import (
	"context"
	"fmt"
	"time"
)

// ManageConnection is the set of callbacks a pool needs to create, validate
// and recycle connections of type C.
type ManageConnection[C any] interface {
	// Connect opens a new connection.
	Connect(ctx context.Context) (C, error)
	// IsValid reports whether conn is still usable.
	IsValid(ctx context.Context, conn C) error
	// HasBroken reports whether conn must be dropped instead of reused.
	HasBroken(ctx context.Context, conn C) bool
}

var _ ManageConnection[*Client] = (*ConnectionManager)(nil)

// ConnectionManager encapsulates the InfluxDB connection properties. It is
// immutable and safe for concurrent use.
type ConnectionManager struct {
	host           string
	port           uint16
	database       string
	credentials    *Credentials
	requestTimeout time.Duration
}

// NewConnectionManager creates a connection manager without authentication.
// Nothing is validated here; a bad host or port only shows up when a
// connection is used.
func NewConnectionManager(host string, port uint16, database string) *ConnectionManager {
	return &ConnectionManager{
		host:           host,
		port:           port,
		database:       database,
		requestTimeout: defaultRequestTimeout,
	}
}

// NewConnectionManagerWithAuthentication creates a connection manager whose
// connections authenticate with credentials.
func NewConnectionManagerWithAuthentication(host string, port uint16, database string, credentials Credentials) *ConnectionManager {
	return &ConnectionManager{
		host:           host,
		port:           port,
		database:       database,
		credentials:    &credentials,
		requestTimeout: defaultRequestTimeout,
	}
}

// WithRequestTimeout returns a copy of the manager whose clients give up on
// a single HTTP request after timeout.
func (m *ConnectionManager) WithRequestTimeout(timeout time.Duration) *ConnectionManager {
	clone := *m
	clone.requestTimeout = timeout
	return &clone
}

// ForDatabase returns a copy of the manager bound to database.
func (m *ConnectionManager) ForDatabase(database string) *ConnectionManager {
	clone := *m
	clone.database = database
	return &clone
}

// Address returns the server address. Host is used verbatim.
func (m *ConnectionManager) Address() string {
	return fmt.Sprintf("http://%s:%d", m.host, m.port)
}

func (m *ConnectionManager) Database() string {
	return m.database
}

func (m *ConnectionManager) Credentials() (Credentials, bool) {
	if m.credentials == nil {
		return Credentials{}, false
	}
	return *m.credentials, true
}

func (m *ConnectionManager) RequestTimeout() time.Duration {
	return m.requestTimeout
}

// ID identifies the address, database and credentials of the manager.
// Managers built from identical parameters share an ID. The request timeout
// is not part of it.
func (m *ConnectionManager) ID() string {
	id := fmt.Sprintf("%q:%d/%q", m.host, m.port, m.database)
	if m.credentials != nil {
		id += "?auth=" + m.credentials.GetId()
	}
	return id
}

// ConnectNew builds a client for the configured server. It does no I/O.
func (m *ConnectionManager) ConnectNew() *Client {
	conn := NewClient(m.Address(), m.database).SetTimeout(m.requestTimeout)
	if m.credentials != nil {
		return conn.SetAuthentication(m.credentials.Username, m.credentials.Password)
	}
	return conn
}

// Connect never fails: creating a client does not reach the server.
func (m *ConnectionManager) Connect(ctx context.Context) (*Client, error) {
	return m.ConnectNew(), nil
}

// IsValid pings the server through conn.
func (m *ConnectionManager) IsValid(ctx context.Context, conn *Client) error {
	if err := conn.Ping(ctx); err != nil {
		return ErrConnection
	}
	return nil
}

func (m *ConnectionManager) HasBroken(ctx context.Context, conn *Client) bool {
	return m.IsValid(ctx, conn) != nil
}
