package influxpool

import (
	"context"
	"sync"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
)

const (
	defaultPrecision = "ns"

	// bound on a single HTTP request to the server
	defaultRequestTimeout = 30 * time.Second
)

// Client is a connection to a single InfluxDB database. The HTTP client
// behind it is created on first use, so constructing a Client never fails
// and never touches the network.
type Client struct {
	addr        string
	database    string
	credentials *Credentials
	timeout     time.Duration

	once    sync.Once
	http    client.Client
	httpErr error
}

// NewClient returns a client bound to addr and database.
func NewClient(addr, database string) *Client {
	return &Client{addr: addr, database: database, timeout: defaultRequestTimeout}
}

// SetAuthentication attaches credentials sent as HTTP basic auth. It must be
// called before the client is used.
func (c *Client) SetAuthentication(username, password string) *Client {
	credentials := NewCredentials(username, password)
	c.credentials = &credentials
	return c
}

// SetTimeout bounds every HTTP request made by the client. A request
// abandoned by its context still runs until this timeout. It must be called
// before the client is used.
func (c *Client) SetTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Database() string {
	return c.database
}

// Credentials reports the credentials attached to the client, if any.
func (c *Client) Credentials() (Credentials, bool) {
	if c.credentials == nil {
		return Credentials{}, false
	}
	return *c.credentials, true
}

func (c *Client) backend() (client.Client, error) {
	c.once.Do(func() {
		conf := client.HTTPConfig{Addr: c.addr, Timeout: c.timeout}
		if c.credentials != nil {
			conf.Username = c.credentials.Username
			conf.Password = c.credentials.Password
		}
		c.http, c.httpErr = client.NewHTTPClient(conf)
	})
	return c.http, c.httpErr
}

// Ping checks that the server answers on /ping.
func (c *Client) Ping(ctx context.Context) error {
	backend, err := c.backend()
	if err != nil {
		return err
	}
	return wait(ctx, func() error {
		_, _, err := backend.Ping(0)
		return err
	})
}

// Query runs an InfluxQL command against the bound database.
func (c *Client) Query(ctx context.Context, command string) ([]client.Result, error) {
	backend, err := c.backend()
	if err != nil {
		return nil, err
	}

	var results []client.Result
	err = wait(ctx, func() error {
		response, err := backend.Query(client.NewQuery(command, c.database, defaultPrecision))
		if err != nil {
			return err
		}
		if err := response.Error(); err != nil {
			return err
		}
		results = response.Results
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Write stores points in the bound database as one batch.
func (c *Client) Write(ctx context.Context, points ...*client.Point) error {
	backend, err := c.backend()
	if err != nil {
		return err
	}

	batch, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  c.database,
		Precision: defaultPrecision,
	})
	if err != nil {
		return err
	}
	batch.AddPoints(points)

	return wait(ctx, func() error {
		return backend.Write(batch)
	})
}

// Close releases idle sockets of the underlying HTTP client.
func (c *Client) Close() error {
	if c.http == nil {
		return nil
	}
	return c.http.Close()
}

// wait runs fn and returns its result, or ctx.Err() if ctx is done first.
// fn keeps running in the background after ctx is done, until the request
// timeout of the client ends it.
func wait(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
