package influxpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
)

// delay between two checkout attempts after a failed validation
const validationRetryDelay = 50 * time.Millisecond

// Pool keeps connections created by a ManageConnection for reuse.
type Pool[C any] struct {
	id        string
	manager   ManageConnection[C]
	resources *puddle.Pool[C]

	connectionTimeout time.Duration
	testOnCheckOut    bool
	idleTimeout       time.Duration
	maxLifetime       time.Duration

	validationFailures atomic.Int64
	expiredClosed      atomic.Int64

	logger *slog.Logger
}

// PooledConn is a connection checked out of a Pool. It must be given back
// with Release or Destroy.
type PooledConn[C any] struct {
	res      *puddle.Resource[C]
	pool     *Pool[C]
	returned atomic.Bool
}

func (p *Pool[C]) ID() string {
	return p.id
}

// TestsOnCheckOut reports whether Get validates connections before handing
// them out.
func (p *Pool[C]) TestsOnCheckOut() bool {
	return p.testOnCheckOut
}

// Get checks a connection out of the pool, creating one if none is idle.
// It waits at most the configured connection timeout.
func (p *Pool[C]) Get(ctx context.Context) (*PooledConn[C], error) {
	ctx, cancel := context.WithTimeout(ctx, p.connectionTimeout)
	defer cancel()

	var lastErr error
	for {
		res, err := p.resources.Acquire(ctx)
		if err != nil {
			return nil, acquireError(err, lastErr)
		}

		if p.expired(res) {
			p.expiredClosed.Add(1)
			res.Destroy()
			continue
		}

		if p.testOnCheckOut {
			if err := p.manager.IsValid(ctx, res.Value()); err != nil {
				p.validationFailures.Add(1)
				p.logger.Debug("connection failed validation on checkout", "error", err)
				res.Destroy()
				lastErr = err
				if !sleep(ctx, validationRetryDelay) {
					return nil, acquireError(ctx.Err(), lastErr)
				}
				continue
			}
		}

		return &PooledConn[C]{res: res, pool: p}, nil
	}
}

func (p *Pool[C]) expired(res *puddle.Resource[C]) bool {
	if p.idleTimeout > 0 && res.IdleDuration() > p.idleTimeout {
		return true
	}
	if p.maxLifetime > 0 && time.Since(res.CreationTime()) > p.maxLifetime {
		return true
	}
	return false
}

func acquireError(err, lastErr error) error {
	switch {
	case errors.Is(err, puddle.ErrClosedPool):
		return ErrPoolClosed
	case errors.Is(err, context.DeadlineExceeded):
		if lastErr != nil {
			return fmt.Errorf("%w: %w", ErrPoolTimeout, lastErr)
		}
		return ErrPoolTimeout
	default:
		return err
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close destroys every connection and makes further Get calls fail with
// ErrPoolClosed. It blocks until checked out connections are returned.
func (p *Pool[C]) Close() {
	p.resources.Close()
	p.logger.Info("pool closed")
}

// Conn returns the underlying connection.
func (c *PooledConn[C]) Conn() C {
	return c.res.Value()
}

// Release gives the connection back to the pool, or drops it if the
// manager reports it broken. Calling Release more than once is a no-op.
func (c *PooledConn[C]) Release() {
	if !c.returned.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.pool.connectionTimeout)
	defer cancel()
	if c.pool.manager.HasBroken(ctx, c.res.Value()) {
		c.pool.validationFailures.Add(1)
		c.pool.logger.Debug("dropping broken connection")
		c.res.Destroy()
		return
	}
	c.res.Release()
}

// Destroy drops the connection without returning it to the pool.
func (c *PooledConn[C]) Destroy() {
	if !c.returned.CompareAndSwap(false, true) {
		return
	}
	c.res.Destroy()
}
