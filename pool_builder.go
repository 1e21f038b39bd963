package influxpool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/puddle/v2"
)

const (
	defaultMaxSize           = 10
	defaultConnectionTimeout = 30 * time.Second
	defaultIdleTimeout       = 10 * time.Minute
	defaultMaxLifetime       = 30 * time.Minute
)

// Builder configures a Pool. Zero IdleTimeout or MaxLifetime disables the
// corresponding check.
type Builder[C any] struct {
	maxSize           int
	minIdle           int
	connectionTimeout time.Duration
	testOnCheckOut    bool
	idleTimeout       time.Duration
	maxLifetime       time.Duration
	logger            *slog.Logger
}

func NewBuilder[C any]() *Builder[C] {
	return &Builder[C]{
		maxSize:           defaultMaxSize,
		connectionTimeout: defaultConnectionTimeout,
		testOnCheckOut:    true,
		idleTimeout:       defaultIdleTimeout,
		maxLifetime:       defaultMaxLifetime,
		logger:            slog.New(slog.DiscardHandler),
	}
}

// MaxSize sets the maximum number of connections, idle and in use.
func (b *Builder[C]) MaxSize(n int) *Builder[C] {
	b.maxSize = n
	return b
}

// MinIdle sets the number of connections opened when the pool is built.
func (b *Builder[C]) MinIdle(n int) *Builder[C] {
	b.minIdle = n
	return b
}

// ConnectionTimeout bounds how long Get waits for a usable connection.
func (b *Builder[C]) ConnectionTimeout(d time.Duration) *Builder[C] {
	b.connectionTimeout = d
	return b
}

// TestOnCheckOut makes Get validate a connection before handing it out.
func (b *Builder[C]) TestOnCheckOut(test bool) *Builder[C] {
	b.testOnCheckOut = test
	return b
}

func (b *Builder[C]) IdleTimeout(d time.Duration) *Builder[C] {
	b.idleTimeout = d
	return b
}

func (b *Builder[C]) MaxLifetime(d time.Duration) *Builder[C] {
	b.maxLifetime = d
	return b
}

func (b *Builder[C]) Logger(logger *slog.Logger) *Builder[C] {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Build creates a pool over manager and opens MinIdle connections.
func (b *Builder[C]) Build(manager ManageConnection[C]) (*Pool[C], error) {
	if b.maxSize < 1 || b.minIdle < 0 || b.minIdle > b.maxSize {
		return nil, fmt.Errorf("%w: max size %d, min idle %d", ErrInvalidPoolConfig, b.maxSize, b.minIdle)
	}
	if b.connectionTimeout <= 0 {
		return nil, fmt.Errorf("%w: connection timeout %v", ErrInvalidPoolConfig, b.connectionTimeout)
	}
	if manager == nil {
		return nil, fmt.Errorf("%w: nil manager", ErrInvalidPoolConfig)
	}

	id := uuid.NewString()
	logger := b.logger.With("pool", id)

	resources, err := puddle.NewPool(&puddle.Config[C]{
		Constructor: manager.Connect,
		Destructor: func(conn C) {
			if closer, ok := any(conn).(io.Closer); ok {
				if err := closer.Close(); err != nil {
					logger.Debug("close connection", "error", err)
				}
			}
		},
		MaxSize: int32(b.maxSize),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPoolConfig, err)
	}

	pool := &Pool[C]{
		id:                id,
		manager:           manager,
		resources:         resources,
		connectionTimeout: b.connectionTimeout,
		testOnCheckOut:    b.testOnCheckOut,
		idleTimeout:       b.idleTimeout,
		maxLifetime:       b.maxLifetime,
		logger:            logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.connectionTimeout)
	defer cancel()
	for range b.minIdle {
		if err := resources.CreateResource(ctx); err != nil {
			resources.Close()
			return nil, fmt.Errorf("manager is not able to fill the pool: %w", err)
		}
	}

	logger.Info("pool built",
		"max_size", b.maxSize,
		"min_idle", b.minIdle,
		"connection_timeout", b.connectionTimeout,
		"test_on_check_out", b.testOnCheckOut,
	)
	return pool, nil
}
