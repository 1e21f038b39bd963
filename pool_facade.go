package influxpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	client "github.com/influxdata/influxdb1-client/v2"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/sasha-s/go-deadlock"
)

// PoolFacade keeps one pool per server, database and credentials. When more
// than maxPools pools are needed the least recently used one is closed.
type PoolFacade struct {
	pools    cmap.ConcurrentMap //ConnectionManager.ID() -> *Pool[*Client]
	lruCache *lru.Cache
	builder  Builder[*Client]
	maxPools int

	closed atomic.Bool
	mu     deadlock.Mutex // serializes pool creation

	logger *slog.Logger
}

// NewPoolFacade creates an empty facade. Every pool is built with builder.
func NewPoolFacade(maxPools int, builder *Builder[*Client]) (*PoolFacade, error) {
	if maxPools <= 0 {
		return nil, fmt.Errorf("%w: max pools %d", ErrInvalidPoolConfig, maxPools)
	}
	if builder == nil {
		builder = NewBuilder[*Client]()
	}

	poolFacade := &PoolFacade{
		pools:    cmap.New(),
		builder:  *builder,
		maxPools: maxPools,
		logger:   builder.logger,
	}

	lruCache, err := lru.NewWithEvict(maxPools, poolFacade.onEvicted)
	if err != nil {
		return nil, err
	}
	poolFacade.lruCache = lruCache
	return poolFacade, nil
}

func (poolFacade *PoolFacade) onEvicted(key, value interface{}) {
	poolFacade.pools.Remove(key.(string))
	pool := value.(*Pool[*Client])
	poolFacade.logger.Info("closing least recently used pool", "pool", pool.ID())
	// Close waits for checked out connections.
	go pool.Close()
}

// Pool returns the pool for manager, creating it if it does not exist yet
func (poolFacade *PoolFacade) Pool(manager *ConnectionManager) (*Pool[*Client], error) {
	if poolFacade.closed.Load() {
		return nil, ErrPoolFacadeClosed
	}

	id := manager.ID()
	if pool, ok := poolFacade.lookup(id); ok {
		poolFacade.lruCache.Get(id)
		return pool, nil
	}

	poolFacade.mu.Lock()
	defer poolFacade.mu.Unlock()

	if poolFacade.closed.Load() {
		return nil, ErrPoolFacadeClosed
	}
	if pool, ok := poolFacade.lookup(id); ok {
		poolFacade.lruCache.Get(id)
		return pool, nil
	}

	pool, err := poolFacade.builder.Build(manager)
	if err != nil {
		return nil, err
	}
	poolFacade.pools.Set(id, pool)
	poolFacade.lruCache.Add(id, pool)
	poolFacade.logger.Info("pool created", "pool", pool.ID(), "addr", manager.Address(), "database", manager.Database())
	return pool, nil
}

func (poolFacade *PoolFacade) lookup(id string) (*Pool[*Client], bool) {
	tmp, ok := poolFacade.pools.Get(id)
	if !ok {
		return nil, false
	}
	return tmp.(*Pool[*Client]), true
}

// Get checks out a connection to the server described by manager
func (poolFacade *PoolFacade) Get(ctx context.Context, manager *ConnectionManager) (*PooledConn[*Client], error) {
	pool, err := poolFacade.Pool(manager)
	if err != nil {
		return nil, err
	}
	return pool.Get(ctx)
}

// Query runs an InfluxQL command on a pooled connection.
func (poolFacade *PoolFacade) Query(ctx context.Context, manager *ConnectionManager, command string) ([]client.Result, error) {
	conn, err := poolFacade.Get(ctx, manager)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	return conn.Conn().Query(ctx, command)
}

// Ping checks out a connection and pings the server with it. When the pool
// tests connections on checkout that ping already happened in Get.
func (poolFacade *PoolFacade) Ping(ctx context.Context, manager *ConnectionManager) error {
	conn, err := poolFacade.Get(ctx, manager)
	if err != nil {
		return err
	}
	defer conn.Release()

	if conn.pool.testOnCheckOut {
		return nil
	}
	return manager.IsValid(ctx, conn.Conn())
}

// Len returns the number of open pools
func (poolFacade *PoolFacade) Len() int {
	return poolFacade.pools.Count()
}

// Close closes every pool and rejects new requests
func (poolFacade *PoolFacade) Close() {
	poolFacade.mu.Lock()
	defer poolFacade.mu.Unlock()

	if poolFacade.closed.Swap(true) {
		return
	}
	poolFacade.lruCache.Purge()
}

// PoolFacadeStats sums the state of every pool
type PoolFacadeStats struct {
	NumPools            int
	Connections         int
	IdleConnections     int
	AcquiredConnections int
	ValidationFailures  int64
}

func (poolFacade *PoolFacade) Stats() PoolFacadeStats {
	result := PoolFacadeStats{}
	for tuple := range poolFacade.pools.IterBuffered() {
		state := tuple.Val.(*Pool[*Client]).State()
		result.NumPools++
		result.Connections += int(state.Connections)
		result.IdleConnections += int(state.IdleConnections)
		result.AcquiredConnections += int(state.AcquiredConnections)
		result.ValidationFailures += state.ValidationFailures
	}
	return result
}

// StatsOfAllPools returns the state of every pool keyed by pool ID
func (poolFacade *PoolFacade) StatsOfAllPools() map[string]State {
	stats := make(map[string]State, poolFacade.pools.Count())
	for tuple := range poolFacade.pools.IterBuffered() {
		pool := tuple.Val.(*Pool[*Client])
		stats[pool.ID()] = pool.State()
	}
	return stats
}
