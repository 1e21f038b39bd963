package influxpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacade(t *testing.T, maxPools int) *PoolFacade {
	t.Helper()

	poolFacade, err := NewPoolFacade(maxPools, NewBuilder[*Client]().MaxSize(4).ConnectionTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(poolFacade.Close)
	return poolFacade
}

func TestNewPoolFacadeRejectsInvalidLimit(t *testing.T) {
	_, err := NewPoolFacade(0, nil)
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)
}

func TestPoolFacadeReusesPoolForEqualManagers(t *testing.T) {
	poolFacade := newTestFacade(t, 10)

	first, err := poolFacade.Pool(NewConnectionManager("localhost", 8086, "tutorial"))
	require.NoError(t, err)
	second, err := poolFacade.Pool(NewConnectionManager("localhost", 8086, "tutorial"))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, poolFacade.Len())
}

func TestPoolFacadeSeparatesCredentials(t *testing.T) {
	poolFacade := newTestFacade(t, 10)

	anonymous, err := poolFacade.Pool(NewConnectionManager("localhost", 8086, "tutorial"))
	require.NoError(t, err)
	authenticated, err := poolFacade.Pool(NewConnectionManagerWithAuthentication("localhost", 8086, "tutorial", NewCredentials("username", "password")))
	require.NoError(t, err)

	assert.NotSame(t, anonymous, authenticated)
	assert.Equal(t, 2, poolFacade.Len())
}

func TestPoolFacadeClosesLeastRecentlyUsedPool(t *testing.T) {
	poolFacade := newTestFacade(t, 2)
	host, port := closedAddr(t)

	first, err := poolFacade.Pool(NewConnectionManager(host, port, "db1"))
	require.NoError(t, err)
	second, err := poolFacade.Pool(NewConnectionManager(host, port, "db2"))
	require.NoError(t, err)

	// db1 becomes the most recently used
	again, err := poolFacade.Pool(NewConnectionManager(host, port, "db1"))
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = poolFacade.Pool(NewConnectionManager(host, port, "db3"))
	require.NoError(t, err)

	assert.Equal(t, 2, poolFacade.Len())
	assert.Eventually(t, func() bool {
		_, err := second.Get(context.Background())
		return err == ErrPoolClosed
	}, 5*time.Second, 10*time.Millisecond)

	reopened, err := poolFacade.Pool(NewConnectionManager(host, port, "db2"))
	require.NoError(t, err)
	assert.NotSame(t, second, reopened)
}

func TestPoolFacadeQueryAndPing(t *testing.T) {
	fake := newFakeInflux(t)
	poolFacade := newTestFacade(t, 10)
	manager := fake.manager(t, "tutorial")

	require.NoError(t, poolFacade.Ping(context.Background(), manager))

	results, err := poolFacade.Query(context.Background(), manager, "SELECT value FROM cpu")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cpu", results[0].Series[0].Name)

	stats := poolFacade.Stats()
	assert.Equal(t, 1, stats.NumPools)
	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, 1, stats.IdleConnections)
	assert.Equal(t, 0, stats.AcquiredConnections)

	all := poolFacade.StatsOfAllPools()
	assert.Len(t, all, 1)
}

func TestPoolFacadePingSendsOnePingPerStep(t *testing.T) {
	for _, testOnCheckOut := range []bool{true, false} {
		fake := newFakeInflux(t)
		poolFacade, err := NewPoolFacade(4, NewBuilder[*Client]().TestOnCheckOut(testOnCheckOut).ConnectionTimeout(time.Second))
		require.NoError(t, err)

		require.NoError(t, poolFacade.Ping(context.Background(), fake.manager(t, "tutorial")))
		// one ping to check the connection, one when it is released
		assert.Equal(t, 2, fake.count("/ping"), "testOnCheckOut=%v", testOnCheckOut)
		poolFacade.Close()
	}
}

func TestPoolFacadeKeepsAnonymousAndAuthenticatedApart(t *testing.T) {
	poolFacade := newTestFacade(t, 10)

	anonymous, err := poolFacade.Pool(NewConnectionManager("localhost", 8086, "db\x00u\x00p"))
	require.NoError(t, err)
	authenticated, err := poolFacade.Pool(NewConnectionManagerWithAuthentication("localhost", 8086, "db", NewCredentials("u", "p")))
	require.NoError(t, err)

	assert.NotSame(t, anonymous, authenticated)
}

func TestPoolFacadePingUnreachableServer(t *testing.T) {
	poolFacade := newTestFacade(t, 10)

	err := poolFacade.Ping(context.Background(), unreachableManager(t))
	assert.ErrorIs(t, err, ErrPoolTimeout)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Positive(t, poolFacade.Stats().ValidationFailures)
}

func TestPoolFacadeGet(t *testing.T) {
	fake := newFakeInflux(t)
	poolFacade := newTestFacade(t, 10)

	conn, err := poolFacade.Get(context.Background(), fake.manager(t, "tutorial"))
	require.NoError(t, err)
	assert.Equal(t, "tutorial", conn.Conn().Database())
	assert.Equal(t, 1, poolFacade.Stats().AcquiredConnections)
	conn.Release()
}

func TestPoolFacadeClose(t *testing.T) {
	poolFacade := newTestFacade(t, 10)
	manager := unreachableManager(t)

	pool, err := poolFacade.Pool(manager)
	require.NoError(t, err)

	poolFacade.Close()
	poolFacade.Close()

	assert.Equal(t, 0, poolFacade.Len())
	_, err = poolFacade.Pool(manager)
	assert.ErrorIs(t, err, ErrPoolFacadeClosed)
	_, err = poolFacade.Query(context.Background(), manager, "SHOW DATABASES")
	assert.ErrorIs(t, err, ErrPoolFacadeClosed)

	assert.Eventually(t, func() bool {
		_, err := pool.Get(context.Background())
		return err == ErrPoolClosed
	}, 5*time.Second, 10*time.Millisecond)
}
