package influxpool

import "time"

// State describes a pool at one point in time.
type State struct {
	// Pool status
	Connections         int32 // idle, in use and being created
	IdleConnections     int32
	AcquiredConnections int32
	MaxConnections      int32

	// Counters
	AcquireCount         int64         // successful checkouts from the underlying pool
	EmptyAcquireCount    int64         // checkouts that had to wait or create a connection
	CanceledAcquireCount int64         // checkouts abandoned because the context ended
	AcquireDuration      time.Duration // total time spent waiting in checkouts
	ValidationFailures   int64         // connections dropped because the manager rejected them
	ExpiredClosed        int64         // connections dropped for idle timeout or max lifetime
}

// State returns statistics of the pool.
func (p *Pool[C]) State() State {
	stat := p.resources.Stat()
	return State{
		Connections:          stat.TotalResources(),
		IdleConnections:      stat.IdleResources(),
		AcquiredConnections:  stat.AcquiredResources(),
		MaxConnections:       stat.MaxResources(),
		AcquireCount:         stat.AcquireCount(),
		EmptyAcquireCount:    stat.EmptyAcquireCount(),
		CanceledAcquireCount: stat.CanceledAcquireCount(),
		AcquireDuration:      stat.AcquireDuration(),
		ValidationFailures:   p.validationFailures.Load(),
		ExpiredClosed:        p.expiredClosed.Load(),
	}
}
