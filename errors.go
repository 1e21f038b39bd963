package influxpool

import "errors"

var (
	// ErrConnection is the only error reported by ConnectionManager. Unreachable
	// hosts, rejected credentials and timed out pings all collapse into it.
	ErrConnection = errors.New("cannot connect or access InfluxDb")

	ErrPoolClosed = errors.New("pool is closed")

	ErrPoolTimeout = errors.New("pool get conn timed out")

	ErrInvalidPoolConfig = errors.New("invalid pool settings")

	ErrPoolFacadeClosed = errors.New("pools facade closed")
)
