package relay

import "errors"

var (
	// ErrDropped is returned when a StreamToken could not be delivered
	// within Config.TokenTimeout.
	ErrDropped = errors.New("token dropped")
	// ErrEvicted is reported by a Subscription that fell behind and was
	// removed by the Fanout.
	ErrEvicted = errors.New("subscriber evicted")
)
