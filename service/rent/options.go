package rent

import (
	"context"
	"time"
)

const (
	DefaultPageSize      = 100
	DefaultScanLimit     = 1000
	DefaultBatchSize     = 10
	DefaultProgressEvery = 10

	DefaultPageDelay     = 100 * time.Millisecond
	DefaultTxDelay       = 50 * time.Millisecond
	DefaultClassifyDelay = 100 * time.Millisecond
	DefaultReclaimDelay  = 500 * time.Millisecond
)

// ProgressFunc receives (stage, done, total) every ProgressEvery items.
// total is -1 when unknown.
type ProgressFunc func(stage string, done, total int)

// Options tunes pagination and throttling. The delays keep sequential
// traffic under public RPC rate limits.
type Options struct {
	PageSize      int
	DefaultLimit  int
	PageDelay     time.Duration
	TxDelay       time.Duration
	ClassifyDelay time.Duration
	ReclaimDelay  time.Duration
	ProgressEvery int
	Progress      ProgressFunc
}

// DefaultOptions returns the standard throttling profile.
func DefaultOptions() Options {
	return Options{
		PageSize:      DefaultPageSize,
		DefaultLimit:  DefaultScanLimit,
		PageDelay:     DefaultPageDelay,
		TxDelay:       DefaultTxDelay,
		ClassifyDelay: DefaultClassifyDelay,
		ReclaimDelay:  DefaultReclaimDelay,
		ProgressEvery: DefaultProgressEvery,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageSize <= 0 || o.PageSize > DefaultPageSize {
		o.PageSize = d.PageSize
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = d.DefaultLimit
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = d.ProgressEvery
	}
	return o
}

func (o Options) report(stage string, done, total int) {
	if o.Progress != nil && done%o.ProgressEvery == 0 {
		o.Progress(stage, done, total)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
