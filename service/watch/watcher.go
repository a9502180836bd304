package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brojonat/solvent/service/rent"
)

// ScanFunc produces a fresh report for the watched address.
type ScanFunc func(ctx context.Context) (*rent.Report, error)

// Tick is the outcome of one scheduled scan.
type Tick struct {
	Number   int
	Snapshot Snapshot
	Alert    *Alert
	Closed   int
	Err      error
	Skipped  bool // a previous scan was still running
}

// Watcher rescans one address on an interval and reports changes. At most one
// scan runs at a time; ticks that arrive while a scan is in flight are skipped.
type Watcher struct {
	scan     ScanFunc
	interval time.Duration
	onTick   func(Tick)
	logger   *slog.Logger

	inFlight atomic.Bool
	mu       sync.Mutex
	previous *Snapshot
	count    int
}

// NewWatcher creates a watcher. onTick is called from the scanning goroutine.
func NewWatcher(scan ScanFunc, interval time.Duration, onTick func(Tick), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if onTick == nil {
		onTick = func(Tick) {}
	}
	return &Watcher{scan: scan, interval: interval, onTick: onTick, logger: logger}
}

// Run scans immediately and then on every interval until ctx is done. It waits
// for an in-flight scan to finish before returning.
func (w *Watcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	w.trigger(ctx, &wg)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.trigger(ctx, &wg)
		}
	}
}

func (w *Watcher) trigger(ctx context.Context, wg *sync.WaitGroup) {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.logger.DebugContext(ctx, "previous scan still running, skipping")
		w.onTick(Tick{Skipped: true})
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer w.inFlight.Store(false)
		w.onTick(w.Scan(ctx))
	}()
}

// Scan runs one scan and compares it with the previous successful one.
func (w *Watcher) Scan(ctx context.Context) Tick {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	tick := Tick{Number: w.count}

	report, err := w.scan(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "watch scan failed", "scan", tick.Number, "error", err)
		tick.Err = err
		return tick
	}

	snap := FromReport(report)
	tick.Snapshot = snap
	tick.Alert = Compare(w.previous, snap)
	tick.Closed = Closed(w.previous, snap)
	w.previous = &snap

	if tick.Alert != nil {
		w.logger.InfoContext(ctx, "new closeable accounts",
			"address", snap.Address,
			"new", tick.Alert.NewCloseable,
			"closeable", snap.CloseableCount,
		)
	}
	return tick
}
