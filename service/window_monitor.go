package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/commit-reveal-sequencer/election"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentCloses limits how many elections are closed at once on every
// tick.
const maxConcurrentCloses = 8

// WindowMonitor periodically closes the Open elections whose voting window
// has ended.
type WindowMonitor struct {
	machine  *election.Machine
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewWindowMonitor creates a new WindowMonitor service.
func NewWindowMonitor(machine *election.Machine, interval time.Duration) *WindowMonitor {
	return &WindowMonitor{
		machine:  machine,
		interval: interval,
	}
}

// Start begins monitoring. It returns an error if the service is already
// running.
func (wm *WindowMonitor) Start(ctx context.Context) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if wm.interval <= 0 {
		return fmt.Errorf("invalid monitor interval %s", wm.interval)
	}
	ctx, wm.cancel = context.WithCancel(ctx)
	wm.done = make(chan struct{})
	go wm.monitor(ctx, wm.done)
	return nil
}

// Stop halts the monitoring service and waits for the current tick to end.
func (wm *WindowMonitor) Stop() {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if wm.cancel != nil {
		wm.cancel()
		<-wm.done
		wm.cancel = nil
	}
}

func (wm *WindowMonitor) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(wm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := wm.CloseExpired(ctx); err != nil {
				log.Warnw("could not close expired elections", "error", err.Error())
			} else if n > 0 {
				log.Infow("expired elections closed", "count", n)
			}
		}
	}
}

// CloseExpired closes every Open election whose end time has been reached
// and returns how many were closed. Elections with ledger submissions still
// in flight are skipped and retried on the next call.
func (wm *WindowMonitor) CloseExpired(ctx context.Context) (int, error) {
	elections, err := wm.machine.List()
	if err != nil {
		return 0, err
	}
	now := wm.machine.Now()
	var (
		mu     sync.Mutex
		closed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCloses)
	for _, e := range elections {
		if e.Status != types.StatusOpen || now.Before(e.EndTime) {
			continue
		}
		id := e.ID
		g.Go(func() error {
			_, err := wm.machine.Close(gctx, id)
			switch {
			case err == nil:
				mu.Lock()
				closed++
				mu.Unlock()
			case errors.Is(err, types.ErrPendingSubmissions):
				log.Debugw("election close postponed", "electionID", id.String())
			case errors.Is(err, types.ErrInvalidTransition):
				// closed by someone else in the meantime
			default:
				return fmt.Errorf("close election %s: %w", id, err)
			}
			return nil
		})
	}
	err = g.Wait()
	return closed, err
}
