// Package pending implements the single-slot mailbox that hands one scan
// result from the scanning view to the result view. Producer is the upload
// path, consumer is the result view; status only ever moves
// none -> processing -> complete -> none.
package pending

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"smartbin-scan/internal/model"
	"smartbin-scan/pkg/apierror"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
)

// Persisted key names. The cell mirrors its state into a Recorder so a
// remounted result view can recover it.
const (
	KeyScanProcessing = "smartbin_scan_processing"
	KeyLastScan       = "smartbin_last_scan"
)

// Recorder persists the mirror keys. A nil Recorder disables mirroring.
type Recorder interface {
	Set(key string, value string) error
	Delete(key string) error
}

type Cell struct {
	mu           sync.Mutex
	status       Status
	result       *model.ScanResult
	rec          Recorder
	pollInterval time.Duration
	watchdog     time.Duration
}

func NewCell(rec Recorder, pollHz float64, watchdog time.Duration) *Cell {
	if pollHz <= 0 {
		pollHz = 3
	}
	if watchdog <= 0 {
		watchdog = 10 * time.Second
	}

	return &Cell{
		status:       StatusNone,
		rec:          rec,
		pollInterval: time.Duration(float64(time.Second) / pollHz),
		watchdog:     watchdog,
	}
}

// Begin marks a scan as in flight. It fails unless the cell is empty, which
// enforces the at-most-one-upload invariant at the cell level too.
func (c *Cell) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusProcessing {
		return model.ErrScanInProgress
	}
	if c.status == StatusComplete {
		return model.ErrIllegalTransition
	}

	c.status = StatusProcessing
	c.result = nil
	c.mirrorLocked()
	return nil
}

// Complete publishes the terminal result. Upload failures are delivered here
// too, as an invalid result, so the consumer always reaches a terminal state.
func (c *Cell) Complete(r model.ScanResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusProcessing {
		return model.ErrIllegalTransition
	}

	c.status = StatusComplete
	c.result = &r
	c.mirrorLocked()
	return nil
}

// Reset empties the cell after the consumer acted on the result.
func (c *Cell) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = StatusNone
	c.result = nil
	c.mirrorLocked()
}

func (c *Cell) Snapshot() (Status, *model.ScanResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.result == nil {
		return c.status, nil
	}

	copied := *c.result
	return c.status, &copied
}

// Await polls the cell until it completes. The watchdog bounds the wait; on
// expiry the consumer degrades to an explicit no-result state and offers a
// manual re-check.
func (c *Cell) Await(ctx context.Context) (model.ScanResult, error) {
	deadline := time.NewTimer(c.watchdog)
	defer deadline.Stop()
	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	for {
		status, result := c.Snapshot()
		if status == StatusComplete && result != nil {
			return *result, nil
		}

		select {
		case <-ctx.Done():
			return model.ScanResult{}, ctx.Err()
		case <-deadline.C:
			return model.ScanResult{}, apierror.New(apierror.KindResultTimeout, "no scan result arrived in time", "")
		case <-tick.C:
		}
	}
}

func (c *Cell) mirrorLocked() {
	if c.rec == nil {
		return
	}

	switch c.status {
	case StatusProcessing:
		_ = c.rec.Set(KeyScanProcessing, "1")
		_ = c.rec.Delete(KeyLastScan)
	case StatusComplete:
		_ = c.rec.Set(KeyScanProcessing, "0")
		if data, err := json.Marshal(c.result); err == nil {
			_ = c.rec.Set(KeyLastScan, string(data))
		}
	default:
		_ = c.rec.Set(KeyScanProcessing, "0")
		_ = c.rec.Delete(KeyLastScan)
	}
}
