// internal/dex/quote/debounce.go
package quote

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Debouncer coalesces high-frequency quote requests. Only the latest request
// runs; results carry the key that produced them so callers can drop stale ones.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	current string
	seq     uint64
	sent    uint64
	dropped uint64
	logger  *zap.Logger
}

// NewDebouncer creates a debouncer with the given delay.
func NewDebouncer(delay time.Duration, logger *zap.Logger) *Debouncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Debouncer{delay: delay, logger: logger.Named("quote-debounce")}
}

// Request schedules fn(key) after the delay, superseding any pending request.
func (d *Debouncer) Request(key string, fn func(key string)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && d.timer.Stop() {
		d.dropped++
		d.logger.Debug("Quote request superseded", zap.String("previous", d.current), zap.String("key", key))
	}
	d.current = key
	d.seq++
	seq := d.seq

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if seq != d.seq {
			d.mu.Unlock()
			return
		}
		d.sent++
		d.mu.Unlock()
		fn(key)
	})
}

// IsCurrent reports whether key is the most recent request.
func (d *Debouncer) IsCurrent(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current == key
}

// Stop cancels a pending request.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
}

// Stats returns how many requests ran and how many were superseded.
func (d *Debouncer) Stats() (sent, superseded uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent, d.dropped
}

// Key builds a debounce key from the quote inputs.
func Key(tokenIn, tokenOut, amountIn string) string {
	return tokenIn + "|" + tokenOut + "|" + amountIn
}
