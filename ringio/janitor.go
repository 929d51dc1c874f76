package ringio

import (
	"context"
	"log"
	"time"
)

// Janitor is a background task that, every interval, flushes registered
// contexts that have unflushed work (last_in > last_out) which has sat idle
// longer than threshold_ms. It never blocks its own tick on a flush — each
// due flush is spawned fire-and-forget — and it swallows flush errors,
// logging them if a logger is configured.
type Janitor struct {
	ticker *time.Ticker
	done   chan struct{}
	logger *log.Logger
}

// startJanitor wires a Janitor to reg and starts its tick loop.
func startJanitor(reg *Registry, thresholdMS int64, interval time.Duration) *Janitor {
	j := &Janitor{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
		logger: log.Default(),
	}
	go j.run(reg, thresholdMS)
	return j
}

func (j *Janitor) run(reg *Registry, thresholdMS int64) {
	for {
		select {
		case <-j.ticker.C:
			j.sweep(reg, thresholdMS)
		case <-j.done:
			return
		}
	}
}

func (j *Janitor) sweep(reg *Registry, thresholdMS int64) {
	now := reg.clock.NowMillis()

	for _, f := range reg.snapshot() {
		lastIn := f.LastInMS()
		lastOut := f.LastOutMS()

		if lastIn > lastOut && now-lastIn > thresholdMS {
			go func(f flusher) {
				if err := f.Flush(context.Background()); err != nil && j.logger != nil {
					j.logger.Printf("ringio: janitor flush failed: %v", err)
				}
			}(f)
		}
	}
}

// Stop halts the janitor's tick loop. In-flight fire-and-forget flushes it
// already spawned are not cancelled.
func (j *Janitor) Stop() {
	j.ticker.Stop()
	close(j.done)
}
