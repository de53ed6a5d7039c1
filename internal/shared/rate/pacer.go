// Package rate paces background work. The predictive pre-cacher draws one
// token per prefetch fetch so speculative loads cannot starve demand traffic.
package rate

import (
	"context"

	"go.uber.org/ratelimit"
)

type Pacer struct {
	ch    chan struct{}
	l     ratelimit.Limiter
	limit int
}

// NewPacer issues up to limit tokens per second with a small burst buffer.
func NewPacer(ctx context.Context, limit int) *Pacer {
	burst := int(float64(limit) * 0.1)
	if burst < 1 {
		burst = 1
	}
	p := &Pacer{
		limit: limit,
		ch:    make(chan struct{}, burst),
		l:     ratelimit.New(limit),
	}
	go p.provider(ctx)
	return p
}

func (p *Pacer) provider(ctx context.Context) {
	defer close(p.ch)
	for {
		p.l.Take()
		select {
		case <-ctx.Done():
			return
		case p.ch <- struct{}{}:
		}
	}
}

// Take blocks for the next token; returns false once the pacer is stopped.
func (p *Pacer) Take() bool {
	_, ok := <-p.ch
	return ok
}

func (p *Pacer) Chan() <-chan struct{} {
	return p.ch
}
