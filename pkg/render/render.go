// Package render turns generated Manim code into a video reference, either
// by running manim locally or by delegating to a remote renderer service.
package render

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ProgressFunc receives rendering progress as a percentage in 0..100.
type ProgressFunc func(percent int)

// Renderer renders code for one animation and returns its video reference.
type Renderer interface {
	Render(ctx context.Context, animationID uuid.UUID, code string, onProgress ProgressFunc) (string, error)
}

// progressReporter forwards only increasing, clamped values to fn.
type progressReporter struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last int
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn, last: -1}
}

func (p *progressReporter) report(percent int) {
	if p.fn == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	p.mu.Lock()
	if percent <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = percent
	p.mu.Unlock()
	p.fn(percent)
}

func videoName(animationID uuid.UUID) string {
	return "animation_" + animationID.String()
}
