package processor

import (
	"context"
	"sync"
)

// FrameProcessor runs one capture unit at a time and keeps only the latest.
// Submitting a frame cancels the unit for the previous frame; a result is
// delivered only while its unit is still the newest one submitted.
type FrameProcessor struct {
	processor *LabelProcessor

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	closed     bool

	results chan *ScoredResult
}

// NewFrameProcessor creates a frame processor on top of p
func NewFrameProcessor(p *LabelProcessor) *FrameProcessor {
	return &FrameProcessor{
		processor: p,
		results:   make(chan *ScoredResult, 1),
	}
}

// Results delivers scored frames. It buffers at most one result, always the
// newest.
func (f *FrameProcessor) Results() <-chan *ScoredResult {
	return f.results
}

// Submit supersedes any in-flight frame with frame. It does not block.
func (f *FrameProcessor) Submit(parent context.Context, frame []byte) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.cancel != nil {
		f.cancel()
		select {
		case <-f.done:
		default:
			f.processor.metrics.FramesSuperseded.Inc()
		}
	}
	ctx, cancel := context.WithCancel(parent)
	f.cancel = cancel
	f.generation++
	gen := f.generation
	prev := f.done
	done := make(chan struct{})
	f.done = done
	f.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		// units run in a single sequence
		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			return
		}

		result := f.processor.Process(ctx, frame)

		f.mu.Lock()
		defer f.mu.Unlock()
		if gen != f.generation || ctx.Err() != nil {
			return
		}
		select {
		case <-f.results:
		default:
		}
		f.results <- result
	}()
}

// Close cancels the in-flight frame and waits for it to finish. Submit is a
// no-op afterwards.
func (f *FrameProcessor) Close() {
	f.mu.Lock()
	f.closed = true
	if f.cancel != nil {
		f.cancel()
	}
	done := f.done
	f.mu.Unlock()

	if done != nil {
		<-done
	}
}
