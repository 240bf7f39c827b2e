// Package signal provides two-stage interrupt handling for the control loop.
//
// The first SIGINT/SIGTERM requests a cooperative stop: the loop finishes the
// iteration in progress and exits between iterations. A second signal cancels
// the context, which aborts blocking calls at their next cancellation point.
//
// Import rules:
//   - CAN import: std lib only
//   - MUST NOT import: internal packages (to avoid circular dependencies)
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler listens for interrupt signals for the lifetime of a run.
type Handler struct {
	ctx    context.Context //nolint:containedctx // handler owns the context lifecycle
	cancel context.CancelFunc

	stopRequested chan struct{}
	forced        chan struct{}
	done          chan struct{}

	mu       sync.Mutex
	received int
	onStop   func()

	stopOnce sync.Once
	sigChan  chan os.Signal
}

// NewHandler creates a handler for SIGINT and SIGTERM. onStop, when non-nil, is
// called once when the first signal arrives; it must not block.
//
//	h := signal.NewHandler(ctx, loop.Stop)
//	defer h.Stop()
//	err := loop.Run(h.Context())
func NewHandler(parent context.Context, onStop func()) *Handler {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		ctx:           ctx,
		cancel:        cancel,
		stopRequested: make(chan struct{}),
		forced:        make(chan struct{}),
		done:          make(chan struct{}),
		onStop:        onStop,
		// Buffer of 1 ensures signal.Notify doesn't drop signals if handler is busy.
		sigChan: make(chan os.Signal, 1),
	}

	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)
	go h.listen()

	return h
}

// Context returns the context canceled on a forced stop or on Stop.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// StopRequested closes when the first signal arrives.
func (h *Handler) StopRequested() <-chan struct{} {
	return h.stopRequested
}

// Forced closes when a second signal arrives.
func (h *Handler) Forced() <-chan struct{} {
	return h.forced
}

// Stop stops listening and cancels the context. It is safe to call more than once.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.done)
		h.cancel()
	})
}

// handleSignal processes one received signal. Tests call it directly.
func (h *Handler) handleSignal() {
	h.mu.Lock()
	h.received++
	n := h.received
	h.mu.Unlock()

	switch n {
	case 1:
		close(h.stopRequested)
		if h.onStop != nil {
			h.onStop()
		}
	case 2:
		close(h.forced)
		h.cancel()
	}
}

func (h *Handler) listen() {
	for {
		select {
		case <-h.done:
			return
		case <-h.sigChan:
			h.handleSignal()
		}
	}
}
