package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eink-labs/chess-hlss/internal/frame"
	"github.com/eink-labs/chess-hlss/internal/obslog"
	"github.com/eink-labs/chess-hlss/internal/screen"
)

// Renderer turns stale-screen notifications into frame pushes. Each device
// gets one worker with a latest-wins trigger: redraw requests arriving while
// a render is in flight collapse into a single follow-up render, so a burst
// of button presses never queues a backlog of frames for a slow panel.
type Renderer struct {
	router   *screen.Router
	composer frame.Composer
	display  Display

	pushTimeout time.Duration

	mu      sync.Mutex
	closed  bool
	wakeups map[string]chan struct{}
	hashes  map[string]string

	wg sync.WaitGroup
}

func NewRenderer(router *screen.Router, composer frame.Composer, display Display, pushTimeout time.Duration) *Renderer {
	if pushTimeout <= 0 {
		pushTimeout = 30 * time.Second
	}
	return &Renderer{
		router:      router,
		composer:    composer,
		display:     display,
		pushTimeout: pushTimeout,
		wakeups:     make(map[string]chan struct{}),
		hashes:      make(map[string]string),
	}
}

// Notify schedules a redraw for the device. Safe to call from any goroutine;
// this is the router's render hook.
func (r *Renderer) Notify(deviceID string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	wake, ok := r.wakeups[deviceID]
	if !ok {
		wake = make(chan struct{}, 1)
		r.wakeups[deviceID] = wake
		r.wg.Add(1)
		go r.worker(deviceID, wake)
	}
	select {
	case wake <- struct{}{}:
	default:
		// A render is already scheduled; it will pick up the latest state.
	}
	r.mu.Unlock()
}

func (r *Renderer) worker(deviceID string, wake <-chan struct{}) {
	defer r.wg.Done()
	for range wake {
		r.renderOnce(deviceID)
	}
}

func (r *Renderer) renderOnce(deviceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.pushTimeout)
	defer cancel()

	desc, err := r.router.Describe(ctx, deviceID)
	if err != nil {
		obslog.L().Error("describe screen failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return
	}

	f, err := r.composer.Compose(ctx, desc)
	if err != nil {
		obslog.L().Error("compose frame failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return
	}

	r.mu.Lock()
	unchanged := r.hashes[deviceID] == f.Hash
	r.mu.Unlock()
	if unchanged {
		return
	}

	if err := r.display.PushFrame(ctx, deviceID, *f); err != nil {
		obslog.L().Error("push frame failed",
			zap.String("device_id", deviceID),
			zap.String("hash", f.Hash),
			zap.Error(err),
		)
		return
	}

	r.mu.Lock()
	r.hashes[deviceID] = f.Hash
	r.mu.Unlock()

	obslog.L().Debug("frame pushed",
		zap.String("device_id", deviceID),
		zap.String("hash", f.Hash),
		zap.Int("bytes", len(f.PNG)),
	)
}

// Frame composes the device's current screen on demand, bypassing the push
// loop. Used by the debug frame endpoint.
func (r *Renderer) Frame(ctx context.Context, deviceID string) (*frame.Frame, error) {
	desc, err := r.router.Describe(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return r.composer.Compose(ctx, desc)
}

// Close stops accepting notifications and waits for in-flight renders.
func (r *Renderer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, wake := range r.wakeups {
		close(wake)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
