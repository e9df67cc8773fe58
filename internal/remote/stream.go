package remote

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/eink-labs/chess-hlss/internal/domain"
	"github.com/eink-labs/chess-hlss/internal/obslog"
)

// EventHandler receives inbound game events in arrival order. The stream
// calls it from a single goroutine per account, so handlers see events for
// any one game serialized.
type EventHandler func(accountID string, ev domain.GameEvent)

// ResyncHandler fires after every successful (re)connect. The reconciler
// uses it to pull full game state and merge anything missed while offline.
type ResyncHandler func(accountID string)

// EventStream keeps one websocket per account to the remote service's event
// feed and reconnects with exponential backoff until closed.
type EventStream struct {
	wsURL   string
	tokens  TokenSource
	handler EventHandler
	resync  ResyncHandler

	pingInterval time.Duration
	maxDelay     time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewEventStream(wsURL string, tokens TokenSource, handler EventHandler, resync ResyncHandler) *EventStream {
	return &EventStream{
		wsURL:        wsURL,
		tokens:       tokens,
		handler:      handler,
		resync:       resync,
		pingInterval: 30 * time.Second,
		maxDelay:     30 * time.Second,
		stopCh:       make(chan struct{}),
	}
}

// Watch starts streaming events for an account until Close or ctx cancel.
func (s *EventStream) Watch(ctx context.Context, accountID string) {
	s.wg.Add(1)
	go s.run(ctx, accountID)
}

// Close stops all account streams and waits for them to exit.
func (s *EventStream) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *EventStream) run(ctx context.Context, accountID string) {
	defer s.wg.Done()
	delay := time.Second
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, err := s.dial(ctx, accountID)
		if err != nil {
			obslog.L().Warn("event stream dial failed",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
			if !s.sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, s.maxDelay)
			continue
		}

		delay = time.Second
		obslog.L().Info("event stream connected", zap.String("account_id", accountID))
		if s.resync != nil {
			s.resync(accountID)
		}
		s.listen(ctx, accountID, conn)
	}
}

func (s *EventStream) dial(ctx context.Context, accountID string) (*websocket.Conn, error) {
	token, err := s.tokens.Token(ctx, accountID)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(dialCtx, s.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      hdr,
	})
	return conn, err
}

// listen reads events until the connection drops, keeping a ping loop on the
// side. Returning hands control back to run for a reconnect.
func (s *EventStream) listen(ctx context.Context, accountID string, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close(websocket.StatusGoingAway, "reconnect")

	go s.pingLoop(connCtx, conn, cancel)

	for {
		select {
		case <-s.stopCh:
			conn.Close(websocket.StatusNormalClosure, "shutdown")
			return
		default:
		}

		var ev domain.GameEvent
		if err := wsjson.Read(connCtx, conn, &ev); err != nil {
			select {
			case <-s.stopCh:
			case <-ctx.Done():
			default:
				obslog.L().Warn("event stream read failed",
					zap.String("account_id", accountID),
					zap.Error(err),
				)
			}
			return
		}
		if s.handler != nil {
			s.handler(accountID, ev)
		}
	}
}

func (s *EventStream) pingLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				failures++
				if failures >= 2 {
					cancel()
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (s *EventStream) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
