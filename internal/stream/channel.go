// ABOUTME: Dialer opens one websocket per exchange; Handle streams decoded events
// ABOUTME: Guarantees exactly one terminal event and idempotent cancellation

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	// eventBufferSize is the delivery channel buffer per exchange.
	eventBufferSize = 16

	// maxReadLimit bounds a single inbound frame. Complete payloads carry
	// full product listings, so this is well above the websocket default.
	maxReadLimit = 1 << 20

	// maxConsecutiveParseFailures is how many undecodable frames in a row we
	// tolerate before treating the stream as corrupted. A single junk frame
	// is a hiccup; a run of them means nobody sane is on the other end.
	maxConsecutiveParseFailures = 25
)

// TransportFailureMessage is the user-visible reason for a synthesized
// failure when the connection drops before a terminal frame.
const TransportFailureMessage = "Connection interrupted"

// OpenRequest is the single client frame transmitted after dialing.
type OpenRequest struct {
	SessionID       string         `json:"session_id"`
	Message         string         `json:"message"`
	UserPreferences map[string]any `json:"user_preferences,omitempty"`
}

// Dialer opens streaming channels against a backend websocket endpoint.
type Dialer struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewDialer creates a Dialer for the given websocket URL.
// Pass nil logger for the default.
func NewDialer(url string, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		URL:    url,
		Logger: logger.With("component", "stream"),
	}
}

// Open establishes one connection, transmits the request frame, and starts
// the reader. The returned Handle delivers events until a terminal event or
// cancellation.
func (d *Dialer) Open(ctx context.Context, req OpenRequest) (*Handle, error) {
	opts := &websocket.DialOptions{HTTPClient: d.HTTPClient}
	conn, _, err := websocket.Dial(ctx, d.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.URL, err)
	}
	conn.SetReadLimit(maxReadLimit)

	if err := wsjson.Write(ctx, conn, req); err != nil {
		conn.Close(websocket.StatusInternalError, "request frame failed")
		return nil, fmt.Errorf("sending request frame: %w", err)
	}

	readCtx, cancelRead := context.WithCancel(context.Background())
	h := &Handle{
		conn:       conn,
		events:     make(chan Event, eventBufferSize),
		done:       make(chan struct{}),
		cancelRead: cancelRead,
		logger:     d.Logger,
	}
	go h.readLoop(readCtx)

	d.Logger.Debug("channel opened", "session_id", req.SessionID)
	return h, nil
}

// Handle is one live exchange. Events are delivered in the order frames
// arrive; the channel closes after the terminal event.
type Handle struct {
	conn       *websocket.Conn
	events     chan Event
	done       chan struct{}
	cancelRead context.CancelFunc
	cancelled  atomic.Bool
	cancelOnce sync.Once
	logger     *slog.Logger
}

// Events returns the delivery channel. It is closed once the exchange
// terminates or is cancelled.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Cancel tears the channel down. It is idempotent, safe to call after the
// terminal event, and suppresses delivery of anything still in flight,
// including events generated by the closing handshake.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		h.cancelled.Store(true)
		close(h.done)
		h.cancelRead()
		h.conn.Close(websocket.StatusNormalClosure, "cancelled")
		h.logger.Debug("channel cancelled")
	})
}

// readLoop reads frames until a terminal event, cancellation, or transport
// loss. It owns closing the events channel and the connection.
func (h *Handle) readLoop(ctx context.Context) {
	defer close(h.events)
	defer h.conn.Close(websocket.StatusNormalClosure, "")

	parseFailures := 0
	for {
		_, raw, err := h.conn.Read(ctx)
		if err != nil {
			if h.cancelled.Load() {
				return
			}
			// Transport closed or errored before a terminal frame.
			h.logger.Debug("transport closed before terminal frame", "error", err)
			h.deliver(Event{Kind: EventFailure, Failure: &FailurePayload{
				Message:   TransportFailureMessage,
				Transport: true,
			}})
			return
		}

		ev, err := decodeFrame(raw)
		if err != nil {
			parseFailures++
			h.logger.Debug("dropping undecodable frame",
				"error", err,
				"consecutive_failures", parseFailures)
			if parseFailures >= maxConsecutiveParseFailures {
				h.deliver(Event{Kind: EventFailure, Failure: &FailurePayload{
					Message:   "Stream corrupted; too many unreadable frames",
					Transport: true,
				}})
				return
			}
			continue
		}
		parseFailures = 0

		if !h.deliver(ev) {
			return
		}
		if ev.Terminal() {
			return
		}
	}
}

// deliver hands an event to the consumer unless the handle was cancelled.
// Returns false when delivery is (or becomes) suppressed.
func (h *Handle) deliver(ev Event) bool {
	if h.cancelled.Load() {
		return false
	}
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}
