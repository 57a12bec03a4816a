// ABOUTME: Controller wires streaming channel events into message store mutations
// ABOUTME: One exchange at a time; reentrancy guard, exactly-once terminal handling

package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/stackpine/advisor/internal/chat"
	"github.com/stackpine/advisor/internal/stream"
)

// DefaultFallbackErrorText is shown when a failure carries no message of its own.
const DefaultFallbackErrorText = "The assistant ran into a problem answering that. Please try again."

// Exchange is what the controller needs from a live channel handle.
type Exchange interface {
	Events() <-chan stream.Event
	Cancel()
}

// Opener opens a streaming channel for one exchange.
type Opener interface {
	Open(ctx context.Context, req stream.OpenRequest) (Exchange, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, req stream.OpenRequest) (Exchange, error)

func (f OpenerFunc) Open(ctx context.Context, req stream.OpenRequest) (Exchange, error) {
	return f(ctx, req)
}

// FeedbackGate is the slice of the feedback state machine the controller
// drives. A nil gate is allowed.
type FeedbackGate interface {
	StreamingStarted()
	ExchangeCompleted(resultCount int)
	Reset()
}

// Publisher receives the retrieval results of a completed exchange for the
// presentation layer. A nil publisher discards them.
type Publisher interface {
	PublishResults(products []stream.ProductRef, comparison *stream.ComparisonRef, reasoning *string)
}

// Options configures optional controller collaborators.
type Options struct {
	Gate              FeedbackGate
	Publisher         Publisher
	Preferences       map[string]any
	FallbackErrorText string
	// OnEvent, when set, observes every event after it has been applied to
	// the store. Stale events from a cancelled exchange are not reported.
	OnEvent func(stream.Event)
	Logger  *slog.Logger
}

// Controller manages exactly one active conversation.
type Controller struct {
	store  *chat.Store
	opener Opener
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	active    Exchange
	gen       uint64 // bumped on Reset; fences stale session-level effects
	metadata  chat.ExchangeMetadata
	lastError string
}

// New creates a Controller over the given store and channel opener.
func New(store *chat.Store, opener Opener, opts Options) *Controller {
	if opts.FallbackErrorText == "" {
		opts.FallbackErrorText = DefaultFallbackErrorText
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:  store,
		opener: opener,
		opts:   opts,
		logger: logger.With("component", "conversation"),
	}
}

// Store exposes the session state for readers.
func (c *Controller) Store() *chat.Store {
	return c.store
}

// Metadata returns a copy of the current exchange's accumulated metadata.
func (c *Controller) Metadata() chat.ExchangeMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta := c.metadata
	if meta.Filters != nil {
		filters := make(map[string]any, len(meta.Filters))
		for k, v := range meta.Filters {
			filters[k] = v
		}
		meta.Filters = filters
	}
	return meta
}

// LastError returns the user-visible error of the most recent failed
// exchange, or "" when the last exchange succeeded.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Send starts one exchange for the given user text. It returns as soon as the
// channel is initiated; store mutations happen asynchronously as events
// arrive. Sends during an in-flight exchange are dropped silently, and all
// failures resolve into session state rather than propagating.
func (c *Controller) Send(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	if c.store.IsStreaming() {
		c.mu.Unlock()
		c.logger.Debug("send dropped, exchange already in flight")
		return
	}

	userID := uuid.New().String()
	assistantID := uuid.New().String()

	// Record first, then act: the transcript reflects the attempt even if
	// the channel never opens.
	if err := c.store.Append(chat.NewUserMessage(userID, text)); err != nil {
		c.mu.Unlock()
		c.logger.Error("failed to append user message", "error", err)
		return
	}
	if err := c.store.Append(chat.NewAssistantPlaceholder(assistantID)); err != nil {
		c.mu.Unlock()
		c.logger.Error("failed to append placeholder", "error", err)
		return
	}
	c.store.SetStreaming(true)
	c.metadata = chat.ExchangeMetadata{}
	c.lastError = ""
	gen := c.gen
	c.mu.Unlock()

	if c.opts.Gate != nil {
		c.opts.Gate.StreamingStarted()
	}

	handle, err := c.opener.Open(ctx, stream.OpenRequest{
		SessionID:       c.store.SessionID(),
		Message:         text,
		UserPreferences: c.opts.Preferences,
	})
	if err != nil {
		c.logger.Error("failed to open channel", "error", err)
		c.finishFailure(gen, assistantID, &stream.FailurePayload{
			Message:   stream.TransportFailureMessage,
			Transport: true,
		})
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		// Reset raced the open; this exchange no longer exists.
		c.mu.Unlock()
		handle.Cancel()
		return
	}
	c.active = handle
	c.mu.Unlock()

	c.logger.Debug("exchange started",
		"session_id", c.store.SessionID(),
		"assistant_message_id", assistantID)

	go c.consume(gen, assistantID, handle)
}

// Reset cancels any open channel and replaces the session wholesale. The
// store and gate resets happen under the controller lock so no event handler
// can interleave between the generation bump and the new session appearing.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}
	c.gen++
	c.metadata = chat.ExchangeMetadata{}
	c.lastError = ""
	c.store.Reset()
	if c.opts.Gate != nil {
		c.opts.Gate.Reset()
	}
	c.mu.Unlock()

	c.logger.Debug("session reset", "session_id", c.store.SessionID())
}

// Close tears down the controller at component shutdown. Bumping the
// generation fences events already sitting in a live channel's queue, so
// nothing mutates the store after teardown.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}
	c.gen++
}

// consume applies channel events in arrival order until the events channel
// closes after the terminal event.
func (c *Controller) consume(gen uint64, assistantID string, handle Exchange) {
	for ev := range handle.Events() {
		switch ev.Kind {
		case stream.EventChunk:
			c.applyChunk(gen, assistantID, ev.Text)
			c.notify(gen, ev)

		case stream.EventMetadata:
			c.mergeMetadata(gen, chat.ExchangeMetadata{
				RetrievalLatencyMS: ev.Metadata.RetrievalLatencyMS,
				Filters:            ev.Metadata.Filters,
			})
			c.notify(gen, ev)

		case stream.EventComplete:
			c.finishComplete(gen, assistantID, ev.Complete)
			c.notify(gen, ev)

		case stream.EventFailure:
			c.finishFailure(gen, assistantID, ev.Failure)
			c.notify(gen, ev)
		}
	}
}

// applyChunk appends a streamed fragment to the placeholder. The generation
// check runs before the store mutation so a chunk already queued when the
// exchange was cancelled never lands.
func (c *Controller) applyChunk(gen uint64, assistantID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.store.Mutate(assistantID, func(m *chat.Message) {
		m.Content += text
	})
}

// finishComplete replaces the placeholder's accumulated fragments with the
// final reply and ends the streaming phase. The store update and the
// publisher/gate dispatch stay under the controller lock so a concurrent
// Reset cannot land between them and re-arm the fresh session's gate.
func (c *Controller) finishComplete(gen uint64, assistantID string, payload *stream.CompletePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	count := len(payload.Products)
	c.metadata.Merge(chat.ExchangeMetadata{
		LLMLatencyMS: payload.LLMLatencyMS,
		ResultCount:  &count,
	})
	c.active = nil

	c.store.Mutate(assistantID, func(m *chat.Message) {
		m.Content = payload.Reply
		m.Streaming = false
	})
	c.store.SetStreaming(false)

	if c.opts.Publisher != nil {
		c.opts.Publisher.PublishResults(payload.Products, payload.Comparison, payload.Reasoning)
	}
	if c.opts.Gate != nil {
		c.opts.Gate.ExchangeCompleted(count)
	}

	c.logger.Debug("exchange completed",
		"assistant_message_id", assistantID,
		"products", count)
}

// finishFailure resolves the placeholder into a user-visible error.
func (c *Controller) finishFailure(gen uint64, assistantID string, payload *stream.FailurePayload) {
	reason := payload.Message
	if reason == "" {
		reason = c.opts.FallbackErrorText
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.lastError = reason
	c.active = nil

	c.store.Mutate(assistantID, func(m *chat.Message) {
		m.Content = reason
		m.Streaming = false
	})
	c.store.SetStreaming(false)

	c.logger.Debug("exchange failed",
		"assistant_message_id", assistantID,
		"reason", reason,
		"transport", payload.Transport)
}

func (c *Controller) mergeMetadata(gen uint64, meta chat.ExchangeMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.metadata.Merge(meta)
}

func (c *Controller) notify(gen uint64, ev stream.Event) {
	if c.opts.OnEvent == nil {
		return
	}
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if !stale {
		c.opts.OnEvent(ev)
	}
}
