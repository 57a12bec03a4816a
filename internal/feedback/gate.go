// ABOUTME: Feedback gate state machine with a cancellable prompt timer
// ABOUTME: Idle -> Eligible -> Prompted -> Resolved; Reset returns to Idle

package feedback

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPromptDelay is how long after an eligible exchange the gate waits
// before prompting, provided streaming has not restarted.
const DefaultPromptDelay = 2 * time.Second

// State is the gate's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateEligible
	StatePrompted
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEligible:
		return "eligible"
	case StatePrompted:
		return "prompted"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Submitter delivers resolved feedback to the backend.
type Submitter interface {
	SubmitConversationFeedback(ctx context.Context, sessionID string, rating int, comment string) error
}

// Gate tracks feedback eligibility for one session.
type Gate struct {
	delay     time.Duration
	onPrompt  func()
	submitter Submitter
	logger    *slog.Logger

	mu    sync.Mutex
	state State
	timer *time.Timer
}

// NewGate creates a Gate. onPrompt is invoked (on the timer goroutine) when
// the gate transitions to Prompted; nil is allowed. A zero delay uses
// DefaultPromptDelay. submitter may be nil when submission is handled
// elsewhere.
func NewGate(delay time.Duration, onPrompt func(), submitter Submitter, logger *slog.Logger) *Gate {
	if delay <= 0 {
		delay = DefaultPromptDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		delay:     delay,
		onPrompt:  onPrompt,
		submitter: submitter,
		logger:    logger.With("component", "feedback"),
	}
}

// State returns the gate's current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ExchangeCompleted is called after a successful exchange. The gate becomes
// eligible only when results were retrieved and no feedback has been
// resolved this session.
func (g *Gate) ExchangeCompleted(resultCount int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateIdle || resultCount == 0 {
		return
	}
	g.state = StateEligible
	g.timer = time.AfterFunc(g.delay, g.fire)
	g.logger.Debug("gate eligible", "results", resultCount)
}

// fire moves Eligible to Prompted after the delay.
func (g *Gate) fire() {
	g.mu.Lock()
	if g.state != StateEligible {
		g.mu.Unlock()
		return
	}
	g.state = StatePrompted
	g.timer = nil
	prompt := g.onPrompt
	g.mu.Unlock()

	g.logger.Debug("prompting for feedback")
	if prompt != nil {
		prompt()
	}
}

// StreamingStarted cancels a pending prompt when a new send begins.
// The transition is cancelled, not delayed: the gate drops back to Idle and
// only a later completed exchange can make it eligible again.
func (g *Gate) StreamingStarted() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopTimerLocked()
	if g.state == StateEligible {
		g.state = StateIdle
		g.logger.Debug("pending prompt cancelled by new send")
	}
}

// Submit resolves the gate with an explicit rating and forwards it to the
// backend without blocking the caller. Submission failures are logged only.
func (g *Gate) Submit(ctx context.Context, sessionID string, rating int, comment string) {
	if !g.resolve() {
		return
	}

	if g.submitter == nil {
		return
	}
	go func() {
		if err := g.submitter.SubmitConversationFeedback(ctx, sessionID, rating, comment); err != nil {
			g.logger.Error("feedback submission failed",
				"error", err,
				"session_id", sessionID)
			return
		}
		g.logger.Debug("feedback submitted", "session_id", sessionID, "rating", rating)
	}()
}

// Dismiss resolves the gate without submitting anything.
func (g *Gate) Dismiss() {
	if g.resolve() {
		g.logger.Debug("feedback prompt dismissed")
	}
}

// resolve moves any non-resolved state to Resolved. Returns false when the
// gate was already resolved.
func (g *Gate) resolve() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateResolved {
		return false
	}
	g.stopTimerLocked()
	g.state = StateResolved
	return true
}

// Reset forces the gate back to Idle for a fresh session.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopTimerLocked()
	g.state = StateIdle
}

func (g *Gate) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
