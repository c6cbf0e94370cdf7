package session

import (
	"sync"
	"time"

	"github.com/mpapenbr/racesim-client/log"
)

// StrategyPicker selects the strategy to apply for a decision.
// Returns false if no strategy can be selected.
type StrategyPicker func(d *DecisionPoint) (string, bool)

// DefaultStrategy picks the first recommended strategy
func DefaultStrategy(d *DecisionPoint) (string, bool) {
	return StrategyAt(0)(d)
}

// StrategyAt picks the recommended strategy at index idx.
// The first recommendation is used if idx is out of range.
func StrategyAt(idx int) StrategyPicker {
	return func(d *DecisionPoint) (string, bool) {
		if d == nil || len(d.Recommended) == 0 {
			return "", false
		}
		if idx < 0 || idx >= len(d.Recommended) {
			return d.Recommended[0].ID, true
		}
		return d.Recommended[idx].ID, true
	}
}

// ChooseFunc resolves d with the given strategy
type ChooseFunc func(d *DecisionPoint, strategyID string) bool

type DecisionTimerOption func(t *DecisionTimer)

func WithStrategyPicker(p StrategyPicker) DecisionTimerOption {
	return func(t *DecisionTimer) {
		t.picker = p
	}
}

// DecisionTimer chooses a strategy on behalf of the player if a decision stays
// unresolved for the configured duration.
type DecisionTimer struct {
	timeout time.Duration
	choose  ChooseFunc
	picker  StrategyPicker

	mu       sync.Mutex
	timer    *time.Timer
	armedFor *DecisionPoint
	stopped  bool
}

// NewDecisionTimer creates a timer which calls choose after timeout.
// A timeout <= 0 disables the timer.
func NewDecisionTimer(
	timeout time.Duration,
	choose ChooseFunc,
	opts ...DecisionTimerOption,
) *DecisionTimer {
	t := &DecisionTimer{
		timeout: timeout,
		choose:  choose,
		picker:  DefaultStrategy,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe arms the timer for a new active decision and disarms it when the
// decision is resolved. Snapshots carrying the same decision keep the timer.
func (t *DecisionTimer) Observe(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || s.ActiveDecision == t.armedFor {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armedFor = s.ActiveDecision
	if t.armedFor == nil || t.timeout <= 0 {
		return
	}
	d := t.armedFor
	t.timer = time.AfterFunc(t.timeout, func() { t.fire(d) })
}

func (t *DecisionTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *DecisionTimer) fire(d *DecisionPoint) {
	t.mu.Lock()
	if t.stopped || t.armedFor != d {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	id, ok := t.picker(d)
	t.mu.Unlock()

	if !ok {
		log.Warn("no strategy to choose", log.String("event", string(d.EventType)))
		return
	}
	log.Info("decision timed out, choosing strategy",
		log.String("event", string(d.EventType)),
		log.Int("lap", d.Lap),
		log.String("strategy", id))
	t.choose(d, id)
}
