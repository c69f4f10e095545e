package cachering

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// TransferHandler moves data between survivors after a departure. It is the
// state-transfer collaborator: it owns the actual data movement,
// acknowledgement and retries.
type TransferHandler interface {
	OnLeave(ctx context.Context, ev LeaveEvent) error
}

// TransferHandlerFunc implements TransferHandler.
type TransferHandlerFunc func(ctx context.Context, ev LeaveEvent) error

// OnLeave implements TransferHandler.
func (f TransferHandlerFunc) OnLeave(ctx context.Context, ev LeaveEvent) error { return f(ctx, ev) }

type nopHandler struct{}

func (nopHandler) OnLeave(context.Context, LeaveEvent) error { return nil }

// LeaveEvent is handed to the TransferHandler once per departure.
type LeaveEvent struct {
	Self     Member
	Leaver   Member
	OldRing  *Ring
	NewRing  *Ring
	Plan     *LeavePlan
	Decision Decision // Obligations of Self
}

// Tracker follows membership views on behalf of one node. It serialises view
// transitions so that every leave plan is computed from consistent snapshots,
// and finishes handing one departure to the TransferHandler before accepting
// the next view.
type Tracker struct {
	transitionMu sync.Mutex // Held for the whole of SetView and Leave

	ringMu sync.RWMutex
	ring   *Ring

	self      Member
	numOwners int
	options   options
	metrics   *metrics
}

var _ prometheus.Collector = (*Tracker)(nil)

// NewTracker creates a Tracker for self. No ring exists until the first call
// to SetView.
func NewTracker(self Member, numOwners int, opts ...Option) (*Tracker, error) {
	if numOwners <= 0 {
		return nil, ErrInvalidReplicationFactor
	}
	return &Tracker{
		self:      self,
		numOwners: numOwners,
		options:   applyOptions(opts),
		metrics:   newMetrics(),
	}, nil
}

// Ring returns the current ring, or nil before the first view.
func (t *Tracker) Ring() *Ring {
	t.ringMu.RLock()
	defer t.ringMu.RUnlock()
	return t.ring
}

// Owners returns the owners of key on the current ring.
func (t *Tracker) Owners(key string) ([]Member, error) {
	var r = t.Ring()
	if r == nil {
		return nil, ErrEmptyMembership
	}
	return r.OwnersOfKey(key, t.numOwners)
}

// SetView applies a new membership view. The first view installs the ring.
// Afterwards a view may only add members, or remove exactly one; a departure
// is planned and handed to the TransferHandler before SetView returns.
func (t *Tracker) SetView(ctx context.Context, members []Member) error {
	t.transitionMu.Lock()
	defer t.transitionMu.Unlock()

	return t.setView(ctx, members)
}

// setView applies members as the next view. transitionMu must be held.
func (t *Tracker) setView(ctx context.Context, members []Member) error {
	var next, err = Build(members, t.buildOptions()...)
	if err != nil {
		t.metrics.viewChanges.WithLabelValues("rejected").Inc()
		return fmt.Errorf("failed to build ring: %w", err)
	}
	if !next.Contains(t.self) {
		t.metrics.viewChanges.WithLabelValues("rejected").Inc()
		return UnknownMemberError{Member: t.self}
	}

	var current = t.Ring()
	if current == nil {
		t.install(next)
		t.metrics.viewChanges.WithLabelValues("initial").Inc()
		t.options.logger.Info("installed initial view",
			"self", t.self,
			"ring_size", next.Size(),
			"num_owners", t.numOwners)
		return nil
	}

	var joined, left = diffMembers(current, next)
	switch {
	case len(joined) == 0 && len(left) == 0:
		t.metrics.viewChanges.WithLabelValues("unchanged").Inc()
		return nil

	case len(left) == 0:
		t.install(next)
		t.metrics.viewChanges.WithLabelValues("join").Inc()
		t.options.logger.Info("members joined",
			"joined", joined,
			"ring_size", next.Size())
		return nil

	case len(joined) == 0 && len(left) == 1:
		return t.leave(ctx, current, next, left[0])

	default:
		t.metrics.viewChanges.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %d joined, %d left", ErrBatchedViewChange, len(joined), len(left))
	}
}

// Leave removes a single member from the current view.
func (t *Tracker) Leave(ctx context.Context, leaver Member) error {
	t.transitionMu.Lock()
	defer t.transitionMu.Unlock()

	var current = t.Ring()
	if current == nil {
		return ErrEmptyMembership
	}
	if !current.Contains(leaver) {
		return LeaverNotInOldRingError{Leaver: leaver}
	}

	var members = make([]Member, 0, current.Size()-1)
	for _, m := range current.Members() {
		if m != leaver {
			members = append(members, m)
		}
	}
	return t.setView(ctx, members)
}

// leave plans a departure and hands it to the TransferHandler. transitionMu
// must be held.
func (t *Tracker) leave(ctx context.Context, oldRing, newRing *Ring, leaver Member) error {
	var plan, err = PlanLeave(oldRing, newRing, t.numOwners, leaver, WithSenderPolicy(t.options.senderPolicy))
	if err != nil {
		t.metrics.viewChanges.WithLabelValues("rejected").Inc()
		return fmt.Errorf("failed to plan leave of %s: %w", leaver, err)
	}
	t.metrics.leavePlans.Inc()

	decision, err := plan.Decision(t.self)
	if err != nil {
		t.metrics.viewChanges.WithLabelValues("rejected").Inc()
		return err
	}
	t.metrics.observeDecision(decision)

	// The new ring is installed before the handler runs so lookups stop routing
	// to the leaver while state is moving.
	t.install(newRing)
	t.metrics.viewChanges.WithLabelValues("leave").Inc()

	t.options.logger.Info("member left",
		"self", t.self,
		"leaver", leaver,
		"ring_size", newRing.Size(),
		"affected_slots", len(plan.Slots),
		"receive", decision.Receive,
		"send", decision.Send)

	var ev = LeaveEvent{
		Self:     t.self,
		Leaver:   leaver,
		OldRing:  oldRing,
		NewRing:  newRing,
		Plan:     plan,
		Decision: decision,
	}
	if err := t.options.handler.OnLeave(ctx, ev); err != nil {
		t.options.logger.Error("state transfer failed",
			"leaver", leaver,
			"error", err)
		return fmt.Errorf("failed to transfer state after %s left: %w", leaver, err)
	}
	return nil
}

func (t *Tracker) install(r *Ring) {
	t.ringMu.Lock()
	defer t.ringMu.Unlock()
	t.ring = r
	t.metrics.ringMembers.Set(float64(r.Size()))
}

func (t *Tracker) buildOptions() []Option {
	return []Option{
		WithHashFunc(t.options.hashFunc),
		WithTieBreak(t.options.tieBreak),
	}
}

// diffMembers returns the members only in next and the members only in prev.
func diffMembers(prev, next *Ring) (joined, left []Member) {
	for _, m := range next.Members() {
		if !prev.Contains(m) {
			joined = append(joined, m)
		}
	}
	for _, m := range prev.Members() {
		if !next.Contains(m) {
			left = append(left, m)
		}
	}
	return joined, left
}

// Describe implements prometheus.Collector.
func (t *Tracker) Describe(ch chan<- *prometheus.Desc) { t.metrics.Describe(ch) }

// Collect implements prometheus.Collector.
func (t *Tracker) Collect(ch chan<- prometheus.Metric) { t.metrics.Collect(ch) }
