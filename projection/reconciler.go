// Package projection builds local channel timelines from observed
// events. Handles ordering, deduplication, gap detection, and the
// reconciliation of optimistic local echoes with server-confirmed
// messages. Does not emit events or interact with transports directly.
package projection

import (
	"sync"
	"time"

	"chat-relay/domain"
)

// Status classifies a live event against the known timeline.
type Status int

const (
	// Appended: the event extended the timeline by exactly one sequence.
	Appended Status = iota
	// Duplicate: the event was already covered by the snapshot or a
	// previous delivery and was discarded.
	Duplicate
	// GapDetected: at least one sequence is missing. The event was NOT
	// applied; the caller must fetch a fresh snapshot and feed it to
	// ApplySnapshot before resuming live application.
	GapDetected
)

func (s Status) String() string {
	switch s {
	case Appended:
		return "appended"
	case Duplicate:
		return "duplicate"
	default:
		return "gap_detected"
	}
}

// Entry is one rendered position: either a confirmed message or a
// pending local echo awaiting its confirmation.
type Entry struct {
	Message *domain.Message
	Pending *domain.PendingMessage
	Failed  bool
}

// Reconciler merges the durable history snapshot of one channel with
// its live tail into a single gap-free, duplicate-free sequence, and
// replaces a sender's optimistic echo in place when the confirmed copy
// arrives.
//
// Reconciler is safe for concurrent use by multiple goroutines.
type Reconciler struct {
	mu      sync.Mutex
	channel domain.Channel
	entries []Entry
	highest int64
	window  time.Duration
	now     func() time.Time
}

// NewReconciler creates a reconciler for one channel. window bounds
// both the echo matching (a confirmation arriving later than window
// after submission no longer matches) and the pending failure timeout.
func NewReconciler(ch domain.Channel, window time.Duration) *Reconciler {
	return &Reconciler{channel: ch, window: window, now: time.Now}
}

// ApplySnapshot replaces the confirmed timeline with a freshly fetched
// history (ascending by sequence). Unresolved pending echoes survive:
// those already present in the snapshot are resolved in place, the
// rest are re-appended after the confirmed tail. Live application may
// resume immediately, the new highest sequence is known from here.
func (r *Reconciler) ApplySnapshot(messages []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.unresolvedPending()

	r.entries = r.entries[:0]
	r.highest = 0
	for i := range messages {
		msg := messages[i]
		if msg.Seq <= r.highest {
			continue // snapshot overlap, keep first occurrence
		}
		entry := Entry{Message: &msg}
		if p := matchPending(pending, msg, r.window); p != nil {
			p.resolved = true
		}
		r.entries = append(r.entries, entry)
		r.highest = msg.Seq
	}

	for _, p := range pending {
		if !p.resolved {
			r.entries = append(r.entries, Entry{Pending: p.message, Failed: p.failed})
		}
	}
}

// OnLiveEvent classifies one pushed message against the highest known
// sequence and applies it when it extends the timeline.
func (r *Reconciler) OnLiveEvent(msg domain.Message) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case msg.Seq <= r.highest:
		return Duplicate
	case msg.Seq == r.highest+1:
		r.apply(msg)
		return Appended
	default:
		return GapDetected
	}
}

// SubmitPending renders a locally originated message immediately,
// keyed by its client temp id, until the confirmed copy arrives or the
// matching window elapses.
func (r *Reconciler) SubmitPending(pm domain.PendingMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Pending: &pm})
}

// ExpirePending marks pending echoes older than the matching window as
// failed and returns their client temp ids. A failed echo stays
// rendered (so the UI can surface the failure) but is excluded from
// duplicate detection against future unrelated messages.
func (r *Reconciler) ExpirePending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := r.now().Add(-r.window)
	var expired []string
	for i := range r.entries {
		e := &r.entries[i]
		if e.Pending != nil && e.Message == nil && !e.Failed && e.Pending.SubmittedAt.Before(deadline) {
			e.Failed = true
			expired = append(expired, e.Pending.ClientTempID)
		}
	}
	return expired
}

// Messages returns the confirmed timeline in sequence order.
func (r *Reconciler) Messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var messages []domain.Message
	for _, e := range r.entries {
		if e.Message != nil {
			messages = append(messages, *e.Message)
		}
	}
	return messages
}

// Entries returns the rendered sequence, confirmed and pending alike.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

func (r *Reconciler) HighestSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.highest
}

func (r *Reconciler) Channel() domain.Channel { return r.channel }

// apply extends the timeline by one confirmed message, replacing a
// matching pending echo in place rather than appending a second entry.
func (r *Reconciler) apply(msg domain.Message) {
	r.highest = msg.Seq
	for i := range r.entries {
		e := &r.entries[i]
		if e.Pending == nil || e.Message != nil || e.Failed {
			continue
		}
		if pendingMatches(*e.Pending, msg, r.window) {
			e.Message = &msg
			e.Pending = nil
			return
		}
	}
	r.entries = append(r.entries, Entry{Message: &msg})
}

type trackedPending struct {
	message  *domain.PendingMessage
	failed   bool
	resolved bool
}

func (r *Reconciler) unresolvedPending() []*trackedPending {
	var pending []*trackedPending
	for i := range r.entries {
		e := r.entries[i]
		if e.Pending != nil && e.Message == nil {
			pending = append(pending, &trackedPending{message: e.Pending, failed: e.Failed})
		}
	}
	return pending
}

func matchPending(pending []*trackedPending, msg domain.Message, window time.Duration) *trackedPending {
	for _, p := range pending {
		if p.resolved || p.failed {
			continue
		}
		if pendingMatches(*p.message, msg, window) {
			return p
		}
	}
	return nil
}

// pendingMatches pairs an optimistic echo with its confirmation:
// same sender, same channel, same content, confirmed within the
// matching window of submission (absolute difference tolerates a small
// client/server clock skew).
func pendingMatches(pm domain.PendingMessage, msg domain.Message, window time.Duration) bool {
	if pm.SenderID != msg.SenderID || pm.Channel != msg.Channel || pm.Content != msg.Content {
		return false
	}
	delta := msg.CreatedAt.Sub(pm.SubmittedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= window
}
