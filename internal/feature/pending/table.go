// Package pending tracks interactive actions that wait for a requester's next
// message: a settings field edit or a reply to a user. Entries are keyed by
// requester, expire on their own and never block the update loop.
package pending

import (
	"sync"
	"time"
)

// Kind distinguishes what the awaited message will be used for.
type Kind int

const (
	// KindSetting stores the next message as a settings field value.
	KindSetting Kind = iota + 1
	// KindReply delivers the next message to a user.
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindSetting:
		return "setting"
	case KindReply:
		return "reply"
	default:
		return "unknown"
	}
}

// Action is an awaited message for one requester.
type Action struct {
	Kind     Kind
	Field    string // KindSetting
	TargetID int64  // KindReply
	ChatID   int64
	Expires  time.Time
}

// Table holds at most one Action per requester. A new Begin replaces any
// previous Action for the same requester.
type Table struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	actions map[int64]Action
}

// NewTable constructs a Table whose actions live for ttl.
func NewTable(ttl time.Duration) *Table {
	return &Table{
		ttl:     ttl,
		now:     time.Now,
		actions: make(map[int64]Action),
	}
}

// TTL returns how long a new action stays open.
func (t *Table) TTL() time.Duration {
	return t.ttl
}

// Begin opens action for requester, superseding any open one. It returns the
// action with its expiry filled in.
func (t *Table) Begin(requester int64, action Action) Action {
	t.mu.Lock()
	defer t.mu.Unlock()

	action.Expires = t.now().Add(t.ttl)
	t.actions[requester] = action
	return action
}

// Take removes and returns requester's open action. Expired actions are
// dropped and reported as absent.
func (t *Table) Take(requester int64) (Action, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	action, ok := t.actions[requester]
	if !ok {
		return Action{}, false
	}

	delete(t.actions, requester)
	if !t.now().Before(action.Expires) {
		return Action{}, false
	}

	return action, true
}

// Restore puts back an action obtained from Take. It does nothing when the
// action has expired or a newer one was begun in the meantime, and reports
// whether the action is open again.
func (t *Table) Restore(requester int64, action Action) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.actions[requester]; busy {
		return false
	}
	if !t.now().Before(action.Expires) {
		return false
	}

	t.actions[requester] = action
	return true
}

// Peek reports requester's open action without consuming it.
func (t *Table) Peek(requester int64) (Action, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	action, ok := t.actions[requester]
	if !ok || !t.now().Before(action.Expires) {
		return Action{}, false
	}
	return action, true
}

// Cancel drops requester's action and reports whether an unexpired one existed.
func (t *Table) Cancel(requester int64) bool {
	_, ok := t.Take(requester)
	return ok
}

// Sweep drops every expired action and returns how many were removed.
func (t *Table) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for requester, action := range t.actions {
		if !now.Before(action.Expires) {
			delete(t.actions, requester)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored actions, expired or not.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.actions)
}
