package pending

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"contact_relay_bot/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTable(ttl time.Duration) (*Table, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	table := NewTable(ttl)
	table.now = clock.Now
	return table, clock
}

func TestTakeReturnsActionBeforeExpiry(t *testing.T) {
	table, clock := newTestTable(time.Minute)

	begun := table.Begin(7, Action{Kind: KindSetting, Field: domain.FieldStartMessage, ChatID: 7})
	if !begun.Expires.Equal(clock.now.Add(time.Minute)) {
		t.Fatalf("expected expiry one minute ahead, got %v", begun.Expires)
	}

	clock.Advance(30 * time.Second)

	action, ok := table.Take(7)
	if !ok {
		t.Fatalf("expected pending action before expiry")
	}
	if action.Kind != KindSetting || action.Field != domain.FieldStartMessage {
		t.Fatalf("unexpected action %+v", action)
	}

	if _, ok := table.Take(7); ok {
		t.Fatalf("expected action to be consumed by first Take")
	}
}

func TestTakeIgnoresExpiredAction(t *testing.T) {
	table, clock := newTestTable(time.Minute)

	table.Begin(7, Action{Kind: KindSetting, Field: domain.FieldStartMessage})
	clock.Advance(time.Minute)

	if _, ok := table.Take(7); ok {
		t.Fatalf("expected expired action to be ignored")
	}
	if table.Len() != 0 {
		t.Fatalf("expected expired action to be dropped, got %d entries", table.Len())
	}
}

func TestBeginSupersedesPreviousAction(t *testing.T) {
	table, _ := newTestTable(time.Minute)

	table.Begin(7, Action{Kind: KindSetting, Field: domain.FieldStartMessage})
	table.Begin(7, Action{Kind: KindSetting, Field: domain.FieldHelpMessage})

	action, ok := table.Take(7)
	if !ok || action.Field != domain.FieldHelpMessage {
		t.Fatalf("expected last Begin to win, got %+v ok=%v", action, ok)
	}
}

func TestRestoreReopensTakenAction(t *testing.T) {
	table, clock := newTestTable(time.Minute)

	begun := table.Begin(7, Action{Kind: KindReply, TargetID: 42})
	action, ok := table.Take(7)
	if !ok {
		t.Fatalf("expected open action")
	}

	if !table.Restore(7, action) {
		t.Fatalf("expected action to be restored")
	}
	again, ok := table.Peek(7)
	if !ok || again.TargetID != 42 || !again.Expires.Equal(begun.Expires) {
		t.Fatalf("expected original action with original expiry, got %+v ok=%v", again, ok)
	}

	taken, _ := table.Take(7)
	table.Begin(7, Action{Kind: KindReply, TargetID: 43})
	if table.Restore(7, taken) {
		t.Fatalf("restore must not replace a newer action")
	}
	if current, _ := table.Peek(7); current.TargetID != 43 {
		t.Fatalf("expected newer action to survive, got %+v", current)
	}

	stale, _ := table.Take(7)
	clock.Advance(2 * time.Minute)
	if table.Restore(7, stale) {
		t.Fatalf("restore must not reopen an expired action")
	}
	if table.Len() != 0 {
		t.Fatalf("expected empty table, got %d", table.Len())
	}
}

func TestActionsAreKeyedByRequester(t *testing.T) {
	table, _ := newTestTable(time.Minute)

	table.Begin(1, Action{Kind: KindReply, TargetID: 42})
	table.Begin(2, Action{Kind: KindSetting, Field: domain.FieldHelpMessage})

	if _, ok := table.Peek(3); ok {
		t.Fatalf("expected no action for unrelated requester")
	}

	action, ok := table.Take(1)
	if !ok || action.Kind != KindReply || action.TargetID != 42 {
		t.Fatalf("expected reply action for requester 1, got %+v ok=%v", action, ok)
	}
	if _, ok := table.Peek(2); !ok {
		t.Fatalf("expected requester 2 action to survive")
	}
}

func TestCancelAndSweep(t *testing.T) {
	table, clock := newTestTable(time.Minute)

	table.Begin(1, Action{Kind: KindReply, TargetID: 5})
	if !table.Cancel(1) {
		t.Fatalf("expected Cancel to report an open action")
	}
	if table.Cancel(1) {
		t.Fatalf("expected second Cancel to report nothing")
	}

	table.Begin(2, Action{Kind: KindReply, TargetID: 5})
	clock.Advance(30 * time.Second)
	table.Begin(3, Action{Kind: KindReply, TargetID: 6})
	clock.Advance(45 * time.Second)

	if removed := table.Sweep(); removed != 1 {
		t.Fatalf("expected one expired action swept, got %d", removed)
	}
	if _, ok := table.Peek(3); !ok {
		t.Fatalf("expected unexpired action to survive sweep")
	}
}

func TestSweeperRunLogsRemovals(t *testing.T) {
	table, clock := newTestTable(time.Second)
	hookLogger, hook := logtest.NewNullLogger()
	hookLogger.SetLevel(logrus.DebugLevel)

	sweeper, err := NewSweeper(table, time.Minute, logrus.NewEntry(hookLogger))
	if err != nil {
		t.Fatalf("NewSweeper returned error: %v", err)
	}

	table.Begin(1, Action{Kind: KindSetting, Field: domain.FieldHelpMessage})
	clock.Advance(2 * time.Second)

	sweeper.run()

	if table.Len() != 0 {
		t.Fatalf("expected sweep to empty the table, got %d", table.Len())
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "pending_expired" || entry.Data["removed"] != 1 {
		t.Fatalf("expected pending_expired log with removed=1, got %v", entry)
	}
}

func TestNewSweeperValidatesInput(t *testing.T) {
	if _, err := NewSweeper(nil, time.Minute, nil); err == nil {
		t.Fatalf("expected error for nil table")
	}
	if _, err := NewSweeper(NewTable(time.Minute), 0, nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}
