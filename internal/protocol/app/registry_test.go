package app

import (
	"testing"

	"github.com/danmuck/pumpctl/internal/testutil/testlog"
)

func TestRegistryIsBidirectional(t *testing.T) {
	testlog.Start(t)
	for _, v := range Variants() {
		got, ok := LookupCommand(v.Command)
		if !ok || got.Kind != v.Kind {
			t.Fatalf("command 0x%04X: expected kind %d, got %d (ok=%v)", uint16(v.Command), v.Kind, got.Kind, ok)
		}
		cmd, ok := CommandOf(v.Kind)
		if !ok || cmd != v.Command {
			t.Fatalf("kind %d: expected command 0x%04X, got 0x%04X", v.Kind, uint16(v.Command), uint16(cmd))
		}
		msg := v.New()
		if msg.Kind() != v.Kind {
			t.Fatalf("variant %s constructs kind %d", v.Name, msg.Kind())
		}
		byName, ok := LookupName(v.Name)
		if !ok || byName.Command != v.Command {
			t.Fatalf("name %s not resolvable", v.Name)
		}
	}
}

func TestRegistryConstructsFreshInstances(t *testing.T) {
	testlog.Start(t)
	v, ok := LookupCommand(CmdCancelBolus)
	if !ok {
		t.Fatalf("cancel bolus not registered")
	}
	a := v.New().(*CancelBolusMessage)
	b := v.New().(*CancelBolusMessage)
	a.BolusID = 7
	if b.BolusID != 0 {
		t.Fatalf("registry must not share instances")
	}
}

func TestLookupMissing(t *testing.T) {
	testlog.Start(t)
	if _, ok := LookupCommand(0x0000); ok {
		t.Fatalf("expected unknown command")
	}
	if _, ok := LookupService(0xEE); ok {
		t.Fatalf("expected unknown service")
	}
	if _, ok := CommandOf(Kind(200)); ok {
		t.Fatalf("expected unknown kind")
	}
	s, ok := LookupService(ServiceHistory.ID)
	if !ok || s.Name != "history" {
		t.Fatalf("history service lookup failed: %+v ok=%v", s, ok)
	}
}

func TestPriorityOrdering(t *testing.T) {
	testlog.Start(t)
	msgs := []Message{
		&CancelBolusMessage{},  // highest
		&GetDateTimeMessage{},  // normal
		&DeliverBolusMessage{}, // higher
	}
	SortByPriority(msgs)
	got := []Priority{PriorityOf(msgs[0]), PriorityOf(msgs[1]), PriorityOf(msgs[2])}
	want := []Priority{PriorityNormal, PriorityHigher, PriorityHighest}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("priority order mismatch: got=%v want=%v", got, want)
		}
	}
	if Compare(msgs[0], msgs[0]) != 0 || Compare(msgs[2], msgs[0]) <= 0 {
		t.Fatalf("compare must use priority only")
	}
}
