package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/obsbridge/internal/gateway"
	"github.com/untoldecay/obsbridge/internal/types"
)

func mdTask(title, due string) *types.Task {
	return &types.Task{
		Origin: types.OriginMarkdown,
		Title:  title,
		Status: types.StatusTodo,
		Due:    due,
	}
}

func TestForMarkdownAnchorWins(t *testing.T) {
	task := mdTask("Call mom", "")
	task.Anchor = "t-a1b2c3"
	got := ForMarkdown("home", "notes/Daily.md", task, NewOrdinalState())
	if got != "home/t-a1b2c3" {
		t.Errorf("anchored id = %q, want home/t-a1b2c3", got)
	}
}

func TestForMarkdownStableAcrossLineMoves(t *testing.T) {
	// Identity must not depend on line number: same content in the same file
	// produces the same id regardless of where the line sits.
	a := mdTask("Buy milk", "2025-01-10")
	a.Location = types.Location{Vault: "home", FilePath: "Inbox.md", Line: 3}
	b := mdTask("Buy milk", "2025-01-10")
	b.Location = types.Location{Vault: "home", FilePath: "Inbox.md", Line: 40}

	idA := ForMarkdown("home", "Inbox.md", a, NewOrdinalState())
	idB := ForMarkdown("home", "Inbox.md", b, NewOrdinalState())
	if idA != idB {
		t.Errorf("ids differ across line move: %q vs %q", idA, idB)
	}
	if !strings.HasPrefix(idA, "md-") {
		t.Errorf("hash id = %q, want md- prefix", idA)
	}
}

func TestForMarkdownOrdinalDisambiguates(t *testing.T) {
	state := NewOrdinalState()
	a := ForMarkdown("home", "Inbox.md", mdTask("Buy milk", ""), state)
	b := ForMarkdown("home", "Inbox.md", mdTask("Buy milk", ""), state)
	if a == b {
		t.Error("two identical tasks in one walk must get distinct ids")
	}
	// And the assignment is reproducible on the next walk.
	state2 := NewOrdinalState()
	a2 := ForMarkdown("home", "Inbox.md", mdTask("Buy milk", ""), state2)
	b2 := ForMarkdown("home", "Inbox.md", mdTask("Buy milk", ""), state2)
	if a != a2 || b != b2 {
		t.Error("ordinal ids must be stable across walks")
	}
}

func TestForMarkdownVaultScoped(t *testing.T) {
	a := ForMarkdown("home", "Inbox.md", mdTask("Buy milk", ""), NewOrdinalState())
	b := ForMarkdown("work", "Inbox.md", mdTask("Buy milk", ""), NewOrdinalState())
	if a == b {
		t.Error("same content in different vaults must get distinct ids")
	}
}

func TestForReminders(t *testing.T) {
	withExternal := gateway.Item{ID: "item-1", ExternalID: "x-abc", ListID: "L1"}
	if got := ForReminders(withExternal); got != "x-abc" {
		t.Errorf("external id: got %q", got)
	}
	withID := gateway.Item{ID: "item-1", ListID: "L1"}
	if got := ForReminders(withID); got != "L1:item-1" {
		t.Errorf("composite id: got %q", got)
	}
	bare := gateway.Item{Title: "Buy milk", ListID: "L1", DueYear: 2025, DueMonth: 1, DueDay: 10, CreatedAt: time.Now()}
	got := ForReminders(bare)
	if !strings.HasPrefix(got, "rem-") {
		t.Errorf("digest id = %q, want rem- prefix", got)
	}
	if again := ForReminders(bare); again != got {
		t.Error("digest id must be deterministic")
	}
}

func TestNewAnchorAvoidsCollisions(t *testing.T) {
	existing := map[string]bool{}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		a := NewAnchor(existing)
		if !strings.HasPrefix(a, "t-") || len(a) != 14 {
			t.Fatalf("anchor %q has unexpected shape", a)
		}
		if seen[a] {
			t.Fatalf("anchor %q repeated", a)
		}
		seen[a] = true
		existing[a] = true
	}
}

func TestCollectAnchors(t *testing.T) {
	lines := []string{
		"- [ ] one ^t-aaa111",
		"```",
		"- [ ] fenced ^t-bbb222",
		"```",
		"- [ ] two ^t-ccc333",
		"plain text ^not-collected",
	}
	got := CollectAnchors(lines)
	if !got["t-aaa111"] || !got["t-ccc333"] {
		t.Errorf("missing expected anchors: %v", got)
	}
	if got["t-bbb222"] {
		t.Error("fenced anchor must not be collected")
	}
	if len(got) != 2 {
		t.Errorf("got %d anchors, want 2: %v", len(got), got)
	}
}
