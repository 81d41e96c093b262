package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/obsbridge/internal/changeset"
	"github.com/untoldecay/obsbridge/internal/gateway"
	"github.com/untoldecay/obsbridge/internal/gateway/memory"
	"github.com/untoldecay/obsbridge/internal/taskline"
	"github.com/untoldecay/obsbridge/internal/types"
	"github.com/untoldecay/obsbridge/internal/vault"
)

func defaultCreateOptions() CreateOptions {
	return CreateOptions{
		MdToRemCap:    50,
		RemToMdCap:    50,
		DefaultListID: "L1",
		InboxVault:    "home",
		InboxNote:     "RemindersInbox.md",
	}
}

func TestCreateRemindersCounterpart(t *testing.T) {
	root, mdIx := testVault(t, "- [ ] Buy milk 📅 2025-01-10 🔼\n", t1)

	g := memory.New("L1")
	g.Clock = func() time.Time { return t1 }
	remIx := types.NewIndex("test")

	cs := changeset.New("run1")
	opts := defaultCreateOptions()
	opts.WriteBackAnchors = false
	c := NewCreator(g, cs, map[string]string{"home": root}, opts, nil)

	var status types.RunStatus
	formed := c.Run(context.Background(), mdIx, remIx, nil, &status)

	if len(formed) != 1 {
		t.Fatalf("formed %d links, want 1", len(formed))
	}
	if formed[0].Score != 1.0 {
		t.Errorf("new link score = %v, want 1.0", formed[0].Score)
	}
	if g.Len() != 1 {
		t.Fatalf("gateway has %d items, want 1", g.Len())
	}
	item := g.Snapshot()[0]
	if item.Title != "Buy milk" || item.DueYear != 2025 || item.DueMonth != 1 || item.DueDay != 10 {
		t.Errorf("item = %+v", item)
	}
	if item.Priority != 4 { // high
		t.Errorf("priority = %d, want 4", item.Priority)
	}
	if remIx.Get(formed[0].RemID) == nil {
		t.Error("created task not registered in the reminders index")
	}
	if len(cs.RemCreated) != 1 {
		t.Errorf("changeset has %d rem creations, want 1", len(cs.RemCreated))
	}
}

func TestCreateWritesBackAnchor(t *testing.T) {
	root, mdIx := testVault(t, "- [ ] Buy milk\n", t1)
	oldID := firstID(mdIx)

	g := memory.New("L1")
	g.Clock = func() time.Time { return t1 }
	remIx := types.NewIndex("test")

	cs := changeset.New("run1")
	opts := defaultCreateOptions()
	opts.WriteBackAnchors = true
	c := NewCreator(g, cs, map[string]string{"home": root}, opts, nil)

	var status types.RunStatus
	formed := c.Run(context.Background(), mdIx, remIx, nil, &status)
	if len(formed) != 1 {
		t.Fatalf("formed %d links, want 1", len(formed))
	}

	data, _ := os.ReadFile(filepath.Join(root, "Inbox.md"))
	line := strings.TrimRight(string(data), "\n")
	p, ok := taskline.Parse(line)
	if !ok || p.Anchor == "" {
		t.Fatalf("line %q has no anchor", line)
	}
	wantID := "home/" + p.Anchor
	if formed[0].MdID != wantID {
		t.Errorf("link md id = %q, want %q", formed[0].MdID, wantID)
	}
	if mdIx.Get(oldID) != nil {
		t.Error("old hash id still in the index")
	}
	if mdIx.Get(wantID) == nil {
		t.Error("anchored id missing from the index")
	}
}

func TestCreateMarkdownCounterpart(t *testing.T) {
	root := t.TempDir()
	mdIx := types.NewIndex("test")

	g := memory.New("L1")
	g.Clock = func() time.Time { return t1 }
	item := g.Seed(gateway.Item{ListID: "L1", Title: "Pick up package", DueYear: 2025, DueMonth: 7, DueDay: 1})
	remIx := remIndexFrom(*item)

	cs := changeset.New("run1")
	c := NewCreator(g, cs, map[string]string{"home": root}, defaultCreateOptions(), nil)

	var status types.RunStatus
	formed := c.Run(context.Background(), mdIx, remIx, nil, &status)
	if len(formed) != 1 {
		t.Fatalf("formed %d links, want 1", len(formed))
	}

	data, err := os.ReadFile(filepath.Join(root, "RemindersInbox.md"))
	if err != nil {
		t.Fatalf("inbox note: %v", err)
	}
	line := strings.TrimRight(string(data), "\n")
	p, ok := taskline.Parse(line)
	if !ok {
		t.Fatalf("inbox line %q is not a task", line)
	}
	if p.Title != "Pick up package" || p.Due != "2025-07-01" || p.Anchor == "" {
		t.Errorf("parsed = %+v", p)
	}
	found := false
	for _, tag := range p.Tags {
		if tag == "from-reminders" {
			found = true
		}
	}
	if !found {
		t.Errorf("tags = %v, want from-reminders marker", p.Tags)
	}
	if mdIx.Get(formed[0].MdID) == nil {
		t.Error("created task not registered in the markdown index")
	}
	if len(cs.MdCreated) != 1 {
		t.Errorf("changeset has %d md creations, want 1", len(cs.MdCreated))
	}

	// The new line must index back to the same anchored id.
	tasks := vault.ParseContent("home", "RemindersInbox.md", string(data), t1)
	if len(tasks) != 1 || tasks[0].ID != formed[0].MdID {
		t.Errorf("reparse id = %v, want %s", tasks, formed[0].MdID)
	}
}

func TestCreateHonorsCaps(t *testing.T) {
	content := "- [ ] one\n- [ ] two\n- [ ] three\n"
	root, mdIx := testVault(t, content, t1)

	g := memory.New("L1")
	g.Clock = func() time.Time { return t1 }
	remIx := types.NewIndex("test")

	cs := changeset.New("run1")
	opts := defaultCreateOptions()
	opts.MdToRemCap = 2
	c := NewCreator(g, cs, map[string]string{"home": root}, opts, nil)

	var status types.RunStatus
	formed := c.Run(context.Background(), mdIx, remIx, nil, &status)
	if len(formed) != 2 {
		t.Fatalf("formed %d links, want cap of 2", len(formed))
	}
	if g.Len() != 2 {
		t.Errorf("gateway has %d items, want 2", g.Len())
	}
	if status.Skipped != 1 {
		t.Errorf("skipped = %d, want 1 over-cap task reported", status.Skipped)
	}
}

func TestCreateSkipsLinkedCompletedAndStale(t *testing.T) {
	content := "- [ ] linked\n- [x] finished\n- [ ] stale\n- [ ] fresh\n"
	root, mdIx := testVault(t, content, t1)

	var linkedID, staleID string
	for _, id := range mdIx.SortedIDs() {
		switch mdIx.Tasks[id].Title {
		case "linked":
			linkedID = id
		case "stale":
			staleID = id
		}
	}
	mdIx.Tasks[staleID].ModifiedAt = t1.AddDate(0, -6, 0)

	g := memory.New("L1")
	g.Clock = func() time.Time { return t1 }
	remIx := types.NewIndex("test")

	cs := changeset.New("run1")
	opts := defaultCreateOptions()
	opts.MaxAgeDays = 30
	c := NewCreator(g, cs, map[string]string{"home": root}, opts, nil)
	c.Now = func() time.Time { return t1 }

	var status types.RunStatus
	formed := c.Run(context.Background(), mdIx, remIx, []*types.Link{{MdID: linkedID, RemID: "rem-x"}}, &status)
	if len(formed) != 1 {
		t.Fatalf("formed %d links, want only the fresh task", len(formed))
	}
	if got := mdIx.Get(formed[0].MdID); got == nil || got.Title != "fresh" {
		t.Errorf("created counterpart for %v, want the fresh task", got)
	}
}
