package dedupe

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
	"github.com/untoldecay/obsbridge/internal/reminders"
	"github.com/untoldecay/obsbridge/internal/types"
	"github.com/untoldecay/obsbridge/internal/vault"
)

var (
	t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
)

func mdIndexFromFile(t *testing.T, content string) (string, *types.Index) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "Inbox.md"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	ix := types.NewIndex("test")
	for _, task := range vault.ParseContent("home", "Inbox.md", content, t0) {
		ix.Add(task)
	}
	return root, ix
}

func TestClustersGroupByNormalizedTitle(t *testing.T) {
	ix := types.NewIndex("test")
	ix.Add(&types.Task{ID: "a", Origin: types.OriginMarkdown, Title: "Buy milk", CreatedAt: t0})
	ix.Add(&types.Task{ID: "b", Origin: types.OriginMarkdown, Title: "buy  MILK", CreatedAt: t1})
	ix.Add(&types.Task{ID: "c", Origin: types.OriginMarkdown, Title: "Walk dog", CreatedAt: t0})

	clusters := Clusters(ix, nil)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	c := clusters[0]
	if len(c.Tasks) != 2 {
		t.Fatalf("cluster has %d tasks, want 2", len(c.Tasks))
	}
	// Oldest survives.
	if c.Survivor.ID != "a" {
		t.Errorf("survivor = %s, want a (oldest)", c.Survivor.ID)
	}
}

func TestClustersPreferLinkedSurvivor(t *testing.T) {
	ix := types.NewIndex("test")
	ix.Add(&types.Task{ID: "a", Origin: types.OriginMarkdown, Title: "Buy milk", CreatedAt: t0})
	ix.Add(&types.Task{ID: "b", Origin: types.OriginMarkdown, Title: "Buy milk", CreatedAt: t1})

	clusters := Clusters(ix, map[string]bool{"b": true})
	if clusters[0].Survivor.ID != "b" {
		t.Errorf("survivor = %s, want linked b over older a", clusters[0].Survivor.ID)
	}
}

func TestClustersScopeRemindersPerList(t *testing.T) {
	ix := types.NewIndex("test")
	ix.Add(&types.Task{ID: "a", Origin: types.OriginReminders, Title: "Buy milk", Location: types.Location{ListID: "L1"}})
	ix.Add(&types.Task{ID: "b", Origin: types.OriginReminders, Title: "Buy milk", Location: types.Location{ListID: "L2"}})

	if clusters := Clusters(ix, nil); len(clusters) != 0 {
		t.Fatalf("same title on two lists clustered: %v", clusters)
	}
}

func TestRunRetiresMarkdownDuplicates(t *testing.T) {
	root, mdIx := mdIndexFromFile(t, "- [ ] Buy milk\n- [ ] other thing\n- [ ] Buy milk\n")
	remIx := types.NewIndex("test")

	g := memory.New("L1")
	cs := changeset.New("run1")
	d := NewDeduper(g, cs, map[string]string{"home": root}, nil)

	var status types.RunStatus
	d.Run(context.Background(), mdIx, remIx, nil, &status)

	if status.Applied != 1 {
		t.Fatalf("status = %+v, want 1 retirement", status)
	}
	data, _ := os.ReadFile(filepath.Join(root, "Inbox.md"))
	if got := strings.Count(string(data), "Buy milk"); got != 1 {
		t.Errorf("file keeps %d copies, want 1:\n%s", got, data)
	}
	if !strings.Contains(string(data), "other thing") {
		t.Errorf("unrelated line lost:\n%s", data)
	}
	if len(mdIx.Tasks) != 2 {
		t.Errorf("index has %d tasks, want 2", len(mdIx.Tasks))
	}
	if len(cs.MdRetired) != 1 {
		t.Errorf("changeset has %d md retirements, want 1", len(cs.MdRetired))
	}
	if cs.MdRetired[0].OriginalText != "- [ ] Buy milk" {
		t.Errorf("retirement text = %q", cs.MdRetired[0].OriginalText)
	}
}

func TestRunRetiresReminderDuplicates(t *testing.T) {
	g := memory.New("L1")
	g.Clock = func() time.Time { return t0 }
	a := g.Seed(gateway.Item{ListID: "L1", Title: "Buy milk", CreatedAt: t0, ModifiedAt: t0})
	g.Clock = func() time.Time { return t1 }
	b := g.Seed(gateway.Item{ListID: "L1", Title: "Buy milk", CreatedAt: t1, ModifiedAt: t1})

	remIx := types.NewIndex("test")
	remIx.Add(reminders.TaskFromItem(*a))
	remIx.Add(reminders.TaskFromItem(*b))
	mdIx := types.NewIndex("test")

	cs := changeset.New("run1")
	d := NewDeduper(g, cs, nil, nil)

	var status types.RunStatus
	d.Run(context.Background(), mdIx, remIx, nil, &status)

	if status.Applied != 1 {
		t.Fatalf("status = %+v, want 1 retirement", status)
	}
	if g.Len() != 1 {
		t.Fatalf("gateway has %d items, want 1", g.Len())
	}
	// The older item survives.
	if got, _ := g.FindItem(context.Background(), a.ID, "L1"); got == nil {
		t.Error("oldest item was deleted")
	}
	if len(cs.RemRetired) != 1 {
		t.Errorf("changeset has %d rem retirements, want 1", len(cs.RemRetired))
	}
}

func TestRunSkipsLinkedDuplicates(t *testing.T) {
	root, mdIx := mdIndexFromFile(t, "- [ ] Buy milk\n- [ ] Buy milk\n")
	remIx := types.NewIndex("test")

	// Both copies are linked: neither may be retired.
	var links []*types.Link
	for _, id := range mdIx.SortedIDs() {
		links = append(links, &types.Link{MdID: id, RemID: "rem-" + id})
	}

	g := memory.New("L1")
	cs := changeset.New("run1")
	d := NewDeduper(g, cs, map[string]string{"home": root}, nil)

	var status types.RunStatus
	d.Run(context.Background(), mdIx, remIx, links, &status)

	if status.Applied != 0 || status.Skipped == 0 {
		t.Fatalf("status = %+v, want skip only", status)
	}
	data, _ := os.ReadFile(filepath.Join(root, "Inbox.md"))
	if string(data) != "- [ ] Buy milk\n- [ ] Buy milk\n" {
		t.Errorf("file changed: %q", data)
	}
}

func TestRunSkipsOpaqueLists(t *testing.T) {
	g := memory.New("L1")
	g.Clock = func() time.Time { return t0 }
	a := g.Seed(gateway.Item{ListID: "L1", Title: "Buy milk", CreatedAt: t0})
	b := g.Seed(gateway.Item{ListID: "L1", Title: "Buy milk", CreatedAt: t1})

	remIx := types.NewIndex("test")
	remIx.Add(reminders.TaskFromItem(*a))
	remIx.Add(reminders.TaskFromItem(*b))
	remIx.Meta.ErroredLists = map[string]string{"L1": "boom"}
	mdIx := types.NewIndex("test")

	cs := changeset.New("run1")
	d := NewDeduper(g, cs, nil, nil)

	var status types.RunStatus
	d.Run(context.Background(), mdIx, remIx, nil, &status)
	if status.Applied != 0 || status.Skipped == 0 {
		t.Fatalf("status = %+v, want skip only", status)
	}
	if g.Len() != 2 {
		t.Errorf("gateway has %d items, want 2 untouched", g.Len())
	}
}

func TestPreviewDoesNotMutate(t *testing.T) {
	root, mdIx := mdIndexFromFile(t, "- [ ] Buy milk\n- [ ] Buy milk\n")
	remIx := types.NewIndex("test")

	report := Preview(mdIx, remIx, nil)
	if len(report.Retire) != 1 {
		t.Fatalf("report retires %d, want 1", len(report.Retire))
	}
	data, _ := os.ReadFile(filepath.Join(root, "Inbox.md"))
	if string(data) != "- [ ] Buy milk\n- [ ] Buy milk\n" {
		t.Errorf("preview mutated the file: %q", data)
	}
	if len(mdIx.Tasks) != 2 {
		t.Errorf("preview mutated the index")
	}
}
