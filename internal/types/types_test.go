package types

import "testing"

func TestRunStatusDisposition(t *testing.T) {
	tests := []struct {
		name   string
		status RunStatus
		want   Disposition
	}{
		{"empty run", RunStatus{}, RunClean},
		{"all applied", RunStatus{Applied: 5}, RunClean},
		{"skipped only", RunStatus{Skipped: 2}, RunPartial},
		{"applied with skips", RunStatus{Applied: 3, Skipped: 1}, RunPartial},
		{"failures with progress", RunStatus{Applied: 3, Failed: 1, Transient: 1}, RunPartial},
		{"semantic with progress", RunStatus{Applied: 1, Semantic: 2}, RunPartial},
		{"nothing landed", RunStatus{Failed: 2, Transient: 2}, RunFailed},
		{"semantic only", RunStatus{Semantic: 1}, RunFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Disposition(); got != tt.want {
				t.Errorf("Disposition(%+v) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestRunStatusMerge(t *testing.T) {
	a := RunStatus{Applied: 1, Skipped: 2, Failed: 3}
	a.Merge(RunStatus{Applied: 10, Transient: 1, Semantic: 4, Integrity: 5})
	want := RunStatus{Applied: 11, Skipped: 2, Failed: 3, Transient: 1, Semantic: 4, Integrity: 5}
	if a != want {
		t.Errorf("merged = %+v, want %+v", a, want)
	}
}

func TestContentDigestIgnoresTagOrder(t *testing.T) {
	a := Task{Title: "Buy milk", Due: "2025-01-10", Status: StatusTodo, Tags: []string{"home", "errand"}}
	b := Task{Title: "Buy milk", Due: "2025-01-10", Status: StatusTodo, Tags: []string{"errand", "home"}}
	if a.ContentDigest() != b.ContentDigest() {
		t.Error("digest depends on tag order")
	}
	c := Task{Title: "Buy milk", Due: "2025-01-11", Status: StatusTodo, Tags: []string{"home", "errand"}}
	if a.ContentDigest() == c.ContentDigest() {
		t.Error("digest ignores the due date")
	}
}
