package taskline

import (
	"testing"

	"github.com/untoldecay/obsbridge/internal/types"
)

func TestParseBasics(t *testing.T) {
	tests := []struct {
		name string
		line string
		want ParsedTask
	}{
		{
			name: "plain todo",
			line: "- [ ] Buy milk",
			want: ParsedTask{Title: "Buy milk", Status: types.StatusTodo, Priority: types.PriorityNone},
		},
		{
			name: "done uppercase X",
			line: "- [X] Ship release",
			want: ParsedTask{Title: "Ship release", Status: types.StatusDone, Priority: types.PriorityNone},
		},
		{
			name: "emoji due date",
			line: "- [ ] Pay rent 📅 2025-01-31",
			want: ParsedTask{Title: "Pay rent", Status: types.StatusTodo, Due: "2025-01-31", Priority: types.PriorityNone},
		},
		{
			name: "paren due date",
			line: "- [ ] Pay rent (due: 2025-01-31)",
			want: ParsedTask{Title: "Pay rent", Status: types.StatusTodo, Due: "2025-01-31", Priority: types.PriorityNone},
		},
		{
			name: "single digit month and day normalized",
			line: "- [ ] Dentist 📅 2025-3-7",
			want: ParsedTask{Title: "Dentist", Status: types.StatusTodo, Due: "2025-03-07", Priority: types.PriorityNone},
		},
		{
			name: "all date kinds",
			line: "- [x] Big task 🛫 2025-01-01 ⏳ 2025-01-05 📅 2025-01-10 ✅ 2025-01-09",
			want: ParsedTask{
				Title: "Big task", Status: types.StatusDone,
				Start: "2025-01-01", Scheduled: "2025-01-05", Due: "2025-01-10", DoneOn: "2025-01-09",
				Priority: types.PriorityNone,
			},
		},
		{
			name: "priority highest",
			line: "- [ ] Fix outage ⏫",
			want: ParsedTask{Title: "Fix outage", Status: types.StatusTodo, Priority: types.PriorityHighest},
		},
		{
			name: "priority low",
			line: "- [ ] Tidy desk 🔺",
			want: ParsedTask{Title: "Tidy desk", Status: types.StatusTodo, Priority: types.PriorityLow},
		},
		{
			name: "recurrence with descriptor",
			line: "- [ ] Water plants 🔁 every week 📅 2025-04-01",
			want: ParsedTask{
				Title: "Water plants", Status: types.StatusTodo,
				Recurrence: "every week", Due: "2025-04-01", Priority: types.PriorityNone,
			},
		},
		{
			name: "tags",
			line: "- [ ] Review PR #work #from-reminders",
			want: ParsedTask{
				Title: "Review PR", Status: types.StatusTodo,
				Tags: []string{"work", "from-reminders"}, Priority: types.PriorityNone,
			},
		},
		{
			name: "anchor",
			line: "- [ ] Call mom ^t-a1b2c3",
			want: ParsedTask{Title: "Call mom", Status: types.StatusTodo, Anchor: "t-a1b2c3", Priority: types.PriorityNone},
		},
		{
			name: "malformed date stays in title",
			line: "- [ ] Sprint review 📅 2025-13-45",
			want: ParsedTask{Title: "Sprint review 📅 2025-13-45", Status: types.StatusTodo, Priority: types.PriorityNone},
		},
		{
			name: "duplicate due keeps first",
			line: "- [ ] Double 📅 2025-01-01 📅 2025-02-02",
			want: ParsedTask{Title: "Double 📅 2025-02-02", Status: types.StatusTodo, Due: "2025-01-01", Priority: types.PriorityNone},
		},
		{
			name: "star bullet with indent",
			line: "  * [ ] Nested item",
			want: ParsedTask{Indent: "  ", Title: "Nested item", Status: types.StatusTodo, Priority: types.PriorityNone},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.line)
			if !ok {
				t.Fatalf("Parse(%q) did not recognize a task", tt.line)
			}
			if got.Title != tt.want.Title {
				t.Errorf("title = %q, want %q", got.Title, tt.want.Title)
			}
			if got.Status != tt.want.Status {
				t.Errorf("status = %q, want %q", got.Status, tt.want.Status)
			}
			if got.Due != tt.want.Due || got.Scheduled != tt.want.Scheduled ||
				got.Start != tt.want.Start || got.DoneOn != tt.want.DoneOn {
				t.Errorf("dates = (%q %q %q %q), want (%q %q %q %q)",
					got.Due, got.Scheduled, got.Start, got.DoneOn,
					tt.want.Due, tt.want.Scheduled, tt.want.Start, tt.want.DoneOn)
			}
			if got.Priority != tt.want.Priority {
				t.Errorf("priority = %q, want %q", got.Priority, tt.want.Priority)
			}
			if got.Recurrence != tt.want.Recurrence {
				t.Errorf("recurrence = %q, want %q", got.Recurrence, tt.want.Recurrence)
			}
			if got.Anchor != tt.want.Anchor {
				t.Errorf("anchor = %q, want %q", got.Anchor, tt.want.Anchor)
			}
			if tt.want.Indent != "" && got.Indent != tt.want.Indent {
				t.Errorf("indent = %q, want %q", got.Indent, tt.want.Indent)
			}
			if len(tt.want.Tags) != len(got.Tags) {
				t.Fatalf("tags = %v, want %v", got.Tags, tt.want.Tags)
			}
			for i := range tt.want.Tags {
				if got.Tags[i] != tt.want.Tags[i] {
					t.Errorf("tags = %v, want %v", got.Tags, tt.want.Tags)
				}
			}
		})
	}
}

func TestParseRejectsNonTasks(t *testing.T) {
	for _, line := range []string{
		"Buy milk",
		"- Buy milk",
		"-[ ] Missing space",
		"# Heading",
		"> - [ ] quoted list",
		"",
	} {
		if _, ok := Parse(line); ok {
			t.Errorf("Parse(%q) = task, want rejection", line)
		}
	}
}

func TestRewriteRoundTrip(t *testing.T) {
	// With no changes, a single-spaced line survives rewrite byte for byte.
	lines := []string{
		"- [ ] Buy milk 📅 2025-03-01 #errand",
		"- [x] Done thing ✅ 2025-02-01",
		"  * [ ] Nested (due: 2025-01-31) ^t-abc123",
		"- [ ] Water plants 🔁 every week 📅 2025-04-01",
		"- [ ] Fix outage ⏫ 🛫 2025-01-01",
	}
	for _, line := range lines {
		p, ok := Parse(line)
		if !ok {
			t.Fatalf("Parse(%q) failed", line)
		}
		if got := p.Rewrite(Changes{}); got != line {
			t.Errorf("Rewrite no-op:\n got %q\nwant %q", got, line)
		}
	}
}

func TestRewriteKeepsDuplicateTokenOrder(t *testing.T) {
	// A literal duplicate in the title must stay behind the real token, so
	// a reparse of the rewritten line sees the same field values.
	line := "- [ ] Double 📅 2025-01-01 📅 2025-02-02"
	p, ok := Parse(line)
	if !ok {
		t.Fatal("parse failed")
	}
	if got := p.Rewrite(Changes{}); got != line {
		t.Errorf("Rewrite no-op:\n got %q\nwant %q", got, line)
	}

	due := "2025-03-03"
	got := p.Rewrite(Changes{Due: &due})
	want := "- [ ] Double 📅 2025-03-03 📅 2025-02-02"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	p2, ok := Parse(got)
	if !ok {
		t.Fatal("reparse failed")
	}
	if p2.Due != "2025-03-03" {
		t.Errorf("reparsed due = %q, want 2025-03-03", p2.Due)
	}
	if p2.Title != "Double 📅 2025-02-02" {
		t.Errorf("reparsed title = %q", p2.Title)
	}
}

func TestRewriteKeepsDateStyle(t *testing.T) {
	p, ok := Parse("- [ ] Pay rent (due: 2025-01-31)")
	if !ok {
		t.Fatal("parse failed")
	}
	due := "2025-02-01"
	got := p.Rewrite(Changes{Due: &due})
	want := "- [ ] Pay rent (due: 2025-02-01)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteAppendsNewFieldBeforeAnchor(t *testing.T) {
	p, ok := Parse("- [ ] Call mom ^t-a1b2c3")
	if !ok {
		t.Fatal("parse failed")
	}
	due := "2025-05-05"
	got := p.Rewrite(Changes{Due: &due})
	want := "- [ ] Call mom 📅 2025-05-05 ^t-a1b2c3"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteStatusFlip(t *testing.T) {
	p, ok := Parse("- [ ] Ship release 📅 2025-06-01")
	if !ok {
		t.Fatal("parse failed")
	}
	done := types.StatusDone
	doneOn := "2025-05-30"
	got := p.Rewrite(Changes{Status: &done, DoneOn: &doneOn})
	want := "- [x] Ship release 📅 2025-06-01 ✅ 2025-05-30"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// And back: clearing done_on removes the token.
	p2, ok := Parse(got)
	if !ok {
		t.Fatal("reparse failed")
	}
	todo := types.StatusTodo
	empty := ""
	got2 := p2.Rewrite(Changes{Status: &todo, DoneOn: &empty})
	want2 := "- [ ] Ship release 📅 2025-06-01"
	if got2 != want2 {
		t.Errorf("got %q, want %q", got2, want2)
	}
}

func TestRewritePriority(t *testing.T) {
	p, ok := Parse("- [ ] Fix outage ⏫")
	if !ok {
		t.Fatal("parse failed")
	}
	med := types.PriorityMedium
	if got, want := p.Rewrite(Changes{Priority: &med}), "- [ ] Fix outage 🔽"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	none := types.PriorityNone
	if got, want := p.Rewrite(Changes{Priority: &none}), "- [ ] Fix outage"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormat(t *testing.T) {
	got := Format(FormatOptions{
		Status:   types.StatusTodo,
		Title:    "Pick up package",
		Due:      "2025-07-01",
		Priority: types.PriorityHigh,
		Tags:     []string{"from-reminders"},
		Anchor:   "t-9f8e7d",
	})
	want := "- [ ] Pick up package 🔼 📅 2025-07-01 #from-reminders ^t-9f8e7d"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWalkerSkipsFences(t *testing.T) {
	lines := []string{
		"- [ ] real task",
		"```",
		"- [ ] not a task, fenced",
		"```",
		"- [ ] another real task",
		"```go",
		"- [ ] fenced again",
		"```",
	}
	w := NewWalker()
	var parsed []string
	for _, line := range lines {
		if !w.Line(line) {
			continue
		}
		if p, ok := Parse(line); ok {
			parsed = append(parsed, p.Title)
		}
	}
	if len(parsed) != 2 || parsed[0] != "real task" || parsed[1] != "another real task" {
		t.Errorf("parsed = %v, want the two unfenced tasks", parsed)
	}
}

func TestDetectLineEnding(t *testing.T) {
	if got := DetectLineEnding([]byte("a\r\nb\r\n")); got != "\r\n" {
		t.Errorf("CRLF content: got %q", got)
	}
	if got := DetectLineEnding([]byte("a\nb\n")); got != "\n" {
		t.Errorf("LF content: got %q", got)
	}
	if got := DetectLineEnding(nil); got != "\n" {
		t.Errorf("empty content: got %q", got)
	}
}
