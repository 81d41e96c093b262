package taskline

import (
	"bytes"
	"strings"

	"github.com/untoldecay/obsbridge/internal/types"
)

// Changes lists the field rewrites to apply to a task line. Nil pointers
// leave a field alone; an empty string (or PriorityNone) clears it.
type Changes struct {
	Title      *string
	Status     *types.Status
	Due        *string
	Scheduled  *string
	Start      *string
	DoneOn     *string
	Priority   *types.Priority
	Recurrence *string
}

func (c Changes) forField(f Field) (string, bool) {
	switch f {
	case FieldDue:
		if c.Due != nil {
			return *c.Due, true
		}
	case FieldScheduled:
		if c.Scheduled != nil {
			return *c.Scheduled, true
		}
	case FieldStart:
		if c.Start != nil {
			return *c.Start, true
		}
	case FieldDoneOn:
		if c.DoneOn != nil {
			return *c.DoneOn, true
		}
	case FieldPriority:
		if c.Priority != nil {
			return string(*c.Priority), true
		}
	case FieldRecurrence:
		if c.Recurrence != nil {
			return *c.Recurrence, true
		}
	}
	return "", false
}

var emojiForField = map[Field]string{
	FieldDue:       "📅",
	FieldScheduled: "⏳",
	FieldStart:     "🛫",
	FieldDoneOn:    "✅",
}

var parenNameForField = map[Field]string{
	FieldDue:       "due",
	FieldScheduled: "scheduled",
	FieldStart:     "start",
	FieldDoneOn:    "done",
}

func renderDate(f Field, style Style, date string) string {
	if style == StyleParen {
		return "(" + parenNameForField[f] + ": " + date + ")"
	}
	return emojiForField[f] + " " + date
}

// renderToken returns the emitted text for one token under ch; the second
// return is false when the change clears the field and the token is dropped.
func renderToken(tok token, ch Changes) (string, bool) {
	val, changed := ch.forField(tok.field)
	if !changed {
		return tok.raw, true
	}
	switch tok.field {
	case FieldPriority:
		if pr := types.Priority(val); pr != types.PriorityNone && pr != "" {
			return symbolByPriority[pr], true
		}
	case FieldRecurrence:
		if val != "" {
			return "🔁 " + val, true
		}
	default:
		if val != "" {
			return renderDate(tok.field, tok.style, val), true
		}
	}
	return "", false
}

// Rewrite re-emits the line with the given changes applied. Indent, bullet,
// status char, anchor, and the original spelling of every unchanged token
// are preserved; newly set fields are appended in canonical emoji form
// before the block anchor. Replacements are spliced into the original token
// spans, so title text keeps its position relative to every token — a
// literal duplicate sitting in the title can never jump ahead of the real
// token and change what a reparse sees.
func (p *ParsedTask) Rewrite(ch Changes) string {
	var parts []string
	present := make(map[Field]bool)
	for _, tok := range p.tokens {
		present[tok.field] = true
	}

	if ch.Title != nil {
		// A replaced title discards the original inter-token text; tokens
		// follow in their original order.
		if title := strings.TrimSpace(*ch.Title); title != "" {
			parts = append(parts, title)
		}
		for _, tok := range p.tokens {
			if text, keep := renderToken(tok, ch); keep {
				parts = append(parts, text)
			}
		}
	} else {
		var b strings.Builder
		prev := 0
		for _, tok := range p.tokens {
			b.WriteString(p.rest[prev:tok.start])
			if text, keep := renderToken(tok, ch); keep {
				// Trailing space covers zero-width gaps (a recurrence span runs
				// to the next token); the Fields join collapses any excess.
				b.WriteString(text)
				b.WriteByte(' ')
			}
			prev = tok.end
		}
		b.WriteString(p.rest[prev:])
		if body := strings.Join(strings.Fields(b.String()), " "); body != "" {
			parts = append(parts, body)
		}
	}

	// Fields being set that had no token yet: canonical emoji form, appended
	// after the existing tokens.
	for _, f := range []Field{FieldPriority, FieldRecurrence, FieldStart, FieldScheduled, FieldDue, FieldDoneOn} {
		if present[f] {
			continue
		}
		val, changed := ch.forField(f)
		if !changed || val == "" {
			continue
		}
		switch f {
		case FieldPriority:
			if pr := types.Priority(val); pr != types.PriorityNone {
				parts = append(parts, symbolByPriority[pr])
			}
		case FieldRecurrence:
			parts = append(parts, "🔁 "+val)
		default:
			parts = append(parts, renderDate(f, StyleEmoji, val))
		}
	}

	if p.Anchor != "" {
		parts = append(parts, "^"+p.Anchor)
	}

	statusChar := p.StatusChar
	if ch.Status != nil {
		switch {
		case *ch.Status == types.StatusDone && p.Status != types.StatusDone:
			statusChar = 'x'
		case *ch.Status == types.StatusTodo && p.Status != types.StatusTodo:
			statusChar = ' '
		}
	}

	return p.Indent + p.Bullet + " [" + string(statusChar) + "] " + strings.Join(parts, " ")
}

// FormatOptions describe a brand-new task line to emit.
type FormatOptions struct {
	Indent     string
	Status     types.Status
	Title      string
	Due        string
	Scheduled  string
	Start      string
	DoneOn     string
	Priority   types.Priority
	Recurrence string
	Tags       []string
	Anchor     string
}

// Format emits a new task line in canonical form.
func Format(o FormatOptions) string {
	var parts []string
	if o.Title != "" {
		parts = append(parts, o.Title)
	}
	if o.Priority != "" && o.Priority != types.PriorityNone {
		parts = append(parts, symbolByPriority[o.Priority])
	}
	if o.Recurrence != "" {
		parts = append(parts, "🔁 "+o.Recurrence)
	}
	if o.Start != "" {
		parts = append(parts, "🛫 "+o.Start)
	}
	if o.Scheduled != "" {
		parts = append(parts, "⏳ "+o.Scheduled)
	}
	if o.Due != "" {
		parts = append(parts, "📅 "+o.Due)
	}
	if o.DoneOn != "" {
		parts = append(parts, "✅ "+o.DoneOn)
	}
	for _, tag := range o.Tags {
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		parts = append(parts, tag)
	}
	if o.Anchor != "" {
		parts = append(parts, "^"+o.Anchor)
	}
	statusChar := " "
	if o.Status == types.StatusDone {
		statusChar = "x"
	}
	return o.Indent + "- [" + statusChar + "] " + strings.Join(parts, " ")
}

// Walker tracks fenced code blocks across a stateful line walk. Lines
// inside a fence are never task candidates; the fence delimiters themselves
// are not either.
type Walker struct {
	inFence bool
}

// NewWalker returns a walker positioned outside any fence.
func NewWalker() *Walker { return &Walker{} }

// Line consumes the next line and reports whether it may be parsed as a
// task.
func (w *Walker) Line(line string) bool {
	if fenceRe.MatchString(line) {
		w.inFence = !w.inFence
		return false
	}
	return !w.inFence
}

// DetectLineEnding returns "\r\n" if the content uses CRLF endings, else
// "\n".
func DetectLineEnding(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
