// Package taskline recognizes, parses, and rewrites inline markdown task
// lines. Rewrites are line-local: unchanged fields keep their original
// textual form, and original text is never lost to a malformed token.
package taskline

import (
	"regexp"
	"sort"
	"strings"

	"github.com/untoldecay/obsbridge/internal/dates"
	"github.com/untoldecay/obsbridge/internal/types"
)

var (
	taskRe   = regexp.MustCompile(`^([ \t]*)([-*])[ \t]+\[([xX ])\][ \t]+(.*)$`)
	anchorRe = regexp.MustCompile(`\s*\^([A-Za-z0-9-]+)\s*$`)

	dueEmojiRe   = regexp.MustCompile(`📅\s*(\d{4}-\d{1,2}-\d{1,2})`)
	schedEmojiRe = regexp.MustCompile(`⏳\s*(\d{4}-\d{1,2}-\d{1,2})`)
	startEmojiRe = regexp.MustCompile(`🛫\s*(\d{4}-\d{1,2}-\d{1,2})`)
	doneEmojiRe  = regexp.MustCompile(`✅\s*(\d{4}-\d{1,2}-\d{1,2})`)

	duePartRe   = regexp.MustCompile(`\(due:\s*(\d{4}-\d{1,2}-\d{1,2})\)`)
	schedPartRe = regexp.MustCompile(`\(scheduled:\s*(\d{4}-\d{1,2}-\d{1,2})\)`)
	startPartRe = regexp.MustCompile(`\(start:\s*(\d{4}-\d{1,2}-\d{1,2})\)`)
	donePartRe  = regexp.MustCompile(`\(done:\s*(\d{4}-\d{1,2}-\d{1,2})\)`)

	priorityRe = regexp.MustCompile(`(⏫|🔼|🔽|🔺)`)
	recurRe    = regexp.MustCompile(`🔁`)
	// Hyphens and slashes allowed so markers like #from-reminders hold together.
	tagRe = regexp.MustCompile(`#([A-Za-z0-9_/-]+)`)

	fenceRe = regexp.MustCompile("^\\s*```")
)

// Field identifies one rewritable task field.
type Field int

const (
	FieldDue Field = iota
	FieldScheduled
	FieldStart
	FieldDoneOn
	FieldPriority
	FieldRecurrence
	FieldTag
)

// Style records how a date field was written in the source line, so a
// rewrite can keep the author's form.
type Style int

const (
	StyleEmoji Style = iota
	StyleParen
)

var priorityBySymbol = map[string]types.Priority{
	"⏫": types.PriorityHighest,
	"🔼": types.PriorityHigh,
	"🔽": types.PriorityMedium,
	"🔺": types.PriorityLow,
}

var symbolByPriority = map[types.Priority]string{
	types.PriorityHighest: "⏫",
	types.PriorityHigh:    "🔼",
	types.PriorityMedium:  "🔽",
	types.PriorityLow:     "🔺",
}

// token is one recognized trailing token with its original text.
type token struct {
	field Field
	raw   string
	value string
	style Style
	start int
	end   int
}

// ParsedTask is the structured view of a single task line. The original
// token order and spelling are retained for faithful rewrites.
type ParsedTask struct {
	Indent     string
	Bullet     string
	StatusChar byte
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

	tokens []token
	rest   string // post-anchor remainder the token spans index into
	raw    string
}

// Raw returns the original line text.
func (p *ParsedTask) Raw() string { return p.raw }

// Parse parses a single line. The second return is false when the line is
// not a task.
func Parse(line string) (*ParsedTask, bool) {
	m := taskRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	p := &ParsedTask{
		Indent:     m[1],
		Bullet:     m[2],
		StatusChar: m[3][0],
		Priority:   types.PriorityNone,
		raw:        line,
	}
	if p.StatusChar == 'x' || p.StatusChar == 'X' {
		p.Status = types.StatusDone
	} else {
		p.Status = types.StatusTodo
	}

	rest := m[4]
	if am := anchorRe.FindStringSubmatchIndex(rest); am != nil {
		p.Anchor = rest[am[2]:am[3]]
		rest = rest[:am[0]]
	}

	p.scanTokens(rest)
	p.Title = p.stripTokens(rest)
	p.rest = rest
	return p, true
}

// candidate is a potential token match found by one of the regexes.
type candidate struct {
	field      Field
	style      Style
	start, end int
	value      string
}

func collect(rest string, re *regexp.Regexp, field Field, style Style, dated bool) []candidate {
	var out []candidate
	for _, m := range re.FindAllStringSubmatchIndex(rest, -1) {
		c := candidate{field: field, style: style, start: m[0], end: m[1]}
		if len(m) > 2 && m[2] >= 0 {
			c.value = rest[m[2]:m[3]]
		}
		if dated {
			norm := dates.Normalize(c.value)
			if norm == "" {
				continue // malformed date: token stays in the title
			}
			c.value = norm
		}
		out = append(out, c)
	}
	return out
}

func (p *ParsedTask) scanTokens(rest string) {
	var cands []candidate
	cands = append(cands, collect(rest, dueEmojiRe, FieldDue, StyleEmoji, true)...)
	cands = append(cands, collect(rest, duePartRe, FieldDue, StyleParen, true)...)
	cands = append(cands, collect(rest, schedEmojiRe, FieldScheduled, StyleEmoji, true)...)
	cands = append(cands, collect(rest, schedPartRe, FieldScheduled, StyleParen, true)...)
	cands = append(cands, collect(rest, startEmojiRe, FieldStart, StyleEmoji, true)...)
	cands = append(cands, collect(rest, startPartRe, FieldStart, StyleParen, true)...)
	cands = append(cands, collect(rest, doneEmojiRe, FieldDoneOn, StyleEmoji, true)...)
	cands = append(cands, collect(rest, donePartRe, FieldDoneOn, StyleParen, true)...)
	cands = append(cands, collect(rest, priorityRe, FieldPriority, StyleEmoji, false)...)
	cands = append(cands, collect(rest, recurRe, FieldRecurrence, StyleEmoji, false)...)
	cands = append(cands, collect(rest, tagRe, FieldTag, StyleEmoji, false)...)
	sort.Slice(cands, func(i, j int) bool { return cands[i].start < cands[j].start })

	seen := make(map[Field]bool)
	consumedTo := 0
	for i, c := range cands {
		if c.start < consumedTo {
			continue // inside an earlier token span (e.g. recurrence text)
		}
		if c.field != FieldTag && seen[c.field] {
			continue // duplicated token: first occurrence wins, rest is title
		}
		tok := token{field: c.field, style: c.style, start: c.start, end: c.end, value: c.value}
		switch c.field {
		case FieldRecurrence:
			// Recurrence text runs until the next recognized token or EOL.
			end := len(rest)
			for j := i + 1; j < len(cands); j++ {
				if cands[j].start >= c.end {
					end = cands[j].start
					break
				}
			}
			tok.end = end
			tok.value = strings.TrimSpace(rest[c.end:end])
			if tok.value == "" {
				continue // bare 🔁 with no descriptor stays in the title
			}
			p.Recurrence = tok.value
		case FieldPriority:
			tok.value = rest[c.start:c.end]
			p.Priority = priorityBySymbol[tok.value]
		case FieldTag:
			p.Tags = append(p.Tags, tok.value)
		case FieldDue:
			p.Due = tok.value
		case FieldScheduled:
			p.Scheduled = tok.value
		case FieldStart:
			p.Start = tok.value
		case FieldDoneOn:
			p.DoneOn = tok.value
		}
		tok.raw = strings.TrimSpace(rest[tok.start:tok.end])
		seen[c.field] = true
		consumedTo = tok.end
		p.tokens = append(p.tokens, tok)
	}
}

// stripTokens removes accepted token spans and collapses the remainder into
// the title.
func (p *ParsedTask) stripTokens(rest string) string {
	if len(p.tokens) == 0 {
		return strings.TrimSpace(rest)
	}
	var b strings.Builder
	prev := 0
	for _, tok := range p.tokens {
		b.WriteString(rest[prev:tok.start])
		prev = tok.end
	}
	b.WriteString(rest[prev:])
	return strings.Join(strings.Fields(b.String()), " ")
}
