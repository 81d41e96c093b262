// Package identity assigns stable identifiers to tasks. Identifiers must
// survive re-indexing of unchanged content and must not change when a line
// merely moves within its file.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/untoldecay/obsbridge/internal/gateway"
	"github.com/untoldecay/obsbridge/internal/taskline"
	"github.com/untoldecay/obsbridge/internal/types"
)

// OrdinalState disambiguates identical tasks within one file walk. The
// ordinal is scoped to (vault, relpath, digest) and increments each time the
// same 3-tuple repeats in a file.
type OrdinalState struct {
	counts map[string]int
}

// NewOrdinalState returns state for one file walk.
func NewOrdinalState() *OrdinalState {
	return &OrdinalState{counts: make(map[string]int)}
}

func (s *OrdinalState) next(key string) int {
	n := s.counts[key]
	s.counts[key] = n + 1
	return n
}

// ForMarkdown derives the identifier for a freshly parsed markdown task.
// A block anchor is authoritative, namespaced per vault; otherwise the id is
// a deterministic hash of (vault, relpath, content digest, ordinal).
func ForMarkdown(vault, relpath string, t *types.Task, state *OrdinalState) string {
	if t.Anchor != "" {
		return vault + "/" + t.Anchor
	}
	digest := t.ContentDigest()
	key := vault + "\x00" + relpath + "\x00" + digest
	ordinal := state.next(key)

	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(ordinal)))
	return "md-" + hex.EncodeToString(h.Sum(nil))[:16]
}

// ForReminders derives the identifier for a gateway item: the external id
// when the platform provides one, else the list+item composite, else a
// digest of what little is stable.
func ForReminders(item gateway.Item) string {
	if item.ExternalID != "" {
		return item.ExternalID
	}
	if item.ID != "" {
		return item.ListID + ":" + item.ID
	}
	h := sha256.New()
	h.Write([]byte(item.Title))
	h.Write([]byte{0})
	h.Write([]byte(fmt.Sprintf("%04d-%02d-%02d", item.DueYear, item.DueMonth, item.DueDay)))
	h.Write([]byte{0})
	h.Write([]byte(item.ListID))
	return "rem-" + hex.EncodeToString(h.Sum(nil))[:16]
}

// NewAnchor mints a fresh block anchor distinct from every anchor already
// present in the file.
func NewAnchor(existing map[string]bool) string {
	for {
		var buf [6]byte
		_, _ = rand.Read(buf[:])
		candidate := "t-" + hex.EncodeToString(buf[:])
		if !existing[candidate] {
			return candidate
		}
	}
}

// CollectAnchors scans file lines for existing block anchors so newly minted
// anchors never collide.
func CollectAnchors(lines []string) map[string]bool {
	anchors := make(map[string]bool)
	w := taskline.NewWalker()
	for _, line := range lines {
		if !w.Line(line) {
			continue
		}
		if p, ok := taskline.Parse(line); ok && p.Anchor != "" {
			anchors[p.Anchor] = true
		}
	}
	return anchors
}
