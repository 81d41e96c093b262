// Package match scores markdown/reminders task pairs and solves the
// one-to-one assignment under a minimum-score gate.
package match

import (
	"log/slog"
	"sort"
	"time"

	"github.com/untoldecay/obsbridge/internal/dates"
	"github.com/untoldecay/obsbridge/internal/types"
)

// Algorithm names the assignment strategy recorded in link-file metadata.
type Algorithm string

const (
	AlgorithmHungarian Algorithm = "hungarian"
	AlgorithmGreedy    Algorithm = "greedy"
)

// noDateBucket is the sentinel bucket for tasks without a due date.
const noDateBucket = "NO_DATE"

// Matcher pairs tasks across the two universes.
type Matcher struct {
	MinScore         float64
	DaysTolerance    int
	IncludeCompleted bool
	Algorithm        Algorithm
	Logger           *slog.Logger
}

// NewMatcher returns a matcher with the given gate and tolerance.
func NewMatcher(minScore float64, daysTolerance int, includeCompleted bool, algo Algorithm, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		MinScore:         minScore,
		DaysTolerance:    daysTolerance,
		IncludeCompleted: includeCompleted,
		Algorithm:        algo,
		Logger:           logger,
	}
}

// candidate is one scored md/rem pair above the gate.
type candidate struct {
	mdID  string
	remID string
	score float64
}

// Rebuild produces the new link set: links with vanished endpoints are
// retired, surviving links keep their created_at with refreshed scores, and
// unmatched tasks are paired by the configured assignment strategy.
func (m *Matcher) Rebuild(md, rem *types.Index, existing []*types.Link, now time.Time) []*types.Link {
	var links []*types.Link
	usedMd := make(map[string]bool)
	usedRem := make(map[string]bool)

	for _, l := range existing {
		mdTask := md.Get(l.MdID)
		remTask := rem.Get(l.RemID)
		if mdTask == nil || remTask == nil {
			m.Logger.Debug("retiring link with vanished endpoint", "md", l.MdID, "rem", l.RemID)
			continue
		}
		if usedMd[l.MdID] || usedRem[l.RemID] {
			m.Logger.Warn("duplicate link endpoint quarantined", "md", l.MdID, "rem", l.RemID)
			continue
		}
		kept := *l
		kept.Score = Score(mdTask, remTask, m.DaysTolerance)
		kept.LastScoredAt = now
		links = append(links, &kept)
		usedMd[l.MdID] = true
		usedRem[l.RemID] = true
	}

	mdFree := m.eligible(md, usedMd)
	remFree := m.eligible(rem, usedRem)
	cands := m.candidates(mdFree, remFree)

	var pairs []candidate
	if m.Algorithm == AlgorithmHungarian {
		pairs = m.assignHungarian(mdFree, remFree, cands)
	} else {
		pairs = assignGreedy(cands)
	}

	for _, p := range pairs {
		links = append(links, &types.Link{
			MdID:          p.mdID,
			RemID:         p.remID,
			Score:         p.score,
			CreatedAt:     now,
			LastScoredAt:  now,
			LastDirection: types.DirectionNone,
		})
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].MdID != links[j].MdID {
			return links[i].MdID < links[j].MdID
		}
		return links[i].RemID < links[j].RemID
	})
	return links
}

// eligible returns unlinked tasks in deterministic id order, excluding
// completed ones unless configured otherwise.
func (m *Matcher) eligible(ix *types.Index, used map[string]bool) []*types.Task {
	var out []*types.Task
	for _, id := range ix.SortedIDs() {
		t := ix.Tasks[id]
		if used[id] {
			continue
		}
		if !m.IncludeCompleted && t.Status == types.StatusDone {
			continue
		}
		out = append(out, t)
	}
	return out
}

// candidates scores pairs above the gate, pruning by due-date buckets: a
// reminders task with due date d only considers markdown buckets within
// ±tolerance days, plus the NO_DATE bucket.
func (m *Matcher) candidates(mdTasks, remTasks []*types.Task) []candidate {
	buckets := make(map[string][]*types.Task)
	for _, t := range mdTasks {
		key := noDateBucket
		if t.Due != "" {
			key = t.Due
		}
		buckets[key] = append(buckets[key], t)
	}

	var cands []candidate
	seen := make(map[[2]string]bool)
	consider := func(md, rem *types.Task) {
		key := [2]string{md.ID, rem.ID}
		if seen[key] {
			return
		}
		seen[key] = true
		if s := Score(md, rem, m.DaysTolerance); s >= m.MinScore {
			cands = append(cands, candidate{mdID: md.ID, remID: rem.ID, score: s})
		}
	}

	for _, rem := range remTasks {
		for _, md := range buckets[noDateBucket] {
			consider(md, rem)
		}
		if rem.Due == "" {
			// No date on the reminders side: only NO_DATE markdown tasks can
			// score a non-zero date component anyway, but a strong title can
			// still clear the gate, so scan the dated buckets too.
			for key, mds := range buckets {
				if key == noDateBucket {
					continue
				}
				for _, md := range mds {
					consider(md, rem)
				}
			}
			continue
		}
		due, ok := dates.Parse(rem.Due)
		if !ok {
			continue
		}
		for k := -m.DaysTolerance; k <= m.DaysTolerance; k++ {
			key := dates.Format(due.AddDate(0, 0, k))
			for _, md := range buckets[key] {
				consider(md, rem)
			}
		}
	}
	return cands
}

// assignHungarian runs Kuhn–Munkres on the 1−score cost matrix restricted
// to tasks that appear in at least one gated candidate.
func (m *Matcher) assignHungarian(mdTasks, remTasks []*types.Task, cands []candidate) []candidate {
	if len(cands) == 0 {
		return nil
	}
	mdIdx := make(map[string]int)
	remIdx := make(map[string]int)
	var mdIDs, remIDs []string
	for _, c := range cands {
		if _, ok := mdIdx[c.mdID]; !ok {
			mdIdx[c.mdID] = len(mdIDs)
			mdIDs = append(mdIDs, c.mdID)
		}
		if _, ok := remIdx[c.remID]; !ok {
			remIdx[c.remID] = len(remIDs)
			remIDs = append(remIDs, c.remID)
		}
	}

	// Below-gate cells carry a cost above the padding cost so the solver
	// never prefers them to leaving a slot unassigned.
	const gateCost = 2.0
	cost := make([][]float64, len(mdIDs))
	scores := make([][]float64, len(mdIDs))
	for i := range cost {
		cost[i] = make([]float64, len(remIDs))
		scores[i] = make([]float64, len(remIDs))
		for j := range cost[i] {
			cost[i][j] = gateCost
		}
	}
	for _, c := range cands {
		i, j := mdIdx[c.mdID], remIdx[c.remID]
		cost[i][j] = 1 - c.score
		scores[i][j] = c.score
	}

	assign := hungarian(cost)
	var out []candidate
	for i, j := range assign {
		if j < 0 || scores[i][j] < m.MinScore {
			continue
		}
		out = append(out, candidate{mdID: mdIDs[i], remID: remIDs[j], score: scores[i][j]})
	}
	sortCandidates(out)
	return out
}

// assignGreedy accepts pairs in descending score order with a total
// tie-break on (score, md_id, rem_id).
func assignGreedy(cands []candidate) []candidate {
	sortCandidates(cands)
	usedMd := make(map[string]bool)
	usedRem := make(map[string]bool)
	var out []candidate
	for _, c := range cands {
		if usedMd[c.mdID] || usedRem[c.remID] {
			continue
		}
		usedMd[c.mdID] = true
		usedRem[c.remID] = true
		out = append(out, c)
	}
	return out
}

func sortCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].mdID != cands[j].mdID {
			return cands[i].mdID < cands[j].mdID
		}
		return cands[i].remID < cands[j].remID
	})
}
