package match

import (
	"github.com/untoldecay/obsbridge/internal/dates"
	"github.com/untoldecay/obsbridge/internal/types"
)

// Scoring weights. Title similarity dominates; dates and status refine.
const (
	weightTitle  = 0.65
	weightDate   = 0.25
	weightStatus = 0.10
)

// Score computes the affinity of one md/rem pair in [0, 1].
func Score(md, rem *types.Task, daysTolerance int) float64 {
	mdTokens := md.TitleTokens(Tokenize)
	remTokens := rem.TitleTokens(Tokenize)

	var titleSim float64
	if len(mdTokens) == 0 && len(remTokens) == 0 {
		// URL-only or markup-only titles normalize to nothing; fall back to
		// a raw case-insensitive comparison so identical ones still pair.
		if normRaw(md.Title) == normRaw(rem.Title) {
			titleSim = 1.0
		}
	} else {
		titleSim = Dice(mdTokens, remTokens)
	}

	return weightTitle*titleSim +
		weightDate*dateComponent(md.Due, rem.Due, daysTolerance) +
		weightStatus*statusComponent(md.Status, rem.Status)
}

// dateComponent: 1.0 on equal dates, linear decay to 0 across the
// tolerance window, 0 outside, 0.5 when both absent, 0 one-sided.
func dateComponent(a, b string, tolerance int) float64 {
	if a == "" && b == "" {
		return 0.5
	}
	if a == "" || b == "" {
		return 0
	}
	dist, ok := dates.DayDistance(a, b)
	if !ok {
		return 0
	}
	if dist == 0 {
		return 1.0
	}
	if tolerance <= 0 || dist > tolerance {
		return 0
	}
	return 1.0 - float64(dist)/float64(tolerance+1)
}

func statusComponent(a, b types.Status) float64 {
	if a == b {
		return 1.0
	}
	return 0.7
}

func normRaw(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' {
			continue
		}
		if 'A' <= r && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
