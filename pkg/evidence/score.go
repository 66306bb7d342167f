package evidence

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/matzehuels/evidencepack/pkg/analyzers"
)

// Scoring dimensions in report order.
const (
	DimensionSecurity        = "security"
	DimensionMaintainability = "maintainability"
	DimensionBusFactor       = "bus_factor"
	DimensionGovernance      = "governance"
	DimensionVelocity        = "velocity"
)

// dimensionWeights sum to one. Dimensions without evidence are left out and
// the remaining weights are renormalized.
var dimensionWeights = []struct {
	name   string
	weight float64
}{
	{DimensionSecurity, 0.30},
	{DimensionMaintainability, 0.25},
	{DimensionBusFactor, 0.20},
	{DimensionGovernance, 0.15},
	{DimensionVelocity, 0.10},
}

// Windows for history-based metrics, measured back from GeneratedAt.
const (
	activeWindow   = 90 * 24 * time.Hour
	velocityWindow = 30 * 24 * time.Hour
)

// Scores is the scores section of summary.json. Every number is derived from
// evidence in the pack; nothing is estimated from the stack alone.
type Scores struct {
	Dimensions []DimensionScore `json:"dimensions"`
	// FinalScore is the weighted mean of the scored dimensions, 0 to 100.
	FinalScore float64 `json:"final_score"`
	Grade      string  `json:"grade"`
	// ProductQuality rates security and maintainability from 1 to 10.
	ProductQuality float64  `json:"product_quality"`
	Notes          []string `json:"notes"`
}

// DimensionScore is one scored dimension.
type DimensionScore struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	// Metrics holds the normalized score of each metric, 0 to 100.
	Metrics map[string]float64 `json:"metrics"`
}

// threshold maps a raw value to a score. For lower-is-better metrics the
// first row whose bound is >= the value wins; otherwise the first row whose
// bound is <= the value wins.
type threshold struct {
	bound float64
	score float64
}

var (
	criticalThresholds    = []threshold{{0, 100}, {1, 50}, {2, 25}}
	highThresholds        = []threshold{{0, 100}, {2, 70}, {5, 40}}
	coverageThresholds    = []threshold{{80, 100}, {60, 75}, {40, 50}, {20, 25}}
	topAuthorThresholds   = []threshold{{30, 100}, {50, 75}, {70, 50}, {90, 25}}
	maintainerThresholds  = []threshold{{5, 100}, {3, 75}, {2, 50}, {1, 25}}
	monthlyCommitsBuckets = []threshold{{20, 100}, {10, 75}, {5, 50}, {1, 25}}
)

func lowerIsBetter(v float64, ts []threshold) float64 {
	for _, t := range ts {
		if v <= t.bound {
			return t.score
		}
	}
	return 0
}

func higherIsBetter(v float64, ts []threshold) float64 {
	for _, t := range ts {
		if v >= t.bound {
			return t.score
		}
	}
	return 0
}

// scores grades s, which must already hold every analyzer section.
func (m Model) scores(s Summary) Scores {
	metrics := map[string]map[string]float64{}
	add := func(dim, metric string, score float64) {
		if metrics[dim] == nil {
			metrics[dim] = map[string]float64{}
		}
		metrics[dim][metric] = score
	}

	if sec := s.Security; sec != nil {
		add(DimensionSecurity, "critical_open", lowerIsBetter(float64(sec.Total.Critical), criticalThresholds))
		add(DimensionSecurity, "high_open", lowerIsBetter(float64(sec.Total.High), highThresholds))
	}

	if q := s.Quality; q != nil {
		if q.Coverage != nil {
			add(DimensionMaintainability, "line_coverage", higherIsBetter(q.Coverage.Lines, coverageThresholds))
		}
		if q.Tests != nil && q.Tests.Total > 0 {
			add(DimensionMaintainability, "test_pass_rate", round2(100*float64(q.Tests.Passed)/float64(q.Tests.Total)))
		}
	}

	if h, ok := Payload[analyzers.HistoryReport](m, analyzers.NameCommits); ok && len(h.RecentCommits) > 0 {
		share, active, monthly := historyStats(h.RecentCommits, m.Meta.GeneratedAt)
		add(DimensionBusFactor, "top_author_share", lowerIsBetter(share, topAuthorThresholds))
		add(DimensionBusFactor, "active_maintainers", higherIsBetter(float64(active), maintainerThresholds))
		add(DimensionVelocity, "commits_last_30d", higherIsBetter(float64(monthly), monthlyCommitsBuckets))
	}

	add(DimensionGovernance, "docs_generated", boolScore(s.Documentation.Source == "generated"))
	add(DimensionGovernance, "ci_build", boolScore(m.Meta.CIURL != ""))
	if d := s.Dependencies; d != nil && d.Ecosystems > 0 {
		add(DimensionGovernance, "lockfiles", round2(100*float64(d.Lockfiles)/float64(d.Ecosystems)))
	}

	out := Scores{Dimensions: []DimensionScore{}, Notes: []string{}}
	var total, weights float64
	for _, dw := range dimensionWeights {
		ms, ok := metrics[dw.name]
		if !ok {
			continue
		}
		var sum float64
		for _, k := range slices.Sorted(maps.Keys(ms)) {
			sum += ms[k]
		}
		score := round2(sum / float64(len(ms)))
		out.Dimensions = append(out.Dimensions, DimensionScore{Name: dw.name, Score: score, Weight: dw.weight, Metrics: ms})
		total += score * dw.weight
		weights += dw.weight
	}
	if weights > 0 {
		out.FinalScore = round2(total / weights)
	}
	out.Grade = grade(out.FinalScore)
	out.ProductQuality = out.productQuality()
	out.Notes = out.notes()
	return out
}

// historyStats returns the share of the most frequent author in percent,
// the number of authors active within activeWindow and the number of
// commits within velocityWindow. Commits with unparsable dates only count
// towards the author share.
func historyStats(commits []analyzers.Commit, now time.Time) (share float64, active, monthly int) {
	counts := map[string]int{}
	recent := map[string]bool{}
	for _, c := range commits {
		author := c.Author.Email
		if author == "" {
			author = c.Author.Name
		}
		counts[author]++
		at, err := time.Parse(time.RFC3339, c.Date)
		if err != nil {
			continue
		}
		age := now.Sub(at)
		if age <= activeWindow {
			recent[author] = true
		}
		if age <= velocityWindow {
			monthly++
		}
	}
	top := 0
	for _, n := range counts {
		top = max(top, n)
	}
	return round2(100 * float64(top) / float64(len(commits))), len(recent), monthly
}

func (s Scores) dimension(name string) (DimensionScore, bool) {
	i := slices.IndexFunc(s.Dimensions, func(d DimensionScore) bool { return d.Name == name })
	if i < 0 {
		return DimensionScore{}, false
	}
	return s.Dimensions[i], true
}

func (s Scores) productQuality() float64 {
	var sum float64
	var n int
	for _, name := range []string{DimensionSecurity, DimensionMaintainability} {
		if d, ok := s.dimension(name); ok {
			sum += d.Score
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return math.Round((1+sum/float64(n)/100*9)*10) / 10
}

func (s Scores) notes() []string {
	notes := []string{}
	if len(s.Dimensions) > 0 {
		lowest := slices.MinFunc(s.Dimensions, func(a, b DimensionScore) int {
			return cmp.Compare(a.Score, b.Score)
		})
		if lowest.Score < 50 {
			notes = append(notes, fmt.Sprintf("Lowest scoring dimension: %s (%.1f/100).", lowest.Name, lowest.Score))
		}
	}
	switch {
	case s.FinalScore >= 80:
		notes = append(notes, "Strong engineering practices.")
	case s.FinalScore >= 60:
		notes = append(notes, "Good engineering foundation with some areas to improve.")
	default:
		notes = append(notes, "Engineering practices need significant improvement.")
	}
	return notes
}

func grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	}
	return "E"
}

func boolScore(b bool) float64 {
	if b {
		return 100
	}
	return 0
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
