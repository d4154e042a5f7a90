package depth

import "strings"

// Quality heuristics consumed by the supervisor. All functions are pure over
// note-list snapshots; the only state is what the caller passes in. The
// numeric thresholds are empirically tuned — do not adjust them without a
// regression baseline.

const (
	// minInformationGain: below this gain between consecutive rounds the
	// research is considered to have stopped producing new information.
	minInformationGain = 0.05
	// maxSaturation: above this repeated-word ratio the notes are saturated.
	maxSaturation = 0.8
	// minEfficiency: below this score (after the first round) the research
	// is spending calls without producing substantive notes.
	minEfficiency = 0.3
)

// wordSet tokenizes notes into a lowercase word set.
func wordSet(notes []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, n := range notes {
		for _, w := range strings.Fields(strings.ToLower(n)) {
			set[w] = struct{}{}
		}
	}
	return set
}

// informationGain measures how much new vocabulary the current notes add over
// the previous snapshot: 1 − overlap ratio. 1.0 when there is no previous
// snapshot to compare against.
func informationGain(current, previous []string) float64 {
	if len(previous) == 0 {
		return 1.0
	}
	cur := wordSet(current)
	if len(cur) == 0 {
		return 0.0
	}
	prev := wordSet(previous)
	overlap := 0
	for w := range cur {
		if _, ok := prev[w]; ok {
			overlap++
		}
	}
	return 1.0 - float64(overlap)/float64(len(cur))
}

// qualityTrend is the linear delta over the last three round-quality scores.
// Returns 0 until three scores exist.
func qualityTrend(scores []float64) float64 {
	if len(scores) < 3 {
		return 0
	}
	recent := scores[len(scores)-3:]
	return (recent[2] - recent[0]) / 2
}

// saturation is the repeated-word ratio of the notes: 1 − unique/total.
func saturation(notes []string) float64 {
	total := 0
	unique := make(map[string]struct{})
	for _, n := range notes {
		for _, w := range strings.Fields(strings.ToLower(n)) {
			total++
			unique[w] = struct{}{}
		}
	}
	if total == 0 {
		return 0
	}
	return 1.0 - float64(len(unique))/float64(total)
}

// efficiency scores how substantive the average note is, in tiers.
func efficiency(notes []string) float64 {
	if len(notes) == 0 {
		return 0
	}
	avg := avgNoteLen(notes)
	switch {
	case avg > 200:
		return 0.8
	case avg > 100:
		return 0.6
	default:
		return 0.4
	}
}

// findingsSufficiency combines a count score and a length score, each capped
// at 0.5, into a 0..1 sufficiency estimate.
func findingsSufficiency(notes []string) float64 {
	if len(notes) == 0 {
		return 0
	}
	countScore := min(0.5, float64(len(notes))/10)
	qualityScore := min(0.5, avgNoteLen(notes)/400)
	return countScore + qualityScore
}

// informationDensity scales the unique-word ratio into 0..1.
func informationDensity(notes []string) float64 {
	total := 0
	unique := make(map[string]struct{})
	for _, n := range notes {
		for _, w := range strings.Fields(strings.ToLower(n)) {
			total++
			unique[w] = struct{}{}
		}
	}
	if total == 0 {
		return 0
	}
	return min(1.0, float64(len(unique))/float64(total)*2)
}

// roundQuality is the per-round quality score recorded into the trend
// history: equal-weight breadth (note count toward 5) and depth (average
// length toward 200 chars).
func roundQuality(notes []string) float64 {
	if len(notes) == 0 {
		return 0
	}
	breadth := min(1.0, float64(len(notes))/5)
	depth := min(1.0, avgNoteLen(notes)/200)
	return 0.5*breadth + 0.5*depth
}

// coverageScore is the fraction of substantive brief keywords (longer than 4
// characters) that appear anywhere in the collected notes.
func coverageScore(brief string, notes []string) float64 {
	var keywords []string
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(brief)) {
		w = strings.Trim(w, ".,;:!?()[]\"'")
		if len(w) <= 4 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
	}
	if len(keywords) == 0 {
		return 0
	}
	text := strings.ToLower(strings.Join(notes, " "))
	matched := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

func avgNoteLen(notes []string) float64 {
	if len(notes) == 0 {
		return 0
	}
	total := 0
	for _, n := range notes {
		total += len(n)
	}
	return float64(total) / float64(len(notes))
}
