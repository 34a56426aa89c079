package classify

import "github.com/plotsync/plotsync/internal/types"

// Report summarizes how many classifications were guesses.
type Report struct {
	Total       int                   `json:"total"`
	Guessed     int                   `json:"guessed"`
	Share       float64               `json:"share"`
	NeedsReview bool                  `json:"needs_review"`
	ByType      map[types.RefType]int `json:"by_type,omitempty"`
}

// Summarize builds a report. A non-positive threshold uses
// DefaultReviewThreshold.
func Summarize(results []Result, threshold float64) Report {
	if threshold <= 0 {
		threshold = DefaultReviewThreshold
	}
	rep := Report{Total: len(results), ByType: make(map[types.RefType]int)}
	for _, r := range results {
		rep.ByType[r.Type]++
		if r.Guessed() {
			rep.Guessed++
		}
	}
	if rep.Total > 0 {
		rep.Share = float64(rep.Guessed) / float64(rep.Total)
		rep.NeedsReview = rep.Share >= threshold
	}
	return rep
}

// ResultsOf reads the stored classification of persisted references.
func ResultsOf(refs []*types.Reference) []Result {
	out := make([]Result, 0, len(refs))
	for _, r := range refs {
		if r.Archived {
			continue
		}
		out = append(out, Result{Type: r.Type, Basis: r.Classification, Confidence: r.Confidence})
	}
	return out
}
