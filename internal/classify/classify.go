// Package classify assigns reference types to named entities whose type the
// source does not state outright.
//
// Signals are tried in a fixed order: an explicit type or category, then the
// containing folder, then tags. Anything left over becomes an item. Results
// are advisory; writers can reclassify later.
package classify

import (
	"path"
	"strings"

	"github.com/plotsync/plotsync/internal/types"
)

// DefaultReviewThreshold is the share of guessed classifications at which a
// manual review is suggested.
const DefaultReviewThreshold = 0.25

// Result is the outcome of classifying one reference.
type Result struct {
	Type       types.RefType    `json:"type"`
	Basis      types.Basis      `json:"basis"`
	Confidence types.Confidence `json:"confidence"`
}

// Guessed reports whether the result came from a weak signal.
func (r Result) Guessed() bool {
	return r.Basis == types.BasisTag || r.Basis == types.BasisDefault
}

var vocabulary = map[types.RefType][]string{
	types.RefCharacter:    {"characters", "people", "person", "cast", "npcs"},
	types.RefLocation:     {"locations", "places", "settings", "world"},
	types.RefItem:         {"items", "objects", "artifacts"},
	types.RefObjective:    {"objectives", "goals", "quests"},
	types.RefOrganization: {"organizations", "factions", "groups", "orgs"},
}

var lookup = buildLookup()

func buildLookup() map[string]types.RefType {
	m := make(map[string]types.RefType)
	for t, words := range vocabulary {
		m[string(t)] = t
		for _, w := range words {
			m[w] = t
			m[singular(w)] = t
		}
	}
	return m
}

func singular(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return strings.TrimSuffix(w, "ies") + "y"
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return strings.TrimSuffix(w, "s")
	}
	return w
}

// Lookup maps a word from a type field, folder name or tag to a reference
// type. Matching is case-insensitive and ignores plural endings.
func Lookup(word string) (types.RefType, bool) {
	w := strings.ToLower(strings.TrimSpace(word))
	w = strings.TrimPrefix(w, "#")
	if w == "" {
		return "", false
	}
	if t, ok := lookup[w]; ok {
		return t, true
	}
	t, ok := lookup[singular(w)]
	return t, ok
}

// FolderType matches the segments of a slash separated folder path,
// innermost first.
func FolderType(folder string) (types.RefType, bool) {
	folder = strings.Trim(path.Clean("/"+strings.ReplaceAll(folder, "\\", "/")), "/")
	if folder == "" {
		return "", false
	}
	segs := strings.Split(folder, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if t, ok := Lookup(segs[i]); ok {
			return t, true
		}
	}
	return "", false
}

// TagType matches tags, including nested tags such as "type/npc".
func TagType(tags []string) (types.RefType, bool) {
	for _, tag := range tags {
		parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(tag), "#"), "/")
		for i := len(parts) - 1; i >= 0; i-- {
			if t, ok := Lookup(parts[i]); ok {
				return t, true
			}
		}
	}
	return "", false
}

// Classify applies the ordered heuristic to a set of signals.
func Classify(h types.ClassificationHint) Result {
	if t, ok := Lookup(h.Declared); ok {
		return Result{Type: t, Basis: types.BasisDeclared, Confidence: types.ConfidenceHigh}
	}
	if t, ok := FolderType(h.Folder); ok {
		return Result{Type: t, Basis: types.BasisFolder, Confidence: types.ConfidenceMedium}
	}
	if t, ok := TagType(h.Tags); ok {
		return Result{Type: t, Basis: types.BasisTag, Confidence: types.ConfidenceMedium}
	}
	return Result{Type: types.RefItem, Basis: types.BasisDefault, Confidence: types.ConfidenceLow}
}

// Apply classifies every reference that has no classification yet and
// returns the results for all of them, in order.
func Apply(refs []*types.ParsedReference) []Result {
	out := make([]Result, len(refs))
	for i, r := range refs {
		if r.Classification == "" {
			res := Classify(r.Hint)
			r.Type, r.Classification, r.Confidence = res.Type, res.Basis, res.Confidence
		}
		out[i] = Result{Type: r.Type, Basis: r.Classification, Confidence: r.Confidence}
	}
	return out
}
