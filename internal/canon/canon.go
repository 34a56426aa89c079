// Package canon normalizes reader output into the canonical project tree.
//
// Every reader produces a ParsedProject, but readers differ in how careful
// they are about blank titles, empty beats, duplicate references and
// position numbering. Build smooths those differences out so the importer
// and the sync engine can rely on one shape:
//   - titles are NFC-normalized and never empty
//   - positions are contiguous per parent, starting at 0
//   - source ids are unique per level
//   - references are unique by source id, or by type and folded name
package canon

import (
	"fmt"
	"sort"
	"strings"

	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/types"
)

// Default titles for items the source left unnamed.
const (
	UntitledProject = "Untitled Project"
	UntitledChapter = "Untitled Chapter"
	UntitledScene   = "Untitled Scene"
)

// UnnamedReference returns the default name for a reference of type t.
func UnnamedReference(t types.RefType) string {
	if t == "" {
		return "Unnamed reference"
	}
	return "Unnamed " + string(t)
}

// Build returns a normalized copy of p. Reader warnings are kept and builder
// warnings are appended after them. p is not modified.
func Build(p *types.ParsedProject) *types.ParsedProject {
	out := p.Clone()
	b := &builder{
		format: string(out.Format),
		ids:    map[types.ItemKind]map[string]int{},
	}

	out.Title = idgen.NormalizeTitle(out.Title)
	if out.Title == "" {
		out.Title = UntitledProject
	}

	for i, ch := range out.Chapters {
		b.chapter(ch, i)
	}
	out.References = b.references(out.References)
	b.remapLinks(out.Chapters)

	out.Warnings = append(out.Warnings, b.warnings()...)
	return out
}

type builder struct {
	format string

	// ids counts source ids seen so far per level.
	ids map[types.ItemKind]map[string]int

	defaulted int
	dropped   int
	renamed   []string
	merged    []string

	// refAlias maps the source id of a merged-away reference to the one
	// that was kept.
	refAlias map[string]string
}

// uniqueID returns id, or id with a "#n" suffix when it was already used on
// this level. Missing ids are derived from the item's position path.
func (b *builder) uniqueID(kind types.ItemKind, id string, path ...string) string {
	if id == "" {
		id = idgen.SourceID(b.format, string(kind), idgen.HashKey(path...))
	}
	seen := b.ids[kind]
	if seen == nil {
		seen = make(map[string]int)
		b.ids[kind] = seen
	}
	if seen[id] == 0 {
		seen[id] = 1
		return id
	}
	for {
		seen[id]++
		candidate := fmt.Sprintf("%s#%d", id, seen[id])
		if seen[candidate] == 0 {
			seen[candidate] = 1
			b.renamed = append(b.renamed, id)
			return candidate
		}
	}
}

func (b *builder) title(s, fallback string) string {
	s = idgen.NormalizeTitle(s)
	if s == "" {
		b.defaulted++
		return fallback
	}
	return s
}

func (b *builder) chapter(ch *types.ParsedChapter, pos int) {
	ch.Position = pos
	ch.Title = b.title(ch.Title, UntitledChapter)
	ch.SourceID = b.uniqueID(types.KindChapter, ch.SourceID, "chapter", fmt.Sprint(pos))
	for i, sc := range ch.Scenes {
		b.scene(sc, i, pos)
	}
}

func (b *builder) scene(sc *types.ParsedScene, pos, chPos int) {
	sc.Position = pos
	sc.Title = b.title(sc.Title, UntitledScene)
	sc.SourceID = b.uniqueID(types.KindScene, sc.SourceID, "scene", fmt.Sprint(chPos), fmt.Sprint(pos))
	sc.Synopsis = trimmed(sc.Synopsis)
	sc.Status = strings.TrimSpace(sc.Status)

	beats := sc.Beats[:0]
	for _, bt := range sc.Beats {
		content := strings.TrimSpace(bt.Content)
		if content == "" {
			b.dropped++
			continue
		}
		bt.Content = content
		bt.Position = len(beats)
		bt.SourceID = b.uniqueID(types.KindBeat, bt.SourceID, "beat", sc.SourceID, fmt.Sprint(bt.Position))
		beats = append(beats, bt)
	}
	sc.Beats = beats

	links := sc.Links[:0]
	seen := make(map[string]bool)
	for _, l := range sc.Links {
		l.Name = idgen.NormalizeTitle(l.Name)
		if l.Name == "" && l.SourceID == "" {
			continue
		}
		key := linkKey(l)
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, l)
	}
	sc.Links = links
}

func linkKey(l types.ParsedLink) string {
	if l.SourceID != "" {
		return "id\x00" + l.SourceID
	}
	return string(l.Type) + "\x00" + idgen.FoldName(l.Name)
}

func refKey(r *types.ParsedReference) string {
	if r.SourceID != "" {
		return "id\x00" + r.SourceID
	}
	return string(r.Type) + "\x00" + idgen.FoldName(r.Name)
}

// references merges duplicates, keeping the first occurrence and filling
// its gaps from later ones.
func (b *builder) references(refs []*types.ParsedReference) []*types.ParsedReference {
	b.refAlias = make(map[string]string)
	byKey := make(map[string]*types.ParsedReference)
	byName := make(map[string]*types.ParsedReference)
	var out []*types.ParsedReference

	for _, r := range refs {
		r.Name = idgen.NormalizeTitle(r.Name)
		r.Description = trimmed(r.Description)

		first := byKey[refKey(r)]
		if first == nil && r.SourceID == "" {
			first = byName[string(r.Type)+"\x00"+idgen.FoldName(r.Name)]
		}
		if first != nil {
			mergeReference(first, r)
			if r.SourceID != "" && r.SourceID != first.SourceID {
				b.refAlias[r.SourceID] = first.SourceID
			}
			b.merged = append(b.merged, first.Name)
			continue
		}

		if r.Name == "" {
			b.defaulted++
			r.Name = UnnamedReference(r.Type)
		}
		byKey[refKey(r)] = r
		if name := string(r.Type) + "\x00" + idgen.FoldName(r.Name); byName[name] == nil {
			byName[name] = r
		}
		out = append(out, r)
	}
	return out
}

func mergeReference(dst, src *types.ParsedReference) {
	if dst.Description == nil {
		dst.Description = src.Description
	}
	if dst.Name == "" {
		dst.Name = src.Name
	}
	for k, v := range src.Attributes {
		if dst.Attributes == nil {
			dst.Attributes = make(map[string]string)
		}
		if _, ok := dst.Attributes[k]; !ok {
			dst.Attributes[k] = v
		}
	}
}

// remapLinks points scene links at the reference that survived a merge.
func (b *builder) remapLinks(chapters []*types.ParsedChapter) {
	if len(b.refAlias) == 0 {
		return
	}
	for _, ch := range chapters {
		for _, sc := range ch.Scenes {
			for i := range sc.Links {
				if to, ok := b.refAlias[sc.Links[i].SourceID]; ok {
					sc.Links[i].SourceID = to
				}
			}
		}
	}
}

func (b *builder) warnings() []string {
	var out []string
	if len(b.merged) > 0 {
		names := uniqueSorted(b.merged)
		out = append(out, fmt.Sprintf("merged %d duplicate reference(s): %s", len(b.merged), strings.Join(names, ", ")))
	}
	if b.defaulted > 0 {
		out = append(out, fmt.Sprintf("filled %d missing title(s) with defaults", b.defaulted))
	}
	if b.dropped > 0 {
		out = append(out, fmt.Sprintf("dropped %d blank beat(s)", b.dropped))
	}
	if len(b.renamed) > 0 {
		out = append(out, fmt.Sprintf("renamed %d duplicate source id(s): %s", len(b.renamed), strings.Join(uniqueSorted(b.renamed), ", ")))
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return types.StrPtr(strings.TrimSpace(*s))
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
