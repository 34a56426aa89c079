// Package vault reads Longform-style projects from a linked-note vault.
//
// An index note declares the ordered scene list in its header; each scene is
// its own note. Other notes in the vault become references when something
// marks them as story material: a recognized folder, a declared type, tags,
// or a link from a scene.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plotsync/plotsync/internal/classify"
	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/types"
)

const format = types.FormatVault

func init() {
	reader.Register(format, func() reader.Reader { return &Reader{} })
}

// linkFields maps scene fields to the reference type their values name.
var linkFields = []struct {
	keys []string
	typ  types.RefType
}{
	{[]string{"pov"}, types.RefCharacter},
	{[]string{"characters"}, types.RefCharacter},
	{[]string{"setting", "location", "locations"}, types.RefLocation},
	{[]string{"items"}, types.RefItem},
	{[]string{"objectives"}, types.RefObjective},
	{[]string{"organizations", "factions"}, types.RefOrganization},
}

// reservedKeys are header keys that are not copied into reference attributes.
var reservedKeys = map[string]bool{
	"title": true, "type": true, "category": true, "tags": true, "aliases": true,
	"description": true, "summary": true, "longform": true,
}

// Reader parses a vault.
type Reader struct{}

// Format implements reader.Reader.
func (r *Reader) Format() types.Format { return format }

// SourceRoot implements reader.Scoped. An index note is parsed together
// with every note in its folder.
func (r *Reader) SourceRoot(path string) string {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return filepath.Dir(path)
	}
	return path
}

// Parse implements reader.Reader. in.Path may name the index note or a
// directory holding exactly one index note.
func (r *Reader) Parse(ctx context.Context, in reader.Input) (*types.ParsedProject, error) {
	info, err := reader.StatSource(in.Path)
	if err != nil {
		return nil, err
	}

	root := in.Path
	if !info.IsDir() {
		root = filepath.Dir(in.Path)
	}
	notes, err := scan(ctx, root, in)
	if err != nil {
		return nil, err
	}

	var indexNote *note
	if info.IsDir() {
		indexNote, err = findIndex(in.Path, notes)
		if err != nil {
			return nil, err
		}
	} else {
		indexNote, err = loadNote(in.Path, relName(root, in.Path))
		if err != nil {
			return nil, err
		}
	}

	idx, err := readIndex(indexNote.path, indexNote.header)
	if err != nil {
		return nil, err
	}
	if idx.title == "" {
		idx.title = baseName(indexNote.rel)
	}

	b := &builder{
		ctx:      ctx,
		in:       in,
		root:     root,
		index:    indexNote,
		sceneDir: resolveFolder(filepath.Dir(indexNote.path), idx.sceneFolder),
		notes:    notes,
		project:  &types.ParsedProject{Format: format, Title: idx.title, SourcePath: in.Path},
	}
	if err := b.chapters(planChapters(idx)); err != nil {
		return nil, err
	}
	b.references()

	in.Report(reader.ProgressEvent{Format: format, Stage: "done", Current: b.project.SceneCount(), Total: b.project.SceneCount()})
	return b.project, nil
}

// scan loads every note under root. Notes that cannot be read are skipped
// here; scenes are reloaded and fail loudly later.
func scan(ctx context.Context, root string, in reader.Input) ([]*note, error) {
	var notes []*note
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		n, err := loadNote(path, relName(root, path))
		if err != nil {
			return nil
		}
		notes = append(notes, n)
		in.Report(reader.ProgressEvent{Format: format, Stage: "scan", Current: len(notes), Message: n.rel})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("scan vault %s: %w", root, err)
	}
	return notes, nil
}

func findIndex(dir string, notes []*note) (*note, error) {
	var candidates []*note
	for _, n := range notes {
		if n.header.Has("longform") {
			candidates = append(candidates, n)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, types.NewFormatError(format, types.FormatNotFound, dir, "no index note with a longform header")
	case 1:
		return candidates[0], nil
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.rel + ".md"
	}
	return nil, &types.PreconditionError{
		Msg: fmt.Sprintf("vault %s has %d index notes (%s); pass the index file instead", dir, len(names), strings.Join(names, ", ")),
	}
}

func relName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

// resolveFolder interprets sceneFolder relative to the index directory; "/"
// is the index directory itself.
func resolveFolder(indexDir, folder string) string {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" || folder == "." {
		return indexDir
	}
	return filepath.Join(indexDir, filepath.FromSlash(folder))
}

type builder struct {
	ctx      context.Context
	in       reader.Input
	root     string
	index    *note
	sceneDir string
	notes    []*note
	project  *types.ParsedProject

	sceneNotes map[string]bool // paths of notes used as scenes
}

func (b *builder) chapters(plans []chapterPlan) error {
	total := 0
	for _, pl := range plans {
		total += len(pl.scenes)
	}
	byPath := make(map[string]*note, len(b.notes))
	for _, n := range b.notes {
		byPath[n.path] = n
	}
	b.sceneNotes = make(map[string]bool)

	done := 0
	for i, pl := range plans {
		ch := &types.ParsedChapter{SourceID: pl.sourceID, Title: idgen.NormalizeTitle(pl.title), Position: i}
		for _, name := range pl.scenes {
			if err := b.ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(b.sceneDir, filepath.FromSlash(name)+".md")
			n := byPath[path]
			if n == nil {
				var err error
				n, err = loadNote(path, relName(b.root, path))
				if err != nil {
					var nf *types.NotFoundError
					if errors.As(err, &nf) {
						return &types.NotFoundError{Kind: "scene", Name: path}
					}
					return err
				}
			}
			b.sceneNotes[path] = true
			sc := sceneFrom(name, n)
			sc.Position = len(ch.Scenes)
			ch.Scenes = append(ch.Scenes, sc)

			done++
			b.in.Report(reader.ProgressEvent{Format: format, Stage: "parse", Current: done, Total: total, Message: name})
		}
		b.project.Chapters = append(b.project.Chapters, ch)
	}
	return nil
}

func sceneFrom(name string, n *note) *types.ParsedScene {
	id := "vault:scene:" + name
	sc := &types.ParsedScene{
		SourceID: id,
		Title:    idgen.NormalizeTitle(n.title()),
		Synopsis: types.StrPtr(n.field("synopsis", "summary")),
		Status:   n.field("status"),
	}
	beats, prose := splitBody(n.body)
	for i, text := range beats {
		sc.Beats = append(sc.Beats, &types.ParsedBeat{
			SourceID: fmt.Sprintf("%s:beat:%d", id, i+1),
			Content:  text,
			Position: i,
		})
	}
	sc.Prose = types.StrPtr(strings.TrimSpace(prose))

	seen := make(map[string]bool)
	for _, lf := range linkFields {
		for _, name := range n.list(lf.keys...) {
			key := string(lf.typ) + "\x00" + idgen.FoldName(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			sc.Links = append(sc.Links, types.ParsedLink{Type: lf.typ, Name: name})
		}
	}
	return sc
}

// inSceneFolder reports whether a note lives in a dedicated scene folder.
// When scenes share the index directory only notes listed as scenes are
// excluded from references.
func (b *builder) inSceneFolder(n *note) bool {
	if b.sceneDir == filepath.Dir(b.index.path) {
		return false
	}
	rel, err := filepath.Rel(b.sceneDir, n.path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func (b *builder) references() {
	linked := make(map[string]types.RefType) // folded name -> first link type
	for _, ch := range b.project.Chapters {
		for _, sc := range ch.Scenes {
			for _, l := range sc.Links {
				if _, ok := linked[idgen.FoldName(l.Name)]; !ok {
					linked[idgen.FoldName(l.Name)] = l.Type
				}
			}
		}
	}

	byName := make(map[string]*types.ParsedReference)
	for _, n := range b.notes {
		if n.path == b.index.path || b.sceneNotes[n.path] || b.inSceneFolder(n) {
			continue
		}
		names := noteNames(n)
		var linkType types.RefType
		for _, name := range names {
			if t, ok := linked[idgen.FoldName(name)]; ok {
				linkType = t
				break
			}
		}
		folder := filepath.ToSlash(filepath.Dir(filepath.FromSlash(n.rel)))
		if folder == "." {
			folder = ""
		}
		hint := types.ClassificationHint{
			Declared: n.field("type", "category"),
			Folder:   folder,
			Tags:     n.list("tags"),
		}
		_, folderOK := classify.FolderType(folder)
		if !folderOK && hint.Declared == "" && len(hint.Tags) == 0 && linkType == "" {
			continue
		}

		ref := &types.ParsedReference{
			SourceID:    "vault:note:" + n.rel,
			Name:        idgen.NormalizeTitle(n.title()),
			Description: types.StrPtr(n.field("description", "summary")),
			Hint:        hint,
		}
		res := classify.Classify(hint)
		if res.Basis == types.BasisDefault && linkType != "" {
			res = classify.Result{Type: linkType, Basis: types.BasisDeclared, Confidence: types.ConfidenceMedium}
		}
		ref.Type, ref.Classification, ref.Confidence = res.Type, res.Basis, res.Confidence
		ref.Attributes = noteAttributes(n)

		b.project.References = append(b.project.References, ref)
		for _, name := range names {
			if _, taken := byName[idgen.FoldName(name)]; !taken {
				byName[idgen.FoldName(name)] = ref
			}
		}
	}

	// Point scene links at their notes, creating references for names
	// that have none.
	for _, ch := range b.project.Chapters {
		for _, sc := range ch.Scenes {
			for i := range sc.Links {
				l := &sc.Links[i]
				folded := idgen.FoldName(l.Name)
				if ref, ok := byName[folded]; ok {
					l.SourceID = ref.SourceID
					continue
				}
				sid := fmt.Sprintf("vault:link:%s:%s", l.Type, folded)
				l.SourceID = sid
				ref := &types.ParsedReference{
					SourceID:       sid,
					Type:           l.Type,
					Name:           idgen.NormalizeTitle(l.Name),
					Hint:           types.ClassificationHint{Declared: string(l.Type)},
					Classification: types.BasisDeclared,
					Confidence:     types.ConfidenceHigh,
				}
				b.project.References = append(b.project.References, ref)
				byName[folded] = ref
			}
		}
	}
}

// noteNames lists the names a link may use for n.
func noteNames(n *note) []string {
	names := []string{baseName(n.rel)}
	if t := n.field("title"); t != "" {
		names = append(names, t)
	}
	return append(names, n.list("aliases")...)
}

func noteAttributes(n *note) map[string]string {
	attrs := make(map[string]string)
	keys := make([]string, 0, len(n.header))
	for k := range n.header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if reservedKeys[strings.ToLower(k)] {
			continue
		}
		if _, nested := n.header[k].(map[string]any); nested {
			continue
		}
		if vals := headerValues(n.header[k]); len(vals) > 0 {
			attrs[k] = strings.Join(vals, ", ")
		}
	}
	for k, v := range n.inline {
		if _, ok := attrs[k]; !ok && !reservedKeys[k] {
			if v = strings.TrimSpace(stripLinks(v)); v != "" {
				attrs[k] = v
			}
		}
	}
	if body := strings.TrimSpace(string(n.body)); body != "" {
		attrs[types.NotesKey] = body
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
