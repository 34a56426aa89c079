package importer

import (
	"context"
	"fmt"

	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// Counts tallies inserted records.
type Counts struct {
	Chapters   int `json:"chapters"`
	Scenes     int `json:"scenes"`
	Beats      int `json:"beats"`
	References int `json:"references"`
	Links      int `json:"links"`
}

// RefIndex resolves parsed scene links to persisted reference ids.
type RefIndex struct {
	bySource map[string]string
	byName   map[string]string // type + folded name
	anyType  map[string]string // folded name, first reference wins
}

// NewRefIndex indexes existing references. Archived references still
// resolve so links keep pointing at them.
func NewRefIndex(refs []*types.Reference) *RefIndex {
	ix := &RefIndex{
		bySource: make(map[string]string),
		byName:   make(map[string]string),
		anyType:  make(map[string]string),
	}
	for _, r := range refs {
		ix.Add(r)
	}
	return ix
}

// Add indexes r unless an earlier reference already claimed its keys.
func (ix *RefIndex) Add(r *types.Reference) {
	if sid := types.Deref(r.SourceID); sid != "" {
		if _, ok := ix.bySource[sid]; !ok {
			ix.bySource[sid] = r.ID
		}
	}
	folded := idgen.FoldName(r.Name)
	if _, ok := ix.byName[string(r.Type)+"\x00"+folded]; !ok {
		ix.byName[string(r.Type)+"\x00"+folded] = r.ID
	}
	if _, ok := ix.anyType[folded]; !ok {
		ix.anyType[folded] = r.ID
	}
}

// HasSource reports whether a reference with sourceID is indexed.
func (ix *RefIndex) HasSource(sourceID string) bool {
	_, ok := ix.bySource[sourceID]
	return ok
}

// Resolve finds the reference a link names: by source id, then by type and
// name, then by name alone.
func (ix *RefIndex) Resolve(l types.ParsedLink) (string, bool) {
	if l.SourceID != "" {
		if id, ok := ix.bySource[l.SourceID]; ok {
			return id, true
		}
	}
	folded := idgen.FoldName(l.Name)
	if folded == "" {
		return "", false
	}
	if id, ok := ix.byName[string(l.Type)+"\x00"+folded]; ok {
		return id, true
	}
	id, ok := ix.anyType[folded]
	return id, ok
}

// Inserter writes parsed subtrees through one transaction.
type Inserter struct {
	Tx     storage.Transaction
	Refs   *RefIndex
	Counts Counts

	// Warnings collects links that named no known reference.
	Warnings []string

	// Skip, if set, leaves out descendants it reports true for. Sync uses
	// it to keep items that already exist elsewhere in the project from
	// being inserted twice.
	Skip func(kind types.ItemKind, sourceID string) bool
}

func (in *Inserter) skip(kind types.ItemKind, sourceID string) bool {
	return in.Skip != nil && sourceID != "" && in.Skip(kind, sourceID)
}

// NewInserter returns an inserter resolving links against refs.
func NewInserter(tx storage.Transaction, refs *RefIndex) *Inserter {
	if refs == nil {
		refs = NewRefIndex(nil)
	}
	return &Inserter{Tx: tx, Refs: refs}
}

// Reference inserts a parsed reference.
func (in *Inserter) Reference(ctx context.Context, projectID string, pr *types.ParsedReference) (*types.Reference, error) {
	r := &types.Reference{
		ProjectID:      projectID,
		SourceID:       types.StrPtr(pr.SourceID),
		Type:           pr.Type,
		Name:           pr.Name,
		Description:    pr.Description,
		Attributes:     pr.Attributes,
		Classification: pr.Classification,
		Confidence:     pr.Confidence,
	}
	if _, err := in.Tx.InsertReference(ctx, r); err != nil {
		return nil, err
	}
	in.Refs.Add(r)
	in.Counts.References++
	return r, nil
}

// Chapter inserts a chapter and everything under it.
func (in *Inserter) Chapter(ctx context.Context, projectID string, pc *types.ParsedChapter, position int) (*types.Chapter, error) {
	ch := &types.Chapter{
		ProjectID: projectID,
		SourceID:  types.StrPtr(pc.SourceID),
		Title:     pc.Title,
		IsPart:    pc.IsPart,
	}
	if _, err := in.Tx.InsertChapter(ctx, ch, position); err != nil {
		return nil, err
	}
	in.Counts.Chapters++
	for _, ps := range pc.Scenes {
		if in.skip(types.KindScene, ps.SourceID) {
			continue
		}
		if _, err := in.Scene(ctx, ch.ID, ps, storage.AppendPosition); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// Scene inserts a scene with its beats and reference links.
func (in *Inserter) Scene(ctx context.Context, chapterID string, ps *types.ParsedScene, position int) (*types.Scene, error) {
	sc := &types.Scene{
		ChapterID: chapterID,
		SourceID:  types.StrPtr(ps.SourceID),
		Title:     ps.Title,
		Synopsis:  ps.Synopsis,
		Prose:     ps.Prose,
		Status:    ps.Status,
		SceneType: ps.SceneType,
	}
	if _, err := in.Tx.InsertScene(ctx, sc, position); err != nil {
		return nil, err
	}
	in.Counts.Scenes++
	for _, pb := range ps.Beats {
		if in.skip(types.KindBeat, pb.SourceID) {
			continue
		}
		if _, err := in.Beat(ctx, sc.ID, pb, storage.AppendPosition); err != nil {
			return nil, err
		}
	}
	for _, l := range ps.Links {
		refID, ok := in.Refs.Resolve(l)
		if !ok {
			in.Warnings = append(in.Warnings, fmt.Sprintf("scene %q links unknown %s %q", ps.Title, l.Type, l.Name))
			continue
		}
		if err := in.Tx.LinkSceneReference(ctx, sc.ID, refID); err != nil {
			return nil, err
		}
		in.Counts.Links++
	}
	return sc, nil
}

// Beat inserts one beat.
func (in *Inserter) Beat(ctx context.Context, sceneID string, pb *types.ParsedBeat, position int) (*types.Beat, error) {
	b := &types.Beat{
		SceneID:  sceneID,
		SourceID: types.StrPtr(pb.SourceID),
		Content:  pb.Content,
	}
	if _, err := in.Tx.InsertBeat(ctx, b, position); err != nil {
		return nil, err
	}
	in.Counts.Beats++
	return b, nil
}
