package syncer

import (
	"sort"
	"time"

	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// Diff compares a canonical tree against a persisted snapshot of the same
// project. It never proposes deletions, and nothing under a lock shows up
// as a change. Additions and changes come out in depth-first order of the
// fresh tree, followed by new references sorted by type and name.
func Diff(tree *storage.Tree, fresh *types.ParsedProject) *types.SyncPreview {
	d := &differ{
		snap: newSnapshot(tree),
		preview: &types.SyncPreview{
			ProjectID:   tree.Project.ID,
			Additions:   []*types.SyncAddition{},
			Changes:     []*types.SyncChange{},
			GeneratedAt: time.Now().UTC(),
		},
	}
	for i := range fresh.Chapters {
		d.chapter(fresh.Chapters, i)
	}
	d.references(fresh.References)
	return d.preview
}

type differ struct {
	snap    *snapshot
	preview *types.SyncPreview
}

func (d *differ) add(a *types.SyncAddition) {
	a.ID = types.AdditionID(a.ItemType, a.SourceID)
	d.preview.Additions = append(d.preview.Additions, a)
}

func (d *differ) change(kind types.ItemKind, id, field, title, current, proposed string) {
	if current == proposed {
		return
	}
	d.preview.Changes = append(d.preview.Changes, &types.SyncChange{
		ID:           types.ChangeID(kind, id, field),
		ItemID:       id,
		ItemType:     kind,
		Field:        field,
		ItemTitle:    title,
		CurrentValue: current,
		NewValue:     proposed,
	})
}

func (d *differ) chapter(siblings []*types.ParsedChapter, i int) {
	pc := siblings[i]
	ch := d.snap.chapterBySource[pc.SourceID]
	switch {
	case ch == nil:
		d.add(&types.SyncAddition{
			ItemType:    types.KindChapter,
			SourceID:    pc.SourceID,
			Title:       pc.Title,
			ParentTitle: d.snap.tree.Project.Title,
			Position:    insertPosition(chapterSourceIDs(siblings[:i]), d.snap.locateChapter, true),
		})
	case d.snap.chapterState(ch) == "":
		d.change(types.KindChapter, ch.ID, types.FieldTitle, ch.Title, ch.Title, pc.Title)
	}
	// Scenes of a new chapter ride along with it, but a scene matched
	// elsewhere in the project is still compared.
	for j := range pc.Scenes {
		d.scene(pc, ch, j)
	}
}

func (d *differ) scene(pc *types.ParsedChapter, ch *types.Chapter, j int) {
	ps := pc.Scenes[j]
	sc := d.snap.sceneBySource[ps.SourceID]
	switch {
	case sc == nil:
		if ch != nil && d.snap.chapterState(ch) == "" {
			d.add(&types.SyncAddition{
				ItemType:    types.KindScene,
				SourceID:    ps.SourceID,
				Title:       ps.Title,
				ParentTitle: ch.Title,
				Parent:      pc.SourceID,
				ParentID:    ch.ID,
				Position:    insertPosition(sceneSourceIDs(pc.Scenes[:j]), d.snap.sceneLocator(ch.ID), true),
			})
		}
	case d.snap.sceneState(sc) == "":
		d.change(types.KindScene, sc.ID, types.FieldTitle, sc.Title, sc.Title, ps.Title)
		d.change(types.KindScene, sc.ID, types.FieldSynopsis, sc.Title, types.Deref(sc.Synopsis), types.Deref(ps.Synopsis))
	}
	for k := range ps.Beats {
		d.beat(ps, sc, k)
	}
}

func (d *differ) beat(ps *types.ParsedScene, sc *types.Scene, k int) {
	pb := ps.Beats[k]
	b := d.snap.beatBySource[pb.SourceID]
	switch {
	case b == nil:
		if sc != nil && d.snap.sceneState(sc) == "" {
			d.add(&types.SyncAddition{
				ItemType:    types.KindBeat,
				SourceID:    pb.SourceID,
				Title:       pb.Content,
				ParentTitle: sc.Title,
				Parent:      ps.SourceID,
				ParentID:    sc.ID,
				Position:    insertPosition(beatSourceIDs(ps.Beats[:k]), d.snap.beatLocator(sc.ID), true),
			})
		}
	case d.snap.beatState(b) == "":
		d.change(types.KindBeat, b.ID, types.FieldContent, b.Content, b.Content, pb.Content)
	}
}

func (d *differ) references(refs []*types.ParsedReference) {
	var fresh []*types.ParsedReference
	for _, pr := range refs {
		if d.snap.hasReference(pr) {
			continue
		}
		fresh = append(fresh, pr)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		if fresh[i].Type != fresh[j].Type {
			return fresh[i].Type < fresh[j].Type
		}
		return idgen.FoldName(fresh[i].Name) < idgen.FoldName(fresh[j].Name)
	})
	for _, pr := range fresh {
		d.add(&types.SyncAddition{
			ItemType:    types.KindReference,
			SourceID:    refSourceKey(pr),
			Title:       pr.Name,
			ParentTitle: d.snap.tree.Project.Title,
			RefType:     pr.Type,
		})
	}
}

// refSourceKey identifies a parsed reference in additions. References
// without a source id fall back to their type and name.
func refSourceKey(pr *types.ParsedReference) string {
	if pr.SourceID != "" {
		return pr.SourceID
	}
	return string(pr.Type) + ":" + idgen.FoldName(pr.Name)
}
