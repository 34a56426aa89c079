package syncer

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/plotsync/plotsync/internal/importer"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// Apply commits the accepted additions and changes. The preview is
// recomputed under the project lock and ids are resolved against it, so
// ids that no longer apply are skipped rather than guessed at.
//
// Each item commits in its own transaction. Items that became locked,
// archived or deleted, or whose value moved since the preview, are skipped
// with a warning. The first store failure stops the run; the summary of
// what was already committed is returned with the error.
func (e *Engine) Apply(ctx context.Context, projectID string, changeIDs, additionIDs []string) (_ *types.ReimportSummary, err error) {
	ctx, span := e.startSpan(ctx, "sync.apply", projectID)
	defer func() { endSpan(span, err) }()

	sum := &types.ReimportSummary{}
	err = e.withLock(ctx, projectID, func() error {
		p, err := e.prepare(ctx, projectID)
		if err != nil {
			return err
		}
		adds, changes, unknown := selectItems(p.preview, additionIDs, changeIDs)
		for _, id := range unknown {
			kind, reason := e.unknownReason(ctx, projectID, id)
			e.skip(sum, id, kind, reason)
		}
		return e.commit(ctx, p, adds, changes, sum)
	})
	span.SetAttributes(
		attribute.Int("plotsync.sync.added", sum.TotalAdded()),
		attribute.Int("plotsync.sync.updated", sum.TotalUpdated()),
		attribute.Int("plotsync.sync.skipped", len(sum.Skipped)),
	)
	if err != nil {
		if sum.TotalAdded()+sum.TotalUpdated()+len(sum.Skipped) == 0 {
			return nil, err
		}
		return sum, err
	}
	return sum, nil
}

// Reimport applies every addition and change the current source implies.
func (e *Engine) Reimport(ctx context.Context, projectID string) (_ *types.ReimportSummary, err error) {
	ctx, span := e.startSpan(ctx, "sync.reimport", projectID)
	defer func() { endSpan(span, err) }()

	sum := &types.ReimportSummary{}
	err = e.withLock(ctx, projectID, func() error {
		p, err := e.prepare(ctx, projectID)
		if err != nil {
			return err
		}
		return e.commit(ctx, p, p.preview.Additions, p.preview.Changes, sum)
	})
	span.SetAttributes(
		attribute.Int("plotsync.sync.added", sum.TotalAdded()),
		attribute.Int("plotsync.sync.updated", sum.TotalUpdated()),
	)
	if err != nil {
		if sum.TotalAdded()+sum.TotalUpdated() == 0 {
			return nil, err
		}
		return sum, err
	}
	return sum, nil
}

// selectItems picks the accepted entries of preview in preview order.
// Unknown ids are returned separately.
func selectItems(preview *types.SyncPreview, additionIDs, changeIDs []string) ([]*types.SyncAddition, []*types.SyncChange, []string) {
	wantAdd := make(map[string]bool, len(additionIDs))
	for _, id := range additionIDs {
		wantAdd[id] = true
	}
	wantChange := make(map[string]bool, len(changeIDs))
	for _, id := range changeIDs {
		wantChange[id] = true
	}

	var adds []*types.SyncAddition
	for _, a := range preview.Additions {
		if wantAdd[a.ID] {
			adds = append(adds, a)
			delete(wantAdd, a.ID)
		}
	}
	var changes []*types.SyncChange
	for _, c := range preview.Changes {
		if wantChange[c.ID] {
			changes = append(changes, c)
			delete(wantChange, c.ID)
		}
	}

	var unknown []string
	seen := make(map[string]bool)
	for _, ids := range [][]string{additionIDs, changeIDs} {
		for _, id := range ids {
			if (wantAdd[id] || wantChange[id]) && !seen[id] {
				seen[id] = true
				unknown = append(unknown, id)
			}
		}
	}
	return adds, changes, unknown
}

func (e *Engine) commit(ctx context.Context, p *plan, adds []*types.SyncAddition, changes []*types.SyncChange, sum *types.ReimportSummary) error {
	for _, a := range adds {
		if err := e.applyAddition(ctx, p, a, sum); err != nil {
			return err
		}
	}
	for _, c := range changes {
		if err := e.applyChange(ctx, p, c, sum); err != nil {
			return err
		}
	}

	untouched, err := countProse(ctx, e.Store, p.projectID)
	if err != nil {
		return storeError("count prose", "project", p.projectID, err)
	}
	sum.ProseUntouched = untouched

	e.logger().Info("sync applied",
		"project", p.projectID,
		"added", sum.TotalAdded(),
		"updated", sum.TotalUpdated(),
		"skipped", len(sum.Skipped))
	return nil
}

func (e *Engine) applyAddition(ctx context.Context, p *plan, a *types.SyncAddition, sum *types.ReimportSummary) error {
	var (
		reason   string
		counts   importer.Counts
		warnings []string
	)
	err := e.Store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		tree, err := storage.LoadTree(ctx, tx, p.projectID)
		if err != nil {
			return err
		}
		snap := newSnapshot(tree)
		in := importer.NewInserter(tx, importer.NewRefIndex(tree.References))
		in.Skip = func(kind types.ItemKind, sourceID string) bool {
			switch kind {
			case types.KindScene:
				return snap.sceneBySource[sourceID] != nil
			case types.KindBeat:
				return snap.beatBySource[sourceID] != nil
			}
			return false
		}
		reason, err = insertAddition(ctx, tx, p, snap, in, a)
		counts, warnings = in.Counts, in.Warnings
		return err
	})
	if err != nil {
		return storeError("apply "+a.ID, string(a.ItemType), a.Title, err)
	}
	if reason != "" {
		e.skip(sum, a.ID, a.ItemType, reason)
		return nil
	}
	for _, w := range warnings {
		e.warn("%s", w)
	}
	sum.ChaptersAdded += counts.Chapters
	sum.ScenesAdded += counts.Scenes
	sum.BeatsAdded += counts.Beats
	sum.ReferencesAdded += counts.References
	return nil
}

// insertAddition writes one addition against the live snapshot. A non-empty
// reason means it was skipped and nothing was written.
func insertAddition(ctx context.Context, tx storage.Transaction, p *plan, snap *snapshot, in *importer.Inserter, a *types.SyncAddition) (string, error) {
	switch a.ItemType {
	case types.KindChapter:
		if snap.chapterBySource[a.SourceID] != nil {
			return "already present", nil
		}
		i, ok := p.chapterAt[a.SourceID]
		if !ok {
			return "no longer in the source", nil
		}
		pos := insertPosition(chapterSourceIDs(p.fresh.Chapters[:i]), snap.locateChapter, false)
		_, err := in.Chapter(ctx, p.projectID, p.fresh.Chapters[i], pos)
		return "", err

	case types.KindScene:
		if snap.sceneBySource[a.SourceID] != nil {
			return "already present", nil
		}
		loc, ok := p.sceneAt[a.SourceID]
		if !ok {
			return "no longer in the source", nil
		}
		parent := snap.chapterBySource[loc.chapter.SourceID]
		if parent == nil {
			return "parent chapter is not in the project", nil
		}
		if st := snap.chapterState(parent); st != "" {
			return "parent chapter is " + st, nil
		}
		pos := insertPosition(sceneSourceIDs(loc.chapter.Scenes[:loc.index]), snap.sceneLocator(parent.ID), false)
		_, err := in.Scene(ctx, parent.ID, loc.chapter.Scenes[loc.index], pos)
		return "", err

	case types.KindBeat:
		if snap.beatBySource[a.SourceID] != nil {
			return "already present", nil
		}
		loc, ok := p.beatAt[a.SourceID]
		if !ok {
			return "no longer in the source", nil
		}
		parent := snap.sceneBySource[loc.scene.SourceID]
		if parent == nil {
			return "parent scene is not in the project", nil
		}
		if st := snap.sceneState(parent); st != "" {
			return "parent scene is " + st, nil
		}
		pos := insertPosition(beatSourceIDs(loc.scene.Beats[:loc.index]), snap.beatLocator(parent.ID), false)
		_, err := in.Beat(ctx, parent.ID, loc.scene.Beats[loc.index], pos)
		return "", err

	case types.KindReference:
		pr, ok := p.refs[a.SourceID]
		if !ok {
			return "no longer in the source", nil
		}
		if snap.hasReference(pr) {
			return "already present", nil
		}
		ref, err := in.Reference(ctx, p.projectID, pr)
		if err != nil {
			return "", err
		}
		return "", linkExistingScenes(ctx, tx, p.fresh, snap, in, ref.ID)
	}
	return "unknown item type " + string(a.ItemType), nil
}

// linkExistingScenes links writable persisted scenes whose fresh
// counterparts name the reference refID.
func linkExistingScenes(ctx context.Context, tx storage.Transaction, fresh *types.ParsedProject, snap *snapshot, in *importer.Inserter, refID string) error {
	for _, pc := range fresh.Chapters {
		for _, ps := range pc.Scenes {
			sc := snap.sceneBySource[ps.SourceID]
			if sc == nil || snap.sceneState(sc) != "" {
				continue
			}
			for _, l := range ps.Links {
				if id, ok := in.Refs.Resolve(l); !ok || id != refID {
					continue
				}
				if err := tx.LinkSceneReference(ctx, sc.ID, refID); err != nil {
					return err
				}
				in.Counts.Links++
				break
			}
		}
	}
	return nil
}

func (e *Engine) applyChange(ctx context.Context, p *plan, c *types.SyncChange, sum *types.ReimportSummary) error {
	var reason string
	applied := false
	err := e.Store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		it, err := loadItem(ctx, tx, p.projectID, c.ItemType, c.ItemID)
		if errors.Is(err, storage.ErrNotFound) {
			reason = "deleted"
			return nil
		}
		if err != nil {
			return err
		}
		if it.state != "" {
			reason = it.state
			return nil
		}
		switch it.field(c.Field) {
		case c.NewValue:
			return nil
		case c.CurrentValue:
		default:
			reason = "changed since preview"
			return nil
		}
		if err := tx.UpdateField(ctx, c.ItemType, c.ItemID, c.Field, c.NewValue); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return storeError("apply "+c.ID, string(c.ItemType), c.ItemID, err)
	}
	if reason != "" {
		e.skip(sum, c.ID, c.ItemType, reason)
		return nil
	}
	if !applied {
		return nil
	}
	switch c.ItemType {
	case types.KindChapter:
		sum.ChaptersUpdated++
	case types.KindScene:
		sum.ScenesUpdated++
	case types.KindBeat:
		sum.BeatsUpdated++
	}
	return nil
}

// item is the sync-visible view of one persisted chapter, scene or beat.
type item struct {
	title    string
	synopsis string
	content  string
	state    string // "" when writable
}

func (it *item) field(name string) string {
	switch name {
	case types.FieldTitle:
		return it.title
	case types.FieldSynopsis:
		return it.synopsis
	case types.FieldContent:
		return it.content
	}
	return ""
}

// loadItem reads an item with its ancestors so lock and archive state can
// be judged. Items of another project are reported as not found.
func loadItem(ctx context.Context, r storage.TreeReader, projectID string, kind types.ItemKind, id string) (*item, error) {
	snap := &snapshot{chapters: map[string]*types.Chapter{}, scenes: map[string]*types.Scene{}}
	getChapter := func(id string) (*types.Chapter, error) {
		ch, err := r.GetChapter(ctx, id)
		if err != nil {
			return nil, err
		}
		if ch.ProjectID != projectID {
			return nil, storage.ErrNotFound
		}
		snap.chapters[ch.ID] = ch
		return ch, nil
	}
	getScene := func(id string) (*types.Scene, error) {
		sc, err := r.GetScene(ctx, id)
		if err != nil {
			return nil, err
		}
		if sc.ProjectID != projectID {
			return nil, storage.ErrNotFound
		}
		snap.scenes[sc.ID] = sc
		if _, err := getChapter(sc.ChapterID); err != nil {
			return nil, err
		}
		return sc, nil
	}

	switch kind {
	case types.KindChapter:
		ch, err := getChapter(id)
		if err != nil {
			return nil, err
		}
		return &item{title: ch.Title, state: snap.chapterState(ch)}, nil
	case types.KindScene:
		sc, err := getScene(id)
		if err != nil {
			return nil, err
		}
		return &item{title: sc.Title, synopsis: types.Deref(sc.Synopsis), state: snap.sceneState(sc)}, nil
	case types.KindBeat:
		b, err := r.GetBeat(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.ProjectID != projectID {
			return nil, storage.ErrNotFound
		}
		if _, err := getScene(b.SceneID); err != nil {
			return nil, err
		}
		return &item{content: b.Content, state: snap.beatState(b)}, nil
	}
	return nil, storage.ErrNotFound
}

// unknownReason explains why an id was not in the recomputed preview. An
// id naming a locked item says so.
func (e *Engine) unknownReason(ctx context.Context, projectID, id string) (types.ItemKind, string) {
	parts := strings.SplitN(id, ":", 4)
	if len(parts) < 3 {
		return "", "not in the current preview"
	}
	kind := types.ItemKind(parts[1])
	if parts[0] == "chg" {
		if it, err := loadItem(ctx, e.Store, projectID, kind, parts[2]); err == nil && it.state != "" {
			return kind, it.state
		}
	}
	return kind, "not in the current preview"
}

func (e *Engine) skip(sum *types.ReimportSummary, id string, kind types.ItemKind, reason string) {
	w := types.PartialApplyWarning{ItemID: id, ItemType: kind, Reason: reason}
	sum.Skipped = append(sum.Skipped, w)
	e.logger().Warn("sync item skipped", "item", id, "type", string(kind), "reason", reason)
	e.warn("%s", w.Error())
}

// countProse counts scenes and beats carrying authored prose.
func countProse(ctx context.Context, r storage.TreeReader, projectID string) (int, error) {
	scenes, err := r.GetScenes(ctx, projectID)
	if err != nil {
		return 0, err
	}
	beats, err := r.GetBeats(ctx, projectID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sc := range scenes {
		if sc.Prose != nil {
			n++
		}
	}
	for _, b := range beats {
		if b.Prose != nil {
			n++
		}
	}
	return n, nil
}
