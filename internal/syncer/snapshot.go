package syncer

import (
	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// snapshot indexes a persisted tree by id and by source id. Archived items
// are indexed like any other so they are matched and never re-added.
type snapshot struct {
	tree *storage.Tree

	chapters map[string]*types.Chapter
	scenes   map[string]*types.Scene

	chapterBySource map[string]*types.Chapter
	sceneBySource   map[string]*types.Scene
	beatBySource    map[string]*types.Beat
	refBySource     map[string]*types.Reference
	refByName       map[string]*types.Reference
}

func newSnapshot(tree *storage.Tree) *snapshot {
	s := &snapshot{
		tree:            tree,
		chapters:        make(map[string]*types.Chapter, len(tree.Chapters)),
		scenes:          make(map[string]*types.Scene, len(tree.Scenes)),
		chapterBySource: make(map[string]*types.Chapter),
		sceneBySource:   make(map[string]*types.Scene),
		beatBySource:    make(map[string]*types.Beat),
		refBySource:     make(map[string]*types.Reference),
		refByName:       make(map[string]*types.Reference),
	}
	for _, ch := range tree.Chapters {
		s.chapters[ch.ID] = ch
		if sid := types.Deref(ch.SourceID); sid != "" {
			s.chapterBySource[sid] = ch
		}
	}
	for _, sc := range tree.Scenes {
		s.scenes[sc.ID] = sc
		if sid := types.Deref(sc.SourceID); sid != "" {
			s.sceneBySource[sid] = sc
		}
	}
	for _, b := range tree.Beats {
		if sid := types.Deref(b.SourceID); sid != "" {
			s.beatBySource[sid] = b
		}
	}
	for _, r := range tree.References {
		if sid := types.Deref(r.SourceID); sid != "" {
			s.refBySource[sid] = r
		}
		key := refKey(r.Type, r.Name)
		if _, ok := s.refByName[key]; !ok {
			s.refByName[key] = r
		}
	}
	return s
}

func refKey(t types.RefType, name string) string {
	return string(t) + "\x00" + idgen.FoldName(name)
}

// hasReference reports whether pr is already persisted, by source id or by
// type and name.
func (s *snapshot) hasReference(pr *types.ParsedReference) bool {
	if pr.SourceID != "" {
		if _, ok := s.refBySource[pr.SourceID]; ok {
			return true
		}
	}
	_, ok := s.refByName[refKey(pr.Type, pr.Name)]
	return ok
}

// The *State methods return "" when sync may write to the item, or the
// reason it may not.

func (s *snapshot) chapterState(ch *types.Chapter) string {
	switch {
	case ch.Locked:
		return "locked"
	case ch.Archived:
		return "archived"
	}
	return ""
}

func (s *snapshot) sceneState(sc *types.Scene) string {
	switch {
	case sc.Locked:
		return "locked"
	case sc.Archived:
		return "archived"
	}
	if ch := s.chapters[sc.ChapterID]; ch != nil {
		if st := s.chapterState(ch); st != "" {
			return "under a " + st + " chapter"
		}
	}
	return ""
}

func (s *snapshot) beatState(b *types.Beat) string {
	if b.Archived {
		return "archived"
	}
	if sc := s.scenes[b.SceneID]; sc != nil {
		st := s.sceneState(sc)
		switch st {
		case "":
		case "locked", "archived":
			return "under a " + st + " scene"
		default:
			return st
		}
	}
	return ""
}

// placement describes where a fresh sibling's persisted counterpart lives.
type placement struct {
	position int
	here     bool // under the parent being inserted into
	exists   bool
}

// insertPosition returns where a new item lands among its persisted
// siblings: right after the nearest preceding fresh sibling already under
// the same parent, or first when there is none. With countPending, new
// siblings in between are assumed to be inserted first.
func insertPosition(preceding []string, locate func(sourceID string) placement, countPending bool) int {
	pending := 0
	for i := len(preceding) - 1; i >= 0; i-- {
		p := locate(preceding[i])
		if p.here {
			return p.position + 1 + pending
		}
		if !p.exists && countPending {
			pending++
		}
	}
	return pending
}

func (s *snapshot) locateChapter(sourceID string) placement {
	ch := s.chapterBySource[sourceID]
	if ch == nil {
		return placement{}
	}
	return placement{position: ch.Position, here: true, exists: true}
}

func (s *snapshot) sceneLocator(chapterID string) func(string) placement {
	return func(sourceID string) placement {
		sc := s.sceneBySource[sourceID]
		if sc == nil {
			return placement{}
		}
		return placement{position: sc.Position, here: sc.ChapterID == chapterID, exists: true}
	}
}

func (s *snapshot) beatLocator(sceneID string) func(string) placement {
	return func(sourceID string) placement {
		b := s.beatBySource[sourceID]
		if b == nil {
			return placement{}
		}
		return placement{position: b.Position, here: b.SceneID == sceneID, exists: true}
	}
}

func chapterSourceIDs(list []*types.ParsedChapter) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.SourceID
	}
	return out
}

func sceneSourceIDs(list []*types.ParsedScene) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.SourceID
	}
	return out
}

func beatSourceIDs(list []*types.ParsedBeat) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.SourceID
	}
	return out
}
