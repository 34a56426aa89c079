package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// persisted builds a small stored tree: chapter c1 with scene s1 holding
// beat b1.
func persisted() *storage.Tree {
	return &storage.Tree{
		Project: &types.Project{ID: "p1", Title: "Novel"},
		Chapters: []*types.Chapter{
			{ID: "ch1", ProjectID: "p1", SourceID: types.StrPtr("c1"), Title: "Act One", Position: 0},
		},
		Scenes: []*types.Scene{
			{ID: "sc1", ProjectID: "p1", ChapterID: "ch1", SourceID: types.StrPtr("s1"), Title: "Arrival", Synopsis: types.StrPtr("They land."), Position: 0},
		},
		Beats: []*types.Beat{
			{ID: "bt1", ProjectID: "p1", SceneID: "sc1", SourceID: types.StrPtr("b1"), Content: "ship docks", Position: 0},
		},
		References: []*types.Reference{
			{ID: "r1", ProjectID: "p1", SourceID: types.StrPtr("ref:mara"), Type: types.RefCharacter, Name: "Mara"},
		},
	}
}

// parsedCopy mirrors persisted() as a fresh parse.
func parsedCopy() *types.ParsedProject {
	return &types.ParsedProject{
		Title: "Novel",
		Chapters: []*types.ParsedChapter{{
			SourceID: "c1",
			Title:    "Act One",
			Scenes: []*types.ParsedScene{{
				SourceID: "s1",
				Title:    "Arrival",
				Synopsis: types.StrPtr("They land."),
				Beats:    []*types.ParsedBeat{{SourceID: "b1", Content: "ship docks"}},
			}},
		}},
		References: []*types.ParsedReference{
			{SourceID: "ref:mara", Type: types.RefCharacter, Name: "Mara"},
		},
	}
}

func additionIDs(p *types.SyncPreview) []string {
	var out []string
	for _, a := range p.Additions {
		out = append(out, a.ID)
	}
	return out
}

func TestDiffUnchangedIsEmpty(t *testing.T) {
	preview := Diff(persisted(), parsedCopy())
	assert.True(t, preview.IsEmpty(), "preview = %+v", preview)
	assert.Equal(t, "p1", preview.ProjectID)
	assert.NotNil(t, preview.Additions)
	assert.NotNil(t, preview.Changes)
}

func TestDiffAdditionsInTreeOrder(t *testing.T) {
	fresh := parsedCopy()
	ch := fresh.Chapters[0]
	ch.Scenes[0].Beats = append(ch.Scenes[0].Beats, &types.ParsedBeat{SourceID: "b2", Content: "crowd gathers"})
	ch.Scenes = append(ch.Scenes, &types.ParsedScene{
		SourceID: "s2",
		Title:    "Storm",
		Beats:    []*types.ParsedBeat{{SourceID: "b3", Content: "wind rises"}},
	})
	fresh.Chapters = append(fresh.Chapters, &types.ParsedChapter{
		SourceID: "c2",
		Title:    "Act Two",
		Scenes:   []*types.ParsedScene{{SourceID: "s3", Title: "Aftermath"}},
	})
	fresh.References = append(fresh.References,
		&types.ParsedReference{SourceID: "ref:harbour", Type: types.RefLocation, Name: "Harbour"},
		&types.ParsedReference{SourceID: "ref:zed", Type: types.RefCharacter, Name: "Zed"},
		&types.ParsedReference{SourceID: "ref:anna", Type: types.RefCharacter, Name: "anna"},
	)

	preview := Diff(persisted(), fresh)
	require.Empty(t, preview.Changes)
	assert.Equal(t, []string{
		"add:beat:b2",
		"add:scene:s2",
		"add:chapter:c2",
		"add:reference:ref:anna",
		"add:reference:ref:zed",
		"add:reference:ref:harbour",
	}, additionIDs(preview))

	beat := preview.Additions[0]
	assert.Equal(t, "Arrival", beat.ParentTitle)
	assert.Equal(t, "s1", beat.Parent)
	assert.Equal(t, "sc1", beat.ParentID)
	assert.Equal(t, 1, beat.Position)

	scene := preview.Additions[1]
	assert.Equal(t, "Act One", scene.ParentTitle)
	assert.Equal(t, "ch1", scene.ParentID)
	assert.Equal(t, 1, scene.Position)

	chapter := preview.Additions[2]
	assert.Equal(t, "Novel", chapter.ParentTitle)
	assert.Empty(t, chapter.ParentID)
	assert.Equal(t, 1, chapter.Position)

	assert.Equal(t, types.RefCharacter, preview.Additions[3].RefType)
}

func TestDiffFieldChanges(t *testing.T) {
	fresh := parsedCopy()
	fresh.Chapters[0].Title = "Act I"
	fresh.Chapters[0].Scenes[0].Synopsis = nil
	fresh.Chapters[0].Scenes[0].Beats[0].Content = "ship docks late"

	preview := Diff(persisted(), fresh)
	require.Empty(t, preview.Additions)
	require.Len(t, preview.Changes, 3)

	assert.Equal(t, types.SyncChange{
		ID: "chg:chapter:ch1:title", ItemID: "ch1", ItemType: types.KindChapter, Field: types.FieldTitle,
		ItemTitle: "Act One", CurrentValue: "Act One", NewValue: "Act I",
	}, *preview.Changes[0])
	assert.Equal(t, "chg:scene:sc1:synopsis", preview.Changes[1].ID)
	assert.Equal(t, "They land.", preview.Changes[1].CurrentValue)
	assert.Equal(t, "", preview.Changes[1].NewValue)
	assert.Equal(t, "chg:beat:bt1:content", preview.Changes[2].ID)
}

func TestDiffRespectsLocks(t *testing.T) {
	renamed := func() *types.ParsedProject {
		fresh := parsedCopy()
		fresh.Chapters[0].Title = "Act I"
		sc := fresh.Chapters[0].Scenes[0]
		sc.Title = "Landing"
		sc.Beats[0].Content = "ship docks late"
		sc.Beats = append(sc.Beats, &types.ParsedBeat{SourceID: "b2", Content: "new beat"})
		fresh.Chapters[0].Scenes = append(fresh.Chapters[0].Scenes, &types.ParsedScene{SourceID: "s2", Title: "Storm"})
		return fresh
	}

	t.Run("locked scene", func(t *testing.T) {
		tree := persisted()
		tree.Scenes[0].Locked = true
		preview := Diff(tree, renamed())
		assert.Equal(t, []string{"add:scene:s2"}, additionIDs(preview))
		require.Len(t, preview.Changes, 1)
		assert.Equal(t, "chg:chapter:ch1:title", preview.Changes[0].ID)
	})

	t.Run("locked chapter", func(t *testing.T) {
		tree := persisted()
		tree.Chapters[0].Locked = true
		preview := Diff(tree, renamed())
		assert.True(t, preview.IsEmpty(), "nothing under a locked chapter may change: %+v", preview)
	})
}

func TestDiffArchivedItemsAreMatched(t *testing.T) {
	tree := persisted()
	tree.Scenes[0].Archived = true
	fresh := parsedCopy()
	fresh.Chapters[0].Scenes[0].Title = "Landing"

	preview := Diff(tree, fresh)
	assert.True(t, preview.IsEmpty(), "archived scene must be neither re-added nor changed: %+v", preview)
}

func TestDiffNeverProposesDeletions(t *testing.T) {
	fresh := parsedCopy()
	fresh.Chapters[0].Scenes = nil
	fresh.References = nil

	preview := Diff(persisted(), fresh)
	assert.True(t, preview.IsEmpty())
}

func TestDiffMovedSceneIsComparedNotAdded(t *testing.T) {
	fresh := parsedCopy()
	moved := fresh.Chapters[0].Scenes[0]
	moved.Title = "Landing"
	fresh.Chapters[0].Scenes = nil
	fresh.Chapters = append(fresh.Chapters, &types.ParsedChapter{
		SourceID: "c2",
		Title:    "Act Two",
		Scenes:   []*types.ParsedScene{moved},
	})

	preview := Diff(persisted(), fresh)
	assert.Equal(t, []string{"add:chapter:c2"}, additionIDs(preview))
	require.Len(t, preview.Changes, 1)
	assert.Equal(t, "chg:scene:sc1:title", preview.Changes[0].ID)
}

func TestDiffReferenceMatchedByName(t *testing.T) {
	fresh := parsedCopy()
	fresh.References = []*types.ParsedReference{
		{Type: types.RefCharacter, Name: "MARA"},
		{Type: types.RefItem, Name: "Brass Key"},
	}
	preview := Diff(persisted(), fresh)
	assert.Equal(t, []string{"add:reference:item:brass key"}, additionIDs(preview))
}

func TestInsertPosition(t *testing.T) {
	locate := func(known map[string]placement) func(string) placement {
		return func(sid string) placement { return known[sid] }
	}
	here := placement{position: 4, here: true, exists: true}
	elsewhere := placement{position: 0, exists: true}

	tests := []struct {
		name      string
		preceding []string
		known     map[string]placement
		pending   bool
		want      int
	}{
		{"first", nil, nil, true, 0},
		{"after anchor", []string{"a"}, map[string]placement{"a": here}, true, 5},
		{"after anchor and new sibling", []string{"a", "n"}, map[string]placement{"a": here}, true, 6},
		{"new sibling not counted at apply", []string{"a", "n"}, map[string]placement{"a": here}, false, 5},
		{"moved sibling ignored", []string{"a", "m"}, map[string]placement{"a": here, "m": elsewhere}, true, 5},
		{"only new siblings", []string{"n1", "n2"}, nil, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := insertPosition(tt.preceding, locate(tt.known), tt.pending)
			if got != tt.want {
				t.Errorf("insertPosition = %d, want %d", got, tt.want)
			}
		})
	}
}
