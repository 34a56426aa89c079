package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

func samplePreview() *types.SyncPreview {
	return &types.SyncPreview{
		ProjectID: "p1",
		Additions: []*types.SyncAddition{
			{ID: "add:scene:s2", ItemType: types.KindScene, Title: "Scene B", ParentTitle: "Act One", Position: 1},
			{ID: "add:beat:b9", ItemType: types.KindBeat, Title: "a | pipe", ParentTitle: "Act One"},
			{ID: "add:reference:r1", ItemType: types.KindReference, Title: "Mara", RefType: types.RefCharacter},
		},
		Changes: []*types.SyncChange{
			{ID: "chg:scene:sc1:title", ItemID: "sc1", ItemType: types.KindScene, Field: types.FieldTitle,
				ItemTitle: "Scene A", CurrentValue: "Scene A", NewValue: "Scene A!"},
			{ID: "chg:scene:sc1:synopsis", ItemID: "sc1", ItemType: types.KindScene, Field: types.FieldSynopsis,
				ItemTitle: "Scene A", CurrentValue: "old", NewValue: ""},
		},
	}
}

func TestRenderPreview(t *testing.T) {
	out := RenderPreview(samplePreview(), "Novel")

	for _, want := range []string{
		"SYNC PREVIEW", "Novel",
		"ADDITIONS", "(3)",
		"Act One", "Scene B", "add:scene:s2",
		"References", "character", "Mara",
		"CHANGES", "(2)",
		"chg:scene:sc1:title", "Scene A!", "(empty)",
	} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 1, strings.Count(out, "Act One\n"), "consecutive additions share one parent heading")
}

func TestRenderPreviewEmpty(t *testing.T) {
	out := RenderPreview(&types.SyncPreview{}, "Novel")
	assert.Contains(t, out, "Nothing to sync")
	assert.NotContains(t, out, "ADDITIONS")
}

func TestPreviewMarkdown(t *testing.T) {
	md := PreviewMarkdown(samplePreview(), "Novel")
	assert.True(t, strings.HasPrefix(md, "# Sync preview: Novel\n"))
	assert.Contains(t, md, "| scene | Scene B | Act One | 1 | `add:scene:s2` |")
	assert.Contains(t, md, `a \| pipe`)
	assert.Contains(t, md, "### scene \"Scene A\": title")
	assert.Contains(t, md, "- **proposed:** (empty)")
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(&types.ReimportSummary{
		ScenesAdded:    2,
		BeatsUpdated:   1,
		ProseUntouched: 4,
		Skipped:        []types.PartialApplyWarning{{ItemID: "chg:scene:x:title", ItemType: types.KindScene, Reason: "locked"}},
	})
	assert.Contains(t, out, "2 scene(s)")
	assert.Contains(t, out, "1 beat(s)")
	assert.Contains(t, out, "untouched on 4 item(s)")
	assert.Contains(t, out, "skipped scene chg:scene:x:title: locked")
}

func TestRenderTree(t *testing.T) {
	tree := &storage.Tree{
		Project: &types.Project{ID: "p1", Title: "Novel", SourcePath: types.StrPtr("/tmp/novel.md"), SourceFormat: types.FormatMarkdown},
		Chapters: []*types.Chapter{
			{ID: "ch1", Title: "Act One", Locked: true},
			{ID: "ch2", Title: "Act Two"},
		},
		Scenes: []*types.Scene{
			{ID: "sc1", ChapterID: "ch1", Title: "Arrival"},
			{ID: "sc2", ChapterID: "ch2", Title: "Storm", Archived: true},
		},
		Beats: []*types.Beat{
			{ID: "b1", SceneID: "sc1", Content: "ship\ndocks"},
		},
		References: []*types.Reference{
			{ID: "r1", Type: types.RefCharacter, Name: "Mara"},
			{ID: "r2", Type: types.RefCharacter, Name: "Tomas"},
			{ID: "r3", Type: types.RefLocation, Name: "Quay"},
		},
	}
	out := RenderTree(tree)
	for _, want := range []string{
		"NOVEL", "/tmp/novel.md (markdown)",
		"Act One " + IconLock, "Arrival", "ship docks",
		"Storm", "[archived]",
		"2 character, 1 location",
	} {
		assert.Contains(t, out, want)
	}
}

func TestRenderTreeReferenceCountsInTypeOrder(t *testing.T) {
	tree := &storage.Tree{Project: &types.Project{ID: "p1", Title: "Novel"}}
	for i := 0; i < 10; i++ {
		tree.References = append(tree.References, &types.Reference{Type: types.RefItem, Name: "thing"})
	}
	tree.References = append(tree.References,
		&types.Reference{Type: types.RefOrganization, Name: "Guild"},
		&types.Reference{Type: types.RefCharacter, Name: "Mara"},
		&types.Reference{Type: types.RefCharacter, Name: "Tomas"},
	)
	assert.Contains(t, RenderTree(tree), "2 character, 10 item, 1 organization")
}
