package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotsync/plotsync/internal/reader"
	_ "github.com/plotsync/plotsync/internal/reader/markdown"
	_ "github.com/plotsync/plotsync/internal/reader/vault"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/storage/memory"
	"github.com/plotsync/plotsync/internal/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportMinimalOutline(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	path := writeFile(t, t.TempDir(), "novel.md", "# Act One\n## Scene A\n- do thing\n")

	res, err := Import(ctx, gw, Options{Format: types.FormatMarkdown, Path: path})
	require.NoError(t, err)
	assert.Equal(t, Counts{Chapters: 1, Scenes: 1, Beats: 1}, res.Counts)
	assert.Equal(t, "novel", res.Project.Title)
	assert.Equal(t, path, types.Deref(res.Project.SourcePath))
	assert.Equal(t, types.FormatMarkdown, res.Project.SourceFormat)

	tree, err := storage.LoadTree(ctx, gw, res.Project.ID)
	require.NoError(t, err)
	require.Len(t, tree.Chapters, 1)
	require.Len(t, tree.Scenes, 1)
	require.Len(t, tree.Beats, 1)
	assert.Equal(t, "Act One", tree.Chapters[0].Title)
	assert.Equal(t, "Scene A", tree.Scenes[0].Title)
	assert.Equal(t, "do thing", tree.Beats[0].Content)
	assert.NotNil(t, tree.Beats[0].SourceID)
}

func TestImportTitleOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "novel.md", "# One\n")
	res, err := Import(context.Background(), memory.New(), Options{Format: types.FormatMarkdown, Path: path, Title: "Harbour"})
	require.NoError(t, err)
	assert.Equal(t, "Harbour", res.Project.Title)
}

func TestImportVaultLinksAndClassification(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "Index.md", "---\ntitle: Harbour\nlongform:\n  format: scenes\n  sceneFolder: scenes\n  scenes: [Arrival]\n---\n")
	writeFile(t, dir, "scenes/Arrival.md", "---\ncharacters: [\"[[Mara]]\", \"[[Tomas]]\"]\nsetting: \"[[Pier]]\"\n---\nShe stepped off the ferry.\n")
	writeFile(t, dir, "Characters/Mara.md", "Keeper's daughter.\n")
	writeFile(t, dir, "Notes/Pier.md", "---\ntags: [place]\n---\n")
	writeFile(t, dir, "Notes/Lamp.md", "---\ntags: [misc]\n---\n")

	gw := memory.New()
	var events []reader.ProgressEvent
	res, err := Import(ctx, gw, Options{
		Format:   types.FormatVault,
		Path:     dir,
		Progress: func(ev reader.ProgressEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
	assert.Equal(t, "Harbour", res.Project.Title)
	assert.Equal(t, 4, res.Counts.References)
	assert.Equal(t, 3, res.Counts.Links)
	assert.Equal(t, 4, res.Classification.Total)
	assert.Equal(t, 2, res.Classification.Guessed, "Pier is typed by tag, Lamp by default")
	assert.True(t, res.Classification.NeedsReview)

	tree, err := storage.LoadTree(ctx, gw, res.Project.ID)
	require.NoError(t, err)
	require.Len(t, tree.Scenes, 1)
	assert.Equal(t, "She stepped off the ferry.", types.Deref(tree.Scenes[0].Prose), "note body seeds prose")
	assert.Len(t, tree.Links, 3)
}

func TestImportReaderFailureCreatesNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	index := writeFile(t, dir, "Index.md", "---\ntitle: Broken\n---\n")

	gw := memory.New()
	_, err := Import(ctx, gw, Options{Format: types.FormatVault, Path: index})
	var fe *types.FormatError
	require.True(t, errors.As(err, &fe), "err = %v", err)
	assert.Equal(t, types.FormatInvalidStructure, fe.Kind)
	assert.Contains(t, err.Error(), "longform.format: scenes")

	projects, err := gw.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	_, err = Import(ctx, gw, Options{Format: types.FormatMarkdown, Path: filepath.Join(dir, "missing.md")})
	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = Import(ctx, gw, Options{Format: "docx", Path: index})
	assert.Error(t, err)
}

type failingTx struct {
	storage.Transaction
}

func (failingTx) InsertBeat(context.Context, *types.Beat, int) (string, error) {
	return "", errors.New("disk full")
}

type failingGateway struct {
	*memory.MemoryStorage
}

func (g failingGateway) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	return g.MemoryStorage.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return fn(failingTx{tx})
	})
}

func TestImportStoreFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "novel.md", "# Act One\n## Scene A\n- do thing\n")
	gw := failingGateway{memory.New()}

	_, err := Import(ctx, gw, Options{Format: types.FormatMarkdown, Path: path})
	var se *types.StoreError
	require.True(t, errors.As(err, &se), "err = %v", err)
	assert.Contains(t, se.Error(), "disk full")

	projects, err := gw.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects, "the project must not exist after a failed import")
}

func TestRefIndexResolve(t *testing.T) {
	ix := NewRefIndex([]*types.Reference{
		{ID: "r1", SourceID: types.StrPtr("vault:note:Mara"), Type: types.RefCharacter, Name: "Mara"},
		{ID: "r2", Type: types.RefLocation, Name: "Pier"},
	})
	tests := []struct {
		link types.ParsedLink
		want string
	}{
		{types.ParsedLink{SourceID: "vault:note:Mara"}, "r1"},
		{types.ParsedLink{Type: types.RefLocation, Name: "PIER"}, "r2"},
		{types.ParsedLink{Type: types.RefItem, Name: "pier"}, "r2"},
		{types.ParsedLink{Type: types.RefItem, Name: "Rope"}, ""},
	}
	for _, tt := range tests {
		got, _ := ix.Resolve(tt.link)
		if got != tt.want {
			t.Errorf("Resolve(%+v) = %q, want %q", tt.link, got, tt.want)
		}
	}
	if !ix.HasSource("vault:note:Mara") || ix.HasSource("vault:note:Pier") {
		t.Errorf("HasSource disagrees with the index")
	}
}

func TestInserterSkip(t *testing.T) {
	ctx := context.Background()
	gw := memory.New()
	project := &types.Project{Title: "Skip"}
	require.NoError(t, gw.CreateProject(ctx, project))

	pc := &types.ParsedChapter{SourceID: "c1", Title: "One", Scenes: []*types.ParsedScene{
		{SourceID: "s1", Title: "Kept", Beats: []*types.ParsedBeat{{SourceID: "b1", Content: "a"}, {SourceID: "b2", Content: "b"}}},
		{SourceID: "s2", Title: "Elsewhere"},
	}}
	var counts Counts
	err := gw.RunInTransaction(ctx, func(tx storage.Transaction) error {
		in := NewInserter(tx, nil)
		in.Skip = func(kind types.ItemKind, sourceID string) bool {
			return sourceID == "s2" || sourceID == "b2"
		}
		_, err := in.Chapter(ctx, project.ID, pc, storage.AppendPosition)
		counts = in.Counts
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, Counts{Chapters: 1, Scenes: 1, Beats: 1}, counts)

	scenes, err := gw.GetScenes(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, "Kept", scenes[0].Title)
}

type fakeSuggester struct {
	seen []string
	err  error
}

func (f *fakeSuggester) Suggest(_ context.Context, refs []*types.ParsedReference) (int, error) {
	n := 0
	for _, r := range refs {
		if r.Classification != types.BasisDefault {
			continue
		}
		f.seen = append(f.seen, r.Name)
		r.Type = types.RefObjective
		r.Confidence = types.ConfidenceMedium
		n++
	}
	return n, f.err
}

func TestImportRunsSuggester(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "Index.md", "---\ntitle: Harbour\nlongform:\n  format: scenes\n  sceneFolder: scenes\n  scenes: [Arrival]\n---\n")
	writeFile(t, dir, "scenes/Arrival.md", "Nothing yet.\n")
	writeFile(t, dir, "Characters/Mara.md", "Keeper's daughter.\n")
	writeFile(t, dir, "Notes/Lamp.md", "---\ntags: [misc]\n---\n")

	gw := memory.New()
	s := &fakeSuggester{err: errors.New("rate limited")}
	res, err := Import(ctx, gw, Options{Format: types.FormatVault, Path: dir, Suggester: s})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lamp"}, s.seen)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "rate limited")

	tree, err := storage.LoadTree(ctx, gw, res.Project.ID)
	require.NoError(t, err)
	got := map[string]types.RefType{}
	for _, r := range tree.References {
		got[r.Name] = r.Type
	}
	assert.Equal(t, types.RefObjective, got["Lamp"])
	assert.Equal(t, types.RefCharacter, got["Mara"])
}
