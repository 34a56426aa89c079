package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/types"
)

func writeVault(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

const harbourIndex = `---
title: Harbour
longform:
  format: scenes
  sceneFolder: scenes
  scenes:
    - Part One
    - - Arrival
      - Storm
      - - Storm aftermath
    - Interlude
    - Coda
---
Project notes.
`

func harbourVault(t *testing.T) string {
	return writeVault(t, map[string]string{
		"Novel/Index.md": harbourIndex,
		"Novel/scenes/Arrival.md": `---
title: The Arrival
status: draft
pov: "[[Mara]]"
characters: ["[[Mara]]", "[[Tomas|Tom]]"]
setting: "[[Lighthouse]]"
---
- Mara lands
- She meets [[Tomas|Tom]]

The ferry horn sounded.
`,
		"Novel/scenes/Storm.md":           "synopsis:: The storm hits\nitems:: [[Brass Key]], Rope\n\n- Lights fail\n",
		"Novel/scenes/Storm aftermath.md": "+++\ntitle = \"Aftermath\"\n+++\nquiet.\n",
		"Novel/scenes/Interlude.md":       "",
		"Novel/scenes/Coda.md":            "---\nsummary: End\n---\n",
		"Characters/Mara.md":              "---\naliases: [Mara Vell]\nage: 30\n---\nKeeper's daughter.\n",
		"Places/Lighthouse.md":            "White tower.\n",
		"Notes/Guild.md":                  "---\ntype: faction\n---\n",
		"Notes/Random.md":                 "Nothing to see.\n",
		".obsidian/workspace.md":          "---\nlongform: {}\n---\n",
	})
}

func TestParseVault(t *testing.T) {
	root := harbourVault(t)
	var events []reader.ProgressEvent
	p, err := (&Reader{}).Parse(context.Background(), reader.Input{
		Path:     root,
		Progress: func(ev reader.ProgressEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)

	assert.Equal(t, "Harbour", p.Title)
	require.Len(t, p.Chapters, 2)

	part := p.Chapters[0]
	assert.Equal(t, "vault:chapter:Part One", part.SourceID)
	assert.Equal(t, "Part One", part.Title)
	require.Len(t, part.Scenes, 3)

	arrival := part.Scenes[0]
	assert.Equal(t, "vault:scene:Arrival", arrival.SourceID)
	assert.Equal(t, "The Arrival", arrival.Title)
	assert.Equal(t, "draft", arrival.Status)
	require.Len(t, arrival.Beats, 2)
	assert.Equal(t, "vault:scene:Arrival:beat:1", arrival.Beats[0].SourceID)
	assert.Equal(t, "She meets Tomas", arrival.Beats[1].Content)
	assert.Equal(t, "The ferry horn sounded.", types.Deref(arrival.Prose))
	assert.Equal(t, []types.ParsedLink{
		{Type: types.RefCharacter, Name: "Mara", SourceID: "vault:note:Characters/Mara"},
		{Type: types.RefCharacter, Name: "Tomas", SourceID: "vault:link:character:tomas"},
		{Type: types.RefLocation, Name: "Lighthouse", SourceID: "vault:note:Places/Lighthouse"},
	}, arrival.Links)

	storm := part.Scenes[1]
	assert.Equal(t, "Storm", storm.Title)
	assert.Equal(t, "The storm hits", types.Deref(storm.Synopsis))
	require.Len(t, storm.Beats, 1)
	assert.Equal(t, "Lights fail", storm.Beats[0].Content)
	assert.Nil(t, storm.Prose)
	require.Len(t, storm.Links, 2)
	assert.Equal(t, "Brass Key", storm.Links[0].Name)
	assert.Equal(t, types.RefItem, storm.Links[1].Type)

	assert.Equal(t, "Aftermath", part.Scenes[2].Title)
	assert.Equal(t, "quiet.", types.Deref(part.Scenes[2].Prose))

	loose := p.Chapters[1]
	assert.Equal(t, "vault:chapter:loose:Interlude", loose.SourceID)
	require.Len(t, loose.Scenes, 2)
	assert.Equal(t, "End", types.Deref(loose.Scenes[1].Synopsis))

	var ids []string
	for _, r := range p.References {
		ids = append(ids, r.SourceID)
	}
	assert.Equal(t, []string{
		"vault:note:Characters/Mara",
		"vault:note:Notes/Guild",
		"vault:note:Places/Lighthouse",
		"vault:link:character:tomas",
		"vault:link:item:brass key",
		"vault:link:item:rope",
	}, ids)

	mara := p.References[0]
	assert.Equal(t, types.RefCharacter, mara.Type)
	assert.Equal(t, types.BasisFolder, mara.Classification)
	assert.Equal(t, map[string]string{"age": "30", "notes": "Keeper's daughter."}, mara.Attributes)

	guild := p.References[1]
	assert.Equal(t, types.RefOrganization, guild.Type)
	assert.Equal(t, types.BasisDeclared, guild.Classification)

	tomas := p.References[3]
	assert.Equal(t, types.RefCharacter, tomas.Type)
	assert.Equal(t, types.ConfidenceHigh, tomas.Confidence)

	require.NotEmpty(t, events)
	assert.Equal(t, "scan", events[0].Stage)
	assert.Equal(t, "done", events[len(events)-1].Stage)
}

func TestParseVaultIsDeterministic(t *testing.T) {
	root := harbourVault(t)
	first, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: root})
	require.NoError(t, err)
	second, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: root})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestIndexFileWithFlatList(t *testing.T) {
	root := writeVault(t, map[string]string{
		"Book.md": "---\nlongform:\n  format: scenes\n  sceneFolder: /\n  scenes: [One, Two]\n---\n",
		"One.md":  "- beat\n",
		"Two.md":  "",
		"Mara.md": "---\ntype: character\n---\n",
	})
	p, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: filepath.Join(root, "Book.md")})
	require.NoError(t, err)

	require.Len(t, p.Chapters, 1)
	ch := p.Chapters[0]
	assert.Equal(t, "vault:chapter:default", ch.SourceID)
	assert.Equal(t, "Book", ch.Title)
	require.Len(t, ch.Scenes, 2)
	require.Len(t, p.References, 1)
	assert.Equal(t, "vault:note:Mara", p.References[0].SourceID)
}

func TestIndexMissingScenesMarker(t *testing.T) {
	for name, index := range map[string]string{
		"wrong format": "---\nlongform:\n  format: single\n  sceneFolder: /\n  scenes: [A]\n---\n",
		"no format":    "---\nlongform:\n  sceneFolder: /\n  scenes: [A]\n---\n",
		"no header":    "# Just a note\n",
	} {
		t.Run(name, func(t *testing.T) {
			root := writeVault(t, map[string]string{"Index.md": index, "A.md": ""})
			_, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: filepath.Join(root, "Index.md")})
			var fe *types.FormatError
			require.True(t, errors.As(err, &fe), "err = %v", err)
			assert.Equal(t, types.FormatInvalidStructure, fe.Kind)
			assert.Contains(t, fe.Error(), "longform.format: scenes")
		})
	}
}

func TestTomlIndex(t *testing.T) {
	root := writeVault(t, map[string]string{
		"Index.md": "+++\ntitle = \"Toml Book\"\n[longform]\nformat = \"scenes\"\nscenes = [\"A\", [\"B\"], \"C\"]\n+++\n",
		"A.md":     "",
		"B.md":     "",
		"C.md":     "",
	})
	p, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: filepath.Join(root, "Index.md")})
	require.NoError(t, err)
	require.Len(t, p.Chapters, 2)
	assert.Equal(t, "vault:chapter:A", p.Chapters[0].SourceID)
	assert.Equal(t, "B", p.Chapters[0].Scenes[0].Title)
	assert.Equal(t, "vault:chapter:loose:C", p.Chapters[1].SourceID)
}

func TestMissingSceneFile(t *testing.T) {
	root := writeVault(t, map[string]string{
		"Index.md": "---\nlongform:\n  format: scenes\n  scenes: [Present, Absent]\n---\n",
		"Present.md": "",
	})
	_, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: filepath.Join(root, "Index.md")})
	var nf *types.NotFoundError
	require.True(t, errors.As(err, &nf), "err = %v", err)
	assert.Equal(t, "scene", nf.Kind)
	assert.Contains(t, nf.Name, "Absent")
}

func TestDirectoryIndexDiscovery(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		root := writeVault(t, map[string]string{"a.md": "plain"})
		_, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: root})
		var fe *types.FormatError
		require.True(t, errors.As(err, &fe), "err = %v", err)
		assert.Equal(t, types.FormatNotFound, fe.Kind)
	})
	t.Run("ambiguous", func(t *testing.T) {
		idx := "---\nlongform:\n  format: scenes\n  scenes: []\n---\n"
		root := writeVault(t, map[string]string{"one/Index.md": idx, "two/Index.md": idx})
		_, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: root})
		var pe *types.PreconditionError
		require.True(t, errors.As(err, &pe), "err = %v", err)
		assert.Contains(t, pe.Msg, "one/Index.md")
		assert.Contains(t, pe.Msg, "two/Index.md")
	})
	t.Run("missing path", func(t *testing.T) {
		_, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: filepath.Join(t.TempDir(), "nope")})
		var nf *types.NotFoundError
		require.True(t, errors.As(err, &nf), "err = %v", err)
	})
}

func TestStripLinks(t *testing.T) {
	assert.Equal(t, "Mara and Tomas", stripLinks("[[Mara]] and [[Tomas|Tom]]"))
	assert.Equal(t, "Lighthouse", stripLinks("[[Lighthouse#Lamp room]]"))
	assert.Equal(t, []string{"[[A, B]]", " C"}, splitLinkList("[[A, B]], C"))
}

func TestCachedIndexFileSeesSceneEdits(t *testing.T) {
	root := harbourVault(t)
	index := filepath.Join(root, "Novel", "Index.md")
	cache, err := reader.NewCache(nil, 4)
	require.NoError(t, err)
	ctx := context.Background()

	before, err := cache.Parse(ctx, types.FormatVault, reader.Input{Path: index})
	require.NoError(t, err)
	assert.Equal(t, "The Arrival", before.Chapters[0].Scenes[0].Title)

	scene := filepath.Join(root, "Novel", "scenes", "Arrival.md")
	require.NoError(t, os.WriteFile(scene, []byte("---\ntitle: The Long Arrival\n---\n- Mara lands\n"), 0o644))

	after, err := cache.Parse(ctx, types.FormatVault, reader.Input{Path: index})
	require.NoError(t, err)
	assert.Equal(t, "The Long Arrival", after.Chapters[0].Scenes[0].Title)
}
