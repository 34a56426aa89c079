package projectxml

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

const sampleProject = `<?xml version="1.0" encoding="utf-8"?>
<YWRITER7>
  <PROJECT><Ver>7</Ver><Title>Harbour Lights</Title></PROJECT>
  <LOCATIONS>
    <LOCATION><ID>1</ID><Title>Lighthouse</Title><Desc>White tower</Desc></LOCATION>
  </LOCATIONS>
  <ITEMS>
    <ITEM><ID>1</ID><Title>Brass key</Title><Desc>Opens the lamp room</Desc><AKA>The key</AKA><Tags>clue;plot</Tags></ITEM>
  </ITEMS>
  <CHARACTERS>
    <CHARACTER><ID>1</ID><Title>Mara</Title><Notes>Keeper's daughter</Notes></CHARACTER>
  </CHARACTERS>
  <SCENES>
    <SCENE><ID>1</ID><Title>Storm</Title><Desc>The storm hits</Desc><Status>2</Status>
      <Goal>Reach the tower</Goal><Conflict></Conflict><Outcome>She is too late</Outcome>
      <ReactionScene>-1</ReactionScene>
      <Characters><CharID>1</CharID></Characters><Locations><LocID>1</LocID></Locations><Items><ItemID>1</ItemID></Items>
      <SceneContent>Rain lashed the glass.</SceneContent>
    </SCENE>
    <SCENE><ID>2</ID><Title>Cut scene</Title><Unused>-1</Unused></SCENE>
    <SCENE><ID>3</ID><Title>Research note</Title><SceneType>1</SceneType></SCENE>
    <SCENE><ID>4</ID><Title>Morning</Title><Status>5</Status></SCENE>
  </SCENES>
  <CHAPTERS>
    <CHAPTER><ID>1</ID><Title>Part One</Title><SectionStart>-1</SectionStart><Scenes><ScID>1</ScID><ScID>2</ScID><ScID>3</ScID></Scenes></CHAPTER>
    <CHAPTER><ID>2</ID><Title>Notes</Title><ChapterType>1</ChapterType><Scenes><ScID>4</ScID></Scenes></CHAPTER>
    <CHAPTER><ID>3</ID><Title>Dawn</Title><Scenes><ScID>4</ScID><ScID>9</ScID></Scenes></CHAPTER>
  </CHAPTERS>
</YWRITER7>
`

func writeProject(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harbour.yw7")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseProject(t *testing.T) {
	p, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: writeProject(t, sampleProject)})
	require.NoError(t, err)

	assert.Equal(t, "Harbour Lights", p.Title)
	require.Len(t, p.Chapters, 2)

	one := p.Chapters[0]
	assert.Equal(t, "projectxml:chapter:1", one.SourceID)
	assert.True(t, one.IsPart)
	require.Len(t, one.Scenes, 1)

	storm := one.Scenes[0]
	assert.Equal(t, "projectxml:scene:1", storm.SourceID)
	assert.Equal(t, "The storm hits", types.Deref(storm.Synopsis))
	assert.Equal(t, "Draft", storm.Status)
	assert.Equal(t, "reaction", storm.SceneType)
	assert.Equal(t, "Rain lashed the glass.", types.Deref(storm.Prose))
	require.Len(t, storm.Beats, 2)
	assert.Equal(t, "projectxml:scene:1:goal", storm.Beats[0].SourceID)
	assert.Equal(t, "projectxml:scene:1:outcome", storm.Beats[1].SourceID)
	assert.Equal(t, 1, storm.Beats[1].Position)
	assert.Equal(t, []types.ParsedLink{
		{Type: types.RefCharacter, Name: "Mara", SourceID: "projectxml:character:1"},
		{Type: types.RefLocation, Name: "Lighthouse", SourceID: "projectxml:location:1"},
		{Type: types.RefItem, Name: "Brass key", SourceID: "projectxml:item:1"},
	}, storm.Links)

	dawn := p.Chapters[1]
	assert.Equal(t, 1, dawn.Position)
	require.Len(t, dawn.Scenes, 1)
	assert.Equal(t, "Done", dawn.Scenes[0].Status)
	assert.Equal(t, "action", dawn.Scenes[0].SceneType)
	require.Len(t, p.Warnings, 1)
	assert.Contains(t, p.Warnings[0], "unknown scene 9")

	byType := p.ReferencesByType()
	require.Len(t, byType[types.RefItem], 1)
	key := byType[types.RefItem][0]
	assert.Equal(t, "Opens the lamp room", types.Deref(key.Description))
	assert.Equal(t, map[string]string{"aka": "The key", "tags": "clue;plot"}, key.Attributes)
	assert.Equal(t, "Keeper's daughter", byType[types.RefCharacter][0].Attributes[types.NotesKey])
}

func TestParseIsDeterministic(t *testing.T) {
	path := writeProject(t, sampleProject)
	first, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: path})
	require.NoError(t, err)
	second, err := (&Reader{}).Parse(context.Background(), reader.Input{Path: path})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestVersionAndStructureErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want types.FormatErrorKind
	}{
		{"yWriter 6", `<YWRITER6><PROJECT/></YWRITER6>`, types.FormatUnsupportedVersion},
		{"yWriter 5", `<YWRITER5/>`, types.FormatUnsupportedVersion},
		{"foreign root", `<html><body/></html>`, types.FormatInvalidStructure},
		{"not xml", `just text`, types.FormatInvalidStructure},
		{"future project version", `<YWRITER7><PROJECT><Ver>8</Ver></PROJECT></YWRITER7>`, types.FormatUnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			var fe *types.FormatError
			require.True(t, errors.As(err, &fe), "err = %v", err)
			assert.Equal(t, tt.want, fe.Kind)
		})
	}
}

func TestMissingVersionAccepted(t *testing.T) {
	p, err := Parse([]byte(`<YWRITER7><CHAPTERS><CHAPTER><ID>5</ID><Title>Solo</Title></CHAPTER></CHAPTERS></YWRITER7>`))
	require.NoError(t, err)
	require.Len(t, p.Chapters, 1)
	assert.Empty(t, p.Chapters[0].Scenes)
}
