// Package projectxml reads yWriter7 project files.
package projectxml

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/types"
)

const (
	format = types.FormatProjectXML

	rootElement = "YWRITER7"
)

func init() {
	reader.Register(format, func() reader.Reader { return &Reader{} })
}

// Reader parses yWriter7 project XML.
type Reader struct{}

// Format implements reader.Reader.
func (r *Reader) Format() types.Format { return format }

// Parse implements reader.Reader.
func (r *Reader) Parse(ctx context.Context, in reader.Input) (*types.ParsedProject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := reader.ReadSource(format, in.Path)
	if err != nil {
		return nil, err
	}
	in.Report(reader.ProgressEvent{Format: format, Stage: "parse", Total: 1})

	p, err := Parse(data)
	if err != nil {
		var fe *types.FormatError
		if errors.As(err, &fe) {
			fe.Path = in.Path
		}
		return nil, err
	}
	if p.Title == "" {
		p.Title = strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))
	}
	p.SourcePath = in.Path

	in.Report(reader.ProgressEvent{Format: format, Stage: "done", Current: 1, Total: 1})
	return p, nil
}

func newDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// Input is already UTF-8 whatever the declaration says.
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	return dec
}

// rootName returns the name of the document element.
func rootName(data []byte) (string, error) {
	dec := newDecoder(data)
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// Parse builds the tree from decoded project XML.
func Parse(data []byte) (*types.ParsedProject, error) {
	root, err := rootName(data)
	if err != nil {
		return nil, &types.FormatError{Format: format, Kind: types.FormatInvalidStructure, Msg: "not an XML document", Err: err}
	}
	switch root {
	case rootElement:
	case "YWRITER5", "YWRITER6":
		return nil, types.NewFormatError(format, types.FormatUnsupportedVersion, "", "%s files are not supported, save as yWriter 7", root)
	default:
		return nil, types.NewFormatError(format, types.FormatInvalidStructure, "", "unexpected root element <%s>", root)
	}

	var doc document
	if err := newDecoder(data).Decode(&doc); err != nil {
		return nil, &types.FormatError{Format: format, Kind: types.FormatInvalidStructure, Msg: "decode project", Err: err}
	}
	if v := strings.TrimSpace(doc.Project.Ver); v != "" && v != "7" {
		return nil, types.NewFormatError(format, types.FormatUnsupportedVersion, "", "project version %q", v)
	}

	p := &types.ParsedProject{
		Format: format,
		Title:  idgen.NormalizeTitle(doc.Project.Title),
	}

	chars := references(doc.Characters, "character", types.RefCharacter)
	locs := references(doc.Locations, "location", types.RefLocation)
	items := references(doc.Items, "item", types.RefItem)
	p.References = append(append(chars, locs...), items...)

	names := make(map[string]string, len(p.References))
	for _, r := range p.References {
		names[r.SourceID] = r.Name
	}

	scenes := make(map[string]*scene, len(doc.Scenes))
	for i := range doc.Scenes {
		scenes[strings.TrimSpace(doc.Scenes[i].ID)] = &doc.Scenes[i]
	}

	used := make(map[string]bool)
	for _, c := range doc.Chapters {
		if !zero(c.Type) || !zero(c.ChapterType) || flag(c.Unused) {
			continue
		}
		ch := &types.ParsedChapter{
			SourceID: "projectxml:chapter:" + strings.TrimSpace(c.ID),
			Title:    idgen.NormalizeTitle(c.Title),
			Position: len(p.Chapters),
			IsPart:   flag(c.SectionStart),
		}
		for _, scID := range c.SceneIDs {
			scID = strings.TrimSpace(scID)
			s, ok := scenes[scID]
			if !ok {
				p.Warnings = append(p.Warnings, fmt.Sprintf("chapter %s lists unknown scene %s", c.ID, scID))
				continue
			}
			if flag(s.Unused) || !zero(s.SceneType) {
				continue
			}
			if used[scID] {
				p.Warnings = append(p.Warnings, fmt.Sprintf("scene %s is listed more than once", scID))
				continue
			}
			used[scID] = true
			ps := buildScene(s, names)
			ps.Position = len(ch.Scenes)
			ch.Scenes = append(ch.Scenes, ps)
		}
		p.Chapters = append(p.Chapters, ch)
	}
	return p, nil
}

func buildScene(s *scene, names map[string]string) *types.ParsedScene {
	id := "projectxml:scene:" + strings.TrimSpace(s.ID)
	ps := &types.ParsedScene{
		SourceID:  id,
		Title:     idgen.NormalizeTitle(s.Title),
		Synopsis:  types.StrPtr(strings.TrimSpace(s.Desc)),
		Status:    statusNames[strings.TrimSpace(s.Status)],
		SceneType: "action",
		Prose:     types.StrPtr(strings.TrimSpace(s.Content)),
	}
	if flag(s.ReactionScene) {
		ps.SceneType = "reaction"
	}
	for _, part := range []struct{ key, text string }{
		{"goal", s.Goal},
		{"conflict", s.Conflict},
		{"outcome", s.Outcome},
	} {
		text := strings.TrimSpace(part.text)
		if text == "" {
			continue
		}
		ps.Beats = append(ps.Beats, &types.ParsedBeat{
			SourceID: id + ":" + part.key,
			Content:  text,
			Position: len(ps.Beats),
		})
	}
	link := func(ids []string, kind string, t types.RefType) {
		for _, rid := range ids {
			sid := "projectxml:" + kind + ":" + strings.TrimSpace(rid)
			ps.Links = append(ps.Links, types.ParsedLink{Type: t, Name: names[sid], SourceID: sid})
		}
	}
	link(s.CharIDs, "character", types.RefCharacter)
	link(s.LocIDs, "location", types.RefLocation)
	link(s.ItemIDs, "item", types.RefItem)
	return ps
}

func references(list []entity, kind string, t types.RefType) []*types.ParsedReference {
	out := make([]*types.ParsedReference, 0, len(list))
	for _, e := range list {
		r := &types.ParsedReference{
			SourceID:    "projectxml:" + kind + ":" + strings.TrimSpace(e.ID),
			Type:        t,
			Name:        idgen.NormalizeTitle(e.Title),
			Description: types.StrPtr(strings.TrimSpace(e.Desc)),
			Hint:        types.ClassificationHint{Declared: string(t)},
		}
		attrs := map[string]string{}
		for key, v := range map[string]string{
			types.NotesKey: e.Notes,
			"aka":          e.AKA,
			"tags":         e.Tags,
			"full_name":    e.FullName,
			"bio":          e.Bio,
			"goals":        e.Goals,
		} {
			if v = strings.TrimSpace(v); v != "" {
				attrs[key] = v
			}
		}
		if len(attrs) > 0 {
			r.Attributes = attrs
		}
		out = append(out, r)
	}
	return out
}
