// Package markdown reads heading-based outlines: level-1 headings are
// chapters, level-2 headings are scenes, and list items or paragraphs under a
// scene are beats.
//
// Source ids are keyed by position, not title, so renaming a heading is a
// field change on reimport and appending a heading is an addition.
package markdown

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yuin/goldmark/ast"

	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/types"
)

const format = types.FormatMarkdown

// DefaultChapterID is assigned to the synthetic chapter of a source with no
// level-1 headings.
const DefaultChapterID = "markdown:chapter:default"

func init() {
	reader.Register(format, func() reader.Reader { return &Reader{} })
}

// Reader parses heading-based text.
type Reader struct{}

// Format implements reader.Reader.
func (r *Reader) Format() types.Format { return format }

// Parse implements reader.Reader.
func (r *Reader) Parse(ctx context.Context, in reader.Input) (*types.ParsedProject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := reader.ReadSource(format, in.Path)
	if err != nil {
		return nil, err
	}
	in.Report(reader.ProgressEvent{Format: format, Stage: "parse", Total: 1})

	p, err := Parse(content)
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

// Parse builds the tree for already decoded content. The project title is
// left empty unless front matter names one.
func Parse(content []byte) (*types.ParsedProject, error) {
	p := &types.ParsedProject{Format: format}

	header, body, err := reader.SplitHeader(content)
	switch {
	case err == nil:
		p.Title = idgen.NormalizeTitle(header.String("title"))
	case errors.Is(err, reader.ErrMissingHeader):
	default:
		return nil, &types.FormatError{Format: format, Kind: types.FormatInvalidStructure, Msg: "front matter", Err: err}
	}

	w := &walker{source: body, project: p}
	doc := reader.ParseMarkdown(body)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		w.block(n)
	}

	if len(p.Chapters) == 0 {
		p.Chapters = append(p.Chapters, &types.ParsedChapter{SourceID: DefaultChapterID})
	}
	if w.orphans > 0 {
		p.Warnings = append(p.Warnings, fmt.Sprintf("%d block(s) before the first heading were ignored", w.orphans))
	}
	return p, nil
}

type walker struct {
	source  []byte
	project *types.ParsedProject
	chapter *types.ParsedChapter
	scene   *types.ParsedScene
	orphans int
}

func (w *walker) block(n ast.Node) {
	switch v := n.(type) {
	case *ast.Heading:
		title := idgen.NormalizeTitle(reader.InlineText(v, w.source))
		switch {
		case v.Level == 1:
			w.startChapter(title)
		case v.Level == 2:
			w.startScene(title)
		default:
			w.addBeat(title)
		}
	case *ast.Paragraph, *ast.TextBlock:
		w.addBeat(reader.InlineText(v, w.source))
	case *ast.List:
		w.list(v)
	}
}

// list emits one beat per item, depth first.
func (w *walker) list(l *ast.List) {
	for c := l.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		w.addBeat(reader.ItemText(item, w.source))
		for gc := item.FirstChild(); gc != nil; gc = gc.NextSibling() {
			if nested, ok := gc.(*ast.List); ok {
				w.list(nested)
			}
		}
	}
}

func (w *walker) startChapter(title string) {
	ord := len(w.project.Chapters)
	w.chapter = &types.ParsedChapter{
		SourceID: idgen.SourceID(string(format), "chapter", idgen.HashKey(strconv.Itoa(ord))),
		Title:    title,
		Position: ord,
	}
	w.project.Chapters = append(w.project.Chapters, w.chapter)
	w.scene = nil
}

func (w *walker) startScene(title string) {
	if w.chapter == nil {
		w.orphans++
		return
	}
	chOrd := w.chapter.Position
	ord := len(w.chapter.Scenes)
	w.scene = &types.ParsedScene{
		SourceID: idgen.SourceID(string(format), "scene", idgen.HashKey(strconv.Itoa(chOrd), strconv.Itoa(ord))),
		Title:    title,
		Position: ord,
	}
	w.chapter.Scenes = append(w.chapter.Scenes, w.scene)
}

func (w *walker) addBeat(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if w.scene == nil {
		w.orphans++
		return
	}
	ord := len(w.scene.Beats)
	key := idgen.HashKey(strconv.Itoa(w.chapter.Position), strconv.Itoa(w.scene.Position), strconv.Itoa(ord))
	w.scene.Beats = append(w.scene.Beats, &types.ParsedBeat{
		SourceID: idgen.SourceID(string(format), "beat", key),
		Content:  content,
		Position: ord,
	})
}
