// Package toolexport reads JSON exports of timeline-style outlining tools
// (Plottr and compatible). The top-level beat list becomes chapters and the
// cards placed on each beat become scenes.
package toolexport

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/types"
)

const format = types.FormatToolExport

// MinMajorVersion is the oldest exporter release whose layout is understood.
const MinMajorVersion = 2020

func init() {
	reader.Register(format, func() reader.Reader { return &Reader{} })
}

// Reader parses tool-export JSON.
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

// Parse builds the tree from a decoded export.
func Parse(data []byte) (*types.ParsedProject, error) {
	if !gjson.ValidBytes(data) {
		return nil, types.NewFormatError(format, types.FormatInvalidStructure, "", "body is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, types.NewFormatError(format, types.FormatInvalidStructure, "", "top level must be an object")
	}
	if err := checkVersion(doc.Get("file.version")); err != nil {
		return nil, err
	}
	cards := doc.Get("cards")
	if !cards.IsArray() {
		return nil, types.NewFormatError(format, types.FormatInvalidStructure, "", "missing cards")
	}

	book := firstBook(doc)
	p := &types.ParsedProject{Format: format}
	if book != "" {
		p.Title = idgen.NormalizeTitle(doc.Get("books." + book + ".title").String())
	}
	if p.Title == "" {
		p.Title = idgen.NormalizeTitle(doc.Get("series.name").String())
	}

	chapters, groupKey := readChapters(doc, book)
	byGroup := make(map[string]*types.ParsedChapter, len(chapters))
	for _, ch := range chapters {
		byGroup[strings.TrimPrefix(ch.SourceID, "toolexport:chapter:")] = ch
	}

	chars := readReferences(doc, "characters", "character", types.RefCharacter)
	places := readReferences(doc, "places", "place", types.RefLocation)
	names := make(map[string]string, len(chars)+len(places))
	for _, r := range append(append([]*types.ParsedReference(nil), chars...), places...) {
		names[r.SourceID] = r.Name
	}

	linePos := make(map[int64]int64)
	for _, l := range doc.Get("lines").Array() {
		linePos[l.Get("id").Int()] = l.Get("position").Int()
	}

	type placed struct {
		scene            *types.ParsedScene
		line, within, id int64
	}
	grouped := make(map[*types.ParsedChapter][]placed)
	for _, card := range cards.Array() {
		id := idString(card.Get("id"))
		if b := card.Get("bookId"); book != "" && b.Exists() && idString(b) != book {
			continue
		}
		group := idString(card.Get(groupKey))
		if group == "" && groupKey == "beatId" {
			group = idString(card.Get("chapterId"))
		}
		ch := byGroup[group]
		if ch == nil {
			p.Warnings = append(p.Warnings, fmt.Sprintf("card %s is not placed on a chapter and was skipped", id))
			continue
		}
		sc := &types.ParsedScene{
			SourceID: "toolexport:card:" + id,
			Title:    idgen.NormalizeTitle(card.Get("title").String()),
		}
		if desc := Flatten(card.Get("description")); desc != "" {
			sc.Beats = []*types.ParsedBeat{{SourceID: sc.SourceID + ":description", Content: desc}}
		}
		sc.Links = append(sc.Links, cardLinks(card, "characters", "character", types.RefCharacter, names)...)
		sc.Links = append(sc.Links, cardLinks(card, "places", "place", types.RefLocation, names)...)

		grouped[ch] = append(grouped[ch], placed{
			scene:  sc,
			line:   linePos[card.Get("lineId").Int()],
			within: card.Get("positionWithinLine").Int(),
			id:     card.Get("id").Int(),
		})
	}

	for _, ch := range chapters {
		list := grouped[ch]
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.line != b.line {
				return a.line < b.line
			}
			if a.within != b.within {
				return a.within < b.within
			}
			return a.id < b.id
		})
		for i, pl := range list {
			pl.scene.Position = i
			ch.Scenes = append(ch.Scenes, pl.scene)
		}
	}

	p.Chapters = chapters
	p.References = append(chars, places...)
	return p, nil
}

func checkVersion(v gjson.Result) error {
	if !v.Exists() || strings.TrimSpace(v.String()) == "" {
		return types.NewFormatError(format, types.FormatUnsupportedVersion, "", "missing file.version")
	}
	major, _, _ := strings.Cut(strings.TrimSpace(v.String()), ".")
	n, err := strconv.Atoi(major)
	if err != nil || n < MinMajorVersion {
		return types.NewFormatError(format, types.FormatUnsupportedVersion, "", "version %q is older than %d", v.String(), MinMajorVersion)
	}
	return nil
}

// firstBook returns the lowest book id, or "" for single-book files.
func firstBook(doc gjson.Result) string {
	var ids []int64
	for _, id := range doc.Get("books.allIds").Array() {
		ids = append(ids, id.Int())
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return strconv.FormatInt(ids[0], 10)
}

// readChapters returns chapters in display order and the card field that
// points at them.
func readChapters(doc gjson.Result, book string) ([]*types.ParsedChapter, string) {
	var raw []gjson.Result
	groupKey := "beatId"

	beats := doc.Get("beats")
	switch {
	case beats.IsArray():
		raw = beats.Array()
	case beats.IsObject():
		raw = beatIndex(beats, book)
	default:
		groupKey = "chapterId"
		for _, c := range doc.Get("chapters").Array() {
			if b := c.Get("bookId"); book != "" && b.Exists() && idString(b) != book {
				continue
			}
			raw = append(raw, c)
		}
	}

	sort.SliceStable(raw, func(i, j int) bool {
		pi, pj := raw[i].Get("position").Int(), raw[j].Get("position").Int()
		if pi != pj {
			return pi < pj
		}
		return raw[i].Get("id").Int() < raw[j].Get("id").Int()
	})

	out := make([]*types.ParsedChapter, 0, len(raw))
	for i, c := range raw {
		title := idgen.NormalizeTitle(c.Get("title").String())
		if title == "auto" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		out = append(out, &types.ParsedChapter{
			SourceID: "toolexport:chapter:" + idString(c.Get("id")),
			Title:    title,
			Position: i,
		})
	}
	return out, groupKey
}

// beatIndex picks the beats of one book out of the keyed layout.
func beatIndex(beats gjson.Result, book string) []gjson.Result {
	books := beats.Map()
	key := book
	if _, ok := books[key]; !ok {
		var keys []string
		for k, v := range books {
			if v.Get("index").IsObject() {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			a, aErr := strconv.Atoi(keys[i])
			b, bErr := strconv.Atoi(keys[j])
			if aErr == nil && bErr == nil {
				return a < b
			}
			return keys[i] < keys[j]
		})
		if len(keys) == 0 {
			return nil
		}
		key = keys[0]
	}
	var out []gjson.Result
	books[key].Get("index").ForEach(func(_, v gjson.Result) bool {
		out = append(out, v)
		return true
	})
	return out
}

func readReferences(doc gjson.Result, list, kind string, refType types.RefType) []*types.ParsedReference {
	var custom []string
	for _, a := range doc.Get("customAttributes." + list).Array() {
		name := a.String()
		if a.IsObject() {
			name = a.Get("name").String()
		}
		if name = strings.TrimSpace(name); name != "" {
			custom = append(custom, name)
		}
	}

	var out []*types.ParsedReference
	for _, item := range doc.Get(list).Array() {
		ref := &types.ParsedReference{
			SourceID: fmt.Sprintf("toolexport:%s:%s", kind, idString(item.Get("id"))),
			Type:     refType,
			Name:     idgen.NormalizeTitle(item.Get("name").String()),
			Hint:     types.ClassificationHint{Declared: string(refType)},
		}
		if desc := Flatten(item.Get("description")); desc != "" {
			ref.Description = &desc
		}
		attrs := make(map[string]string)
		if notes := Flatten(item.Get("notes")); notes != "" {
			attrs[types.NotesKey] = notes
		}
		for _, name := range custom {
			if v := Flatten(item.Get(gjson.Escape(name))); v != "" {
				attrs[name] = v
			}
		}
		if len(attrs) > 0 {
			ref.Attributes = attrs
		}
		out = append(out, ref)
	}
	return out
}

func cardLinks(card gjson.Result, field, kind string, refType types.RefType, names map[string]string) []types.ParsedLink {
	var out []types.ParsedLink
	for _, id := range card.Get(field).Array() {
		sid := fmt.Sprintf("toolexport:%s:%s", kind, idString(id))
		out = append(out, types.ParsedLink{Type: refType, Name: names[sid], SourceID: sid})
	}
	return out
}

// idString renders numeric and string ids the same way.
func idString(v gjson.Result) string {
	if !v.Exists() {
		return ""
	}
	if v.Type == gjson.Number {
		return strconv.FormatInt(v.Int(), 10)
	}
	return strings.TrimSpace(v.String())
}
