package vault

import (
	"fmt"
	"strings"

	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/types"
)

// marker is the header value an index must declare.
const marker = "longform.format: scenes"

// entry is one name in the index scene list, with any nested children.
type entry struct {
	name     string
	children []entry
}

// index is the decoded longform block of an index note.
type index struct {
	title       string
	sceneFolder string
	entries     []entry
}

func readIndex(path string, header reader.Header) (*index, error) {
	lf := header.Map("longform")
	if lf == nil {
		return nil, types.NewFormatError(format, types.FormatInvalidStructure, path,
			"index header has no longform block; it must declare %s", marker)
	}
	if f := lf.String("format"); f != "scenes" {
		return nil, types.NewFormatError(format, types.FormatInvalidStructure, path,
			"index must declare %s (found %q)", marker, f)
	}
	raw, ok := lf["scenes"].([]any)
	if !ok && lf["scenes"] != nil {
		return nil, types.NewFormatError(format, types.FormatInvalidStructure, path, "longform.scenes must be a list")
	}
	entries, err := parseEntries(raw)
	if err != nil {
		return nil, &types.FormatError{Format: format, Kind: types.FormatInvalidStructure, Path: path, Msg: "longform.scenes", Err: err}
	}
	folder := lf.String("sceneFolder")
	if folder == "" {
		folder = "/"
	}
	return &index{
		title:       header.String("title"),
		sceneFolder: folder,
		entries:     entries,
	}, nil
}

// parseEntries decodes a nested scene list. A list directly after a name
// holds that name's children.
func parseEntries(list []any) ([]entry, error) {
	var out []entry
	for _, item := range list {
		switch v := item.(type) {
		case []any:
			children, err := parseEntries(v)
			if err != nil {
				return nil, err
			}
			if len(out) == 0 {
				out = append(out, children...)
				continue
			}
			last := &out[len(out)-1]
			last.children = append(last.children, children...)
		case string:
			if name := strings.TrimSpace(v); name != "" {
				out = append(out, entry{name: name})
			}
		case nil:
		default:
			return nil, fmt.Errorf("unexpected %T in scene list", item)
		}
	}
	return out, nil
}

// nested reports whether any entry has children.
func nested(entries []entry) bool {
	for _, e := range entries {
		if len(e.children) > 0 {
			return true
		}
	}
	return false
}

// flatten lists an entry's descendants depth first.
func flatten(entries []entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.name)
		out = append(out, flatten(e.children)...)
	}
	return out
}

// chapterPlan groups the scene list into chapters.
type chapterPlan struct {
	sourceID string
	title    string
	scenes   []string
}

func planChapters(idx *index) []chapterPlan {
	if !nested(idx.entries) {
		return []chapterPlan{{
			sourceID: "vault:chapter:default",
			title:    idx.title,
			scenes:   flatten(idx.entries),
		}}
	}
	var plans []chapterPlan
	var loose *chapterPlan
	for _, e := range idx.entries {
		if len(e.children) == 0 {
			if loose == nil {
				plans = append(plans, chapterPlan{sourceID: "vault:chapter:loose:" + e.name})
				loose = &plans[len(plans)-1]
			}
			loose.scenes = append(loose.scenes, e.name)
			continue
		}
		loose = nil
		plans = append(plans, chapterPlan{
			sourceID: "vault:chapter:" + e.name,
			title:    e.name,
			scenes:   flatten(e.children),
		})
	}
	return plans
}
