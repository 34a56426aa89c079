package vault

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark/ast"

	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/types"
)

// note is one markdown file in the vault.
type note struct {
	path   string // filesystem path
	rel    string // slash separated, relative to the vault root, without extension
	header reader.Header
	body   []byte
	inline map[string]string // dataview key:: value fields, keys lowercased
}

var (
	inlineField = regexp.MustCompile(`^\s*([A-Za-z][\w -]*?)::\s*(.*?)\s*$`)
	wikiLink    = regexp.MustCompile(`\[\[([^\]|#]*)(?:#[^\]|]*)?(?:\|[^\]]*)?\]\]`)
)

func loadNote(path, rel string) (*note, error) {
	content, err := reader.ReadSource(format, path)
	if err != nil {
		return nil, err
	}
	header, body, err := reader.SplitHeader(content)
	switch {
	case err == nil:
	case errors.Is(err, reader.ErrMissingHeader):
		header = reader.Header{}
	default:
		return nil, &types.FormatError{Format: format, Kind: types.FormatInvalidStructure, Path: path, Msg: "note header", Err: err}
	}
	n := &note{path: path, rel: rel, header: header, inline: map[string]string{}}
	n.body = n.extractInline(body)
	return n, nil
}

// extractInline removes dataview field lines from body and records them.
func (n *note) extractInline(body []byte) []byte {
	var kept [][]byte
	inFence := false
	for _, line := range bytes.Split(body, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("```")) {
			inFence = !inFence
		}
		if !inFence {
			if m := inlineField.FindSubmatch(line); m != nil {
				key := strings.ToLower(strings.TrimSpace(string(m[1])))
				if _, seen := n.inline[key]; !seen {
					n.inline[key] = string(m[2])
				}
				continue
			}
		}
		kept = append(kept, line)
	}
	return bytes.Join(kept, []byte("\n"))
}

// field returns the first non-empty value among keys, header before inline.
func (n *note) field(keys ...string) string {
	for _, k := range keys {
		if vals := headerValues(n.header[k]); len(vals) > 0 {
			return strings.Join(vals, ", ")
		}
	}
	for _, k := range keys {
		if v := strings.TrimSpace(stripLinks(n.inline[k])); v != "" {
			return v
		}
	}
	return ""
}

// list returns the values of the first key present, header before inline.
func (n *note) list(keys ...string) []string {
	for _, k := range keys {
		if vals := headerValues(n.header[k]); len(vals) > 0 {
			return vals
		}
	}
	for _, k := range keys {
		if v, ok := n.inline[k]; ok {
			var out []string
			for _, part := range splitLinkList(v) {
				if part = strings.TrimSpace(stripLinks(part)); part != "" {
					out = append(out, part)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// headerValues flattens a header value into strings. Unquoted [[Name]] in
// YAML decodes as a nested list, so nesting is flattened too.
func headerValues(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(stripLinks(t))
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, headerValues(item)...)
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

// stripLinks reduces [[Name|Alias]] and [[Name#Heading]] to Name.
func stripLinks(s string) string {
	return wikiLink.ReplaceAllStringFunc(s, func(m string) string {
		sub := wikiLink.FindStringSubmatch(m)
		return strings.TrimSpace(sub[1])
	})
}

// splitLinkList splits on commas that are not inside a wiki link.
func splitLinkList(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "[["):
			depth++
			i++
		case strings.HasPrefix(s[i:], "]]") && depth > 0:
			depth--
			i++
		case s[i] == ',' && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

// title returns the header title or the file's base name.
func (n *note) title() string {
	if t := n.field("title"); t != "" {
		return t
	}
	return baseName(n.rel)
}

func baseName(rel string) string {
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		return rel[i+1:]
	}
	return rel
}

// splitBody turns top-level list items into beats and the remaining blocks
// into prose.
func splitBody(body []byte) (beats []string, prose string) {
	doc := reader.ParseMarkdown(body)
	var parts []string
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		if list, ok := c.(*ast.List); ok {
			for item := list.FirstChild(); item != nil; item = item.NextSibling() {
				li, ok := item.(*ast.ListItem)
				if !ok {
					continue
				}
				if text := stripLinks(reader.ItemText(li, body)); text != "" {
					beats = append(beats, text)
				}
			}
			continue
		}
		if text := rawBlock(c, body); text != "" {
			parts = append(parts, text)
		}
	}
	return beats, strings.Join(parts, "\n\n")
}

// rawBlock returns the source text of a block, keeping inline markup.
func rawBlock(n ast.Node, source []byte) string {
	switch v := n.(type) {
	case *ast.ThematicBreak, *ast.HTMLBlock:
		return ""
	case *ast.Heading:
		return strings.Repeat("#", v.Level) + " " + strings.TrimSpace(string(v.Lines().Value(source)))
	case *ast.FencedCodeBlock:
		return "```\n" + strings.TrimRight(string(v.Lines().Value(source)), "\n") + "\n```"
	}
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		lines := n.Lines()
		var b strings.Builder
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.WriteString(strings.TrimRight(string(seg.Value(source)), " \t\n"))
			if i < lines.Len()-1 {
				b.WriteByte('\n')
			}
		}
		return strings.TrimSpace(b.String())
	}
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if s := rawBlock(c, source); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
