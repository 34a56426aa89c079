package toolexport

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Flatten turns a rich text value into plain text. Plain strings pass
// through; Slate node arrays have their block nodes joined with newlines and
// their leaf texts concatenated.
func Flatten(v gjson.Result) string {
	switch {
	case !v.Exists():
		return ""
	case v.IsArray():
		var blocks []string
		for _, node := range v.Array() {
			if s := flattenNode(node); s != "" {
				blocks = append(blocks, s)
			}
		}
		return strings.TrimSpace(strings.Join(blocks, "\n"))
	case v.IsObject():
		return strings.TrimSpace(flattenNode(v))
	case v.Type == gjson.String:
		return strings.TrimSpace(v.String())
	case v.Type == gjson.Null:
		return ""
	default:
		return v.String()
	}
}

func flattenNode(node gjson.Result) string {
	if t := node.Get("text"); t.Exists() {
		return t.String()
	}
	if node.Type == gjson.String {
		return node.String()
	}
	children := node.Get("children").Array()
	block := false
	for _, c := range children {
		if c.Get("children").Exists() {
			block = true
			break
		}
	}
	var parts []string
	for _, c := range children {
		parts = append(parts, flattenNode(c))
	}
	if block {
		var nonEmpty []string
		for _, s := range parts {
			if strings.TrimSpace(s) != "" {
				nonEmpty = append(nonEmpty, s)
			}
		}
		return strings.Join(nonEmpty, "\n")
	}
	return strings.Join(parts, "")
}
