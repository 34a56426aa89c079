package reader

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingHeader indicates the note does not open with a header fence.
	ErrMissingHeader = errors.New("missing header")
	// ErrMalformedHeader indicates the header block is unterminated or unparsable.
	ErrMalformedHeader = errors.New("malformed header")
)

// Header is the decoded metadata block of a note.
type Header map[string]any

// SplitHeader separates a leading YAML (---) or TOML (+++) block from the
// note body. Content without a header returns ErrMissingHeader and the whole
// content as body.
func SplitHeader(content []byte) (Header, []byte, error) {
	var fence string
	switch {
	case bytes.HasPrefix(content, []byte("---\n")):
		fence = "---"
	case bytes.HasPrefix(content, []byte("+++\n")):
		fence = "+++"
	default:
		return nil, content, ErrMissingHeader
	}

	rest := content[len(fence)+1:]
	var meta, body []byte
	switch {
	case bytes.HasPrefix(rest, []byte(fence+"\n")):
		body = rest[len(fence)+1:]
	case bytes.Equal(bytes.TrimRight(rest, "\n"), []byte(fence)):
	default:
		end := bytes.Index(rest, []byte("\n"+fence+"\n"))
		if end >= 0 {
			meta, body = rest[:end], rest[end+len(fence)+2:]
		} else if bytes.HasSuffix(bytes.TrimRight(rest, "\n"), []byte("\n"+fence)) {
			trimmed := bytes.TrimRight(rest, "\n")
			meta = trimmed[:len(trimmed)-len(fence)-1]
		} else {
			return nil, content, ErrMalformedHeader
		}
	}

	h := Header{}
	if len(bytes.TrimSpace(meta)) == 0 {
		return h, body, nil
	}
	var err error
	if fence == "---" {
		err = yaml.Unmarshal(meta, &h)
	} else {
		err = toml.Unmarshal(meta, &h)
	}
	if err != nil {
		return nil, content, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if h == nil {
		h = Header{}
	}
	return h, body, nil
}

// Has reports whether key is present.
func (h Header) Has(key string) bool {
	_, ok := h[key]
	return ok
}

// Map returns a nested table.
func (h Header) Map(key string) Header {
	switch v := h[key].(type) {
	case map[string]any:
		return Header(v)
	case Header:
		return v
	}
	return nil
}

// String returns a scalar value as text. Lists are joined with ", ".
func (h Header) String(key string) string {
	v, ok := h[key]
	if !ok || v == nil {
		return ""
	}
	if list, ok := v.([]any); ok {
		return strings.Join(stringList(list), ", ")
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Strings returns a value as a list. A scalar becomes a one-element list and
// a comma separated scalar is split.
func (h Header) Strings(key string) []string {
	v, ok := h[key]
	if !ok || v == nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		return stringList(list)
	}
	if list, ok := v.([]string); ok {
		return stringList(toAny(list))
	}
	return SplitList(fmt.Sprint(v))
}

// SplitList splits a comma separated field, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func stringList(list []any) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toAny(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}
