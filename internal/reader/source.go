package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/plotsync/plotsync/internal/types"
)

// ReadSource loads a text source, honouring a UTF-8 or UTF-16 byte order
// mark, and returns UTF-8 with LF line endings.
func ReadSource(format types.Format, path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.NotFoundError{Kind: "file", Name: path}
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return DecodeText(format, path, raw)
}

// DecodeText converts raw bytes to normalized UTF-8.
func DecodeText(format types.Format, path string, raw []byte) ([]byte, error) {
	var text []byte
	if bytes.HasPrefix(raw, []byte{0xFF, 0xFE}) || bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) {
		// BOMOverride picks the UTF-16 byte order from the mark and drops it.
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, raw)
		if err != nil {
			return nil, &types.FormatError{Format: format, Kind: types.FormatInvalidEncoding, Path: path, Err: err}
		}
		text = out
	} else {
		// The UTF-8 decoder would silently substitute U+FFFD, so validate
		// the raw bytes instead.
		text = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
		if !utf8.Valid(text) {
			return nil, &types.FormatError{Format: format, Kind: types.FormatInvalidEncoding, Path: path, Msg: "source is not valid UTF-8"}
		}
	}
	text = bytes.ReplaceAll(text, []byte("\r\n"), []byte("\n"))
	text = bytes.ReplaceAll(text, []byte("\r"), []byte("\n"))
	return text, nil
}

// StatSource returns file info or a NotFoundError.
func StatSource(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.NotFoundError{Kind: "file", Name: path}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return info, nil
}
