package reader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitHeader(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  error
		wantBody string
		check    func(t *testing.T, h Header)
	}{
		{
			name:     "yaml",
			content:  "---\ntitle: Storm\ntags: [a, b]\nlongform:\n  format: scenes\n---\nbody\n",
			wantBody: "body\n",
			check: func(t *testing.T, h Header) {
				assert.Equal(t, "Storm", h.String("title"))
				assert.Equal(t, []string{"a", "b"}, h.Strings("tags"))
				assert.Equal(t, "a, b", h.String("tags"))
				assert.Equal(t, "scenes", h.Map("longform").String("format"))
			},
		},
		{
			name:     "toml",
			content:  "+++\ntitle = \"Storm\"\n[longform]\nformat = \"scenes\"\n+++\nbody\n",
			wantBody: "body\n",
			check: func(t *testing.T, h Header) {
				assert.Equal(t, "Storm", h.String("title"))
				assert.Equal(t, "scenes", h.Map("longform").String("format"))
			},
		},
		{
			name:     "empty header",
			content:  "---\n---\nbody",
			wantBody: "body",
			check: func(t *testing.T, h Header) {
				assert.Empty(t, h)
			},
		},
		{
			name:     "closing fence at end of file",
			content:  "---\ntitle: Only\n---",
			wantBody: "",
			check: func(t *testing.T, h Header) {
				assert.Equal(t, "Only", h.String("title"))
			},
		},
		{
			name:     "no header",
			content:  "# Heading\n",
			wantErr:  ErrMissingHeader,
			wantBody: "# Heading\n",
		},
		{
			name:     "unterminated",
			content:  "---\ntitle: x\nbody\n",
			wantErr:  ErrMalformedHeader,
			wantBody: "---\ntitle: x\nbody\n",
		},
		{
			name:     "bad yaml",
			content:  "---\ntitle: [unclosed\n---\n",
			wantErr:  ErrMalformedHeader,
			wantBody: "---\ntitle: [unclosed\n---\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, body, err := SplitHeader([]byte(tt.content))
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantBody, string(body))
			if tt.check != nil {
				tt.check(t, h)
			}
		})
	}
}

func TestHeaderStrings(t *testing.T) {
	h := Header{"aka": "Red, The Fox , ", "missing": nil, "n": 3}
	assert.Equal(t, []string{"Red", "The Fox"}, h.Strings("aka"))
	assert.Nil(t, h.Strings("missing"))
	assert.Nil(t, h.Strings("absent"))
	assert.Equal(t, "3", h.String("n"))
	assert.True(t, h.Has("missing"))
	assert.Nil(t, h.Map("n"))
}
