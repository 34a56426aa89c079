package reader

import (
	"context"
	"testing"

	"github.com/plotsync/plotsync/internal/types"
)

type stubReader struct {
	format types.Format
	calls  *int
}

func (s *stubReader) Format() types.Format { return s.format }

func (s *stubReader) Parse(_ context.Context, in Input) (*types.ParsedProject, error) {
	if s.calls != nil {
		*s.calls++
	}
	if _, err := StatSource(in.Path); err != nil {
		return nil, err
	}
	return &types.ParsedProject{
		Title:  "Stub",
		Format: s.format,
		Chapters: []*types.ParsedChapter{{
			SourceID: "stub:chapter:1",
			Title:    "One",
			Scenes:   []*types.ParsedScene{{SourceID: "stub:scene:1", Title: "Opening"}},
		}},
	}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	t.Run("empty registry", func(t *testing.T) {
		if got := r.List(); len(got) != 0 {
			t.Errorf("List() = %v, want empty", got)
		}
		if _, err := r.Get(types.FormatMarkdown); err == nil {
			t.Error("Get() should fail for unregistered format")
		}
	})

	t.Run("register and retrieve", func(t *testing.T) {
		r.Register(types.FormatMarkdown, func() Reader { return &stubReader{format: types.FormatMarkdown} })
		got, err := r.Get(types.FormatMarkdown)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Format() != types.FormatMarkdown {
			t.Errorf("Format() = %s", got.Format())
		}
		if !r.IsRegistered(types.FormatMarkdown) || r.IsRegistered(types.FormatVault) {
			t.Error("IsRegistered disagrees with registrations")
		}
	})

	t.Run("list returns sorted formats", func(t *testing.T) {
		r.Register(types.FormatVault, func() Reader { return &stubReader{format: types.FormatVault} })
		r.Register(types.FormatProjectXML, func() Reader { return &stubReader{format: types.FormatProjectXML} })
		got := r.List()
		want := []types.Format{types.FormatMarkdown, types.FormatProjectXML, types.FormatVault}
		if len(got) != len(want) {
			t.Fatalf("List() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("List() = %v, want %v", got, want)
			}
		}
	})

	t.Run("get returns new instance", func(t *testing.T) {
		calls := 0
		r.Register(types.FormatToolExport, func() Reader {
			calls++
			return &stubReader{format: types.FormatToolExport}
		})
		_, _ = r.Get(types.FormatToolExport)
		_, _ = r.Get(types.FormatToolExport)
		if calls != 2 {
			t.Errorf("factory called %d times, want 2", calls)
		}
	})
}
