package all

import (
	"testing"

	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/types"
)

func TestEveryFormatRegistered(t *testing.T) {
	for _, f := range []types.Format{types.FormatToolExport, types.FormatMarkdown, types.FormatProjectXML, types.FormatVault} {
		r, err := reader.Get(f)
		if err != nil {
			t.Fatalf("Get(%s): %v", f, err)
		}
		if r.Format() != f {
			t.Errorf("reader for %s reports %s", f, r.Format())
		}
	}
}
