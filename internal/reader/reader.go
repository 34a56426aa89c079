// Package reader defines the source reader interface and the registry that
// maps a format name to its reader.
//
// There is no format sniffing: callers always pick the reader explicitly.
// Format packages register themselves at init time; import
// internal/reader/all to make every format available.
package reader

import (
	"context"

	"github.com/plotsync/plotsync/internal/types"
)

// Reader parses one source format into a canonical tree.
type Reader interface {
	// Format returns the identifier this reader is registered under.
	Format() types.Format

	// Parse reads the source at in.Path. Errors are *types.FormatError for
	// malformed input, *types.NotFoundError for missing files, and
	// *types.PreconditionError for ambiguous inputs.
	//
	// Parsing an unmodified source twice must return identical source ids,
	// titles, and ordering.
	Parse(ctx context.Context, in Input) (*types.ParsedProject, error)
}

// Scoped is implemented by readers whose parse reads more than the file at
// in.Path. SourceRoot returns the file or directory covering every input
// Parse touches, so the parse cache can tell when any of them changed.
type Scoped interface {
	SourceRoot(path string) string
}

// Input is what a reader is asked to parse.
type Input struct {
	Path string

	// Progress, if set, receives events during long scans.
	Progress func(ProgressEvent)
}

// ProgressEvent reports reader progress.
type ProgressEvent struct {
	Format  types.Format `json:"format"`
	Stage   string       `json:"stage"` // "scan", "parse", "done"
	Current int          `json:"current"`
	Total   int          `json:"total"`
	Message string       `json:"message,omitempty"`
}

// Report sends ev to in.Progress if one is set.
func (in Input) Report(ev ProgressEvent) {
	if in.Progress != nil {
		in.Progress(ev)
	}
}
