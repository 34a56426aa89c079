// Package importer persists a freshly parsed source as a new project.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/plotsync/plotsync/internal/canon"
	"github.com/plotsync/plotsync/internal/classify"
	"github.com/plotsync/plotsync/internal/debug"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// Options contains import configuration
type Options struct {
	Format types.Format // reader to use; there is no sniffing
	Path   string       // source file or vault directory
	Title  string       // overrides the parsed title when set

	// Cache, if set, is used instead of a fresh reader.
	Cache *reader.Cache

	// Progress receives reader progress events.
	Progress func(reader.ProgressEvent)

	// ReviewThreshold is passed to classify.Summarize.
	ReviewThreshold float64

	// Suggester, if set, retypes references the heuristic only guessed.
	// A failing suggester leaves the guesses in place and adds a warning.
	Suggester Suggester
}

// Suggester improves guessed reference types in place.
type Suggester interface {
	Suggest(ctx context.Context, refs []*types.ParsedReference) (int, error)
}

// Result contains statistics about the import operation
type Result struct {
	Project        *types.Project  `json:"project"`
	Counts         Counts          `json:"counts"`
	Warnings       []string        `json:"warnings,omitempty"`
	Classification classify.Report `json:"classification"`
}

// Import reads opts.Path with the selected reader, normalizes and classifies
// the tree, then creates the project in one transaction. Nothing is written
// when reading fails, and a failed transaction leaves no trace.
func Import(ctx context.Context, gw storage.Gateway, opts Options) (*Result, error) {
	if !opts.Format.IsValid() {
		return nil, fmt.Errorf("unknown format %q", opts.Format)
	}
	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", opts.Path, err)
	}

	parsed, err := Read(ctx, opts.Cache, opts.Format, reader.Input{Path: abs, Progress: opts.Progress})
	if err != nil {
		return nil, err
	}
	if opts.Title != "" {
		parsed.Title = opts.Title
	}
	return Persist(ctx, gw, parsed, opts)
}

// Read parses a source through cache, or through a fresh reader when cache
// is nil.
func Read(ctx context.Context, cache *reader.Cache, format types.Format, in reader.Input) (*types.ParsedProject, error) {
	if cache != nil {
		return cache.Parse(ctx, format, in)
	}
	r, err := reader.Get(format)
	if err != nil {
		return nil, err
	}
	return r.Parse(ctx, in)
}

// Persist builds and classifies parsed, then stores it as a new project.
// Only opts.ReviewThreshold and opts.Suggester are consulted.
func Persist(ctx context.Context, gw storage.Gateway, parsed *types.ParsedProject, opts Options) (*Result, error) {
	tree := canon.Build(parsed)
	classify.Apply(tree.References)

	res := &Result{Warnings: tree.Warnings}
	if opts.Suggester != nil {
		n, err := opts.Suggester.Suggest(ctx, tree.References)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("classification suggestions incomplete: %v", err))
		}
		debug.Logf("suggester retyped %d reference(s)\n", n)
	}
	res.Classification = classify.Summarize(parsedResults(tree.References), opts.ReviewThreshold)

	project := &types.Project{
		Title:        tree.Title,
		SourcePath:   types.StrPtr(tree.SourcePath),
		SourceFormat: tree.Format,
	}

	err := gw.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateProject(ctx, project); err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		in := NewInserter(tx, nil)
		// References first so scene links resolve.
		for _, pr := range tree.References {
			if _, err := in.Reference(ctx, project.ID, pr); err != nil {
				return fmt.Errorf("insert reference %q: %w", pr.Name, err)
			}
		}
		for _, pc := range tree.Chapters {
			if _, err := in.Chapter(ctx, project.ID, pc, storage.AppendPosition); err != nil {
				return fmt.Errorf("insert chapter %q: %w", pc.Title, err)
			}
		}
		res.Counts = in.Counts
		res.Warnings = append(res.Warnings, in.Warnings...)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &types.StoreError{Op: "import", Err: err}
	}

	res.Project = project
	debug.Logf("imported %s as project %s: %d chapters, %d scenes, %d beats, %d references\n",
		types.Deref(project.SourcePath), project.ID, res.Counts.Chapters, res.Counts.Scenes, res.Counts.Beats, res.Counts.References)
	return res, nil
}

func parsedResults(refs []*types.ParsedReference) []classify.Result {
	out := make([]classify.Result, 0, len(refs))
	for _, r := range refs {
		out = append(out, classify.Result{Type: r.Type, Basis: r.Classification, Confidence: r.Confidence})
	}
	return out
}
