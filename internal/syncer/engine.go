// Package syncer keeps a persisted project in step with its outline source.
//
// Preview re-reads the source and diffs it against the stored project.
// Apply commits a chosen subset of that diff, and Reimport commits all of
// it. Writes never delete anything and never touch locked items or prose.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plotsync/plotsync/internal/canon"
	"github.com/plotsync/plotsync/internal/classify"
	"github.com/plotsync/plotsync/internal/debug"
	"github.com/plotsync/plotsync/internal/importer"
	"github.com/plotsync/plotsync/internal/projectlock"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/telemetry"
	"github.com/plotsync/plotsync/internal/types"
)

const tracerName = "github.com/plotsync/plotsync/syncer"

// Engine orchestrates preview, apply and reimport for stored projects.
type Engine struct {
	Store storage.Gateway
	Cache *reader.Cache
	Locks *projectlock.Manager

	// Logger receives structured records. Defaults to debug.Logger().
	Logger *slog.Logger

	// Progress receives reader progress while a source is re-read.
	Progress func(reader.ProgressEvent)

	// Callbacks for UI feedback.
	OnMessage func(msg string)
	OnWarning func(msg string)

	tracer trace.Tracer
}

// NewEngine creates a sync engine. A nil cache reads sources directly; nil
// locks give an in-process lock manager.
func NewEngine(store storage.Gateway, cache *reader.Cache, locks *projectlock.Manager) *Engine {
	if locks == nil {
		locks = projectlock.New("", 0)
	}
	return &Engine{
		Store:  store,
		Cache:  cache,
		Locks:  locks,
		Logger: debug.Logger(),
		tracer: telemetry.Tracer(tracerName),
	}
}

// plan is a fresh parse paired with the preview computed from it.
type plan struct {
	projectID string
	project   *types.Project
	fresh     *types.ParsedProject
	preview   *types.SyncPreview

	chapterAt map[string]int
	sceneAt   map[string]sceneLoc
	beatAt    map[string]beatLoc
	refs      map[string]*types.ParsedReference
}

type sceneLoc struct {
	chapter *types.ParsedChapter
	index   int
}

type beatLoc struct {
	scene *types.ParsedScene
	index int
}

// Preview re-reads the project's source and reports what a sync would add
// or change. Nothing is written.
func (e *Engine) Preview(ctx context.Context, projectID string) (_ *types.SyncPreview, err error) {
	ctx, span := e.startSpan(ctx, "sync.preview", projectID)
	defer func() { endSpan(span, err) }()

	p, err := e.prepare(ctx, projectID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("plotsync.sync.additions", len(p.preview.Additions)),
		attribute.Int("plotsync.sync.changes", len(p.preview.Changes)),
	)
	e.msg("%d addition(s), %d change(s) pending for %s", len(p.preview.Additions), len(p.preview.Changes), p.project.Title)
	return p.preview, nil
}

// prepare loads the project, re-reads its source, and diffs the two. The
// persisted side is read in one transaction.
func (e *Engine) prepare(ctx context.Context, projectID string) (*plan, error) {
	project, err := e.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, storeError("get project", "project", projectID, err)
	}
	path := types.Deref(project.SourcePath)
	if path == "" {
		return nil, &types.PreconditionError{Msg: fmt.Sprintf("project %q has no known source path", project.Title)}
	}

	parsed, err := importer.Read(ctx, e.Cache, project.SourceFormat, reader.Input{Path: path, Progress: e.Progress})
	if err != nil {
		return nil, err
	}
	fresh := canon.Build(parsed)
	classify.Apply(fresh.References)

	var tree *storage.Tree
	err = e.Store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		tree, err = storage.LoadTree(ctx, tx, projectID)
		return err
	})
	if err != nil {
		return nil, storeError("load project", "project", projectID, err)
	}

	p := &plan{
		projectID: projectID,
		project:   tree.Project,
		fresh:     fresh,
		preview:   Diff(tree, fresh),
		chapterAt: make(map[string]int),
		sceneAt:   make(map[string]sceneLoc),
		beatAt:    make(map[string]beatLoc),
		refs:      make(map[string]*types.ParsedReference),
	}
	for i, pc := range fresh.Chapters {
		p.chapterAt[pc.SourceID] = i
		for j, ps := range pc.Scenes {
			p.sceneAt[ps.SourceID] = sceneLoc{chapter: pc, index: j}
			for k, pb := range ps.Beats {
				p.beatAt[pb.SourceID] = beatLoc{scene: ps, index: k}
			}
		}
	}
	for _, pr := range fresh.References {
		p.refs[refSourceKey(pr)] = pr
	}
	return p, nil
}

// Reclassify changes a reference's type under the project lock.
func (e *Engine) Reclassify(ctx context.Context, projectID, refID string, refType types.RefType) (*types.Reference, error) {
	var out *types.Reference
	err := e.withLock(ctx, projectID, func() error {
		var err error
		out, err = classify.Reclassify(ctx, e.Store, projectID, refID, refType)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.msg("%s is now a %s", out.Name, out.Type)
	return out, nil
}

// withLock runs fn holding the project's write lock. Contention past the
// lock timeout is reported as a precondition failure.
func (e *Engine) withLock(ctx context.Context, projectID string, fn func() error) error {
	err := e.Locks.With(ctx, projectID, fn)
	if errors.Is(err, projectlock.ErrTimeout) {
		return &types.PreconditionError{Msg: fmt.Sprintf("project %s is busy: %v", projectID, err)}
	}
	return err
}

func (e *Engine) startSpan(ctx context.Context, name, projectID string) (context.Context, trace.Span) {
	tracer := e.tracer
	if tracer == nil {
		tracer = telemetry.Tracer(tracerName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("plotsync.project_id", projectID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// storeError maps a gateway failure onto the error taxonomy.
func storeError(op, kind, name string, err error) error {
	var nf *types.NotFoundError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &types.NotFoundError{Kind: kind, Name: name}
	case errors.As(err, &nf), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &types.StoreError{Op: op, Err: err}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return debug.Logger()
}

func (e *Engine) msg(format string, args ...interface{}) {
	if e.OnMessage != nil {
		e.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (e *Engine) warn(format string, args ...interface{}) {
	if e.OnWarning != nil {
		e.OnWarning(fmt.Sprintf(format, args...))
	}
}
