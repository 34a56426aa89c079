package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

const storageScopeName = "github.com/plotsync/plotsync/storage"

// InstrumentedGateway wraps storage.Gateway with OTel tracing and metrics.
// Every method gets a span and is counted in plotsync.storage.* metrics.
// Use WrapGateway to create one; it returns the original gateway unchanged
// when telemetry is disabled.
type InstrumentedGateway struct {
	inner  storage.Gateway
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ storage.Gateway = (*InstrumentedGateway)(nil)

// WrapGateway returns g decorated with OTel instrumentation.
// When telemetry is disabled, g is returned as-is.
func WrapGateway(g storage.Gateway) storage.Gateway {
	if !Enabled() {
		return g
	}
	return newInstrumentedGateway(g)
}

func newInstrumentedGateway(g storage.Gateway) *InstrumentedGateway {
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("plotsync.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("plotsync.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("plotsync.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedGateway{
		inner:  g,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// Unwrap returns the decorated gateway.
func (s *InstrumentedGateway) Unwrap() storage.Gateway {
	return s.inner
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedGateway) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedGateway) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedGateway) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedGateway) Close() error {
	return s.inner.Close()
}

// ── Reads ───────────────────────────────────────────────────────────────────

func (s *InstrumentedGateway) GetProject(ctx context.Context, id string) (*types.Project, error) {
	attrs := []attribute.KeyValue{attribute.String("plotsync.project.id", id)}
	ctx, span, t := s.op(ctx, "GetProject", attrs...)
	v, err := s.inner.GetProject(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) ListProjects(ctx context.Context) ([]*types.Project, error) {
	ctx, span, t := s.op(ctx, "ListProjects")
	v, err := s.inner.ListProjects(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedGateway) GetChapters(ctx context.Context, projectID string) ([]*types.Chapter, error) {
	attrs := []attribute.KeyValue{attribute.String("plotsync.project.id", projectID)}
	ctx, span, t := s.op(ctx, "GetChapters", attrs...)
	v, err := s.inner.GetChapters(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) GetScenes(ctx context.Context, projectID string) ([]*types.Scene, error) {
	attrs := []attribute.KeyValue{attribute.String("plotsync.project.id", projectID)}
	ctx, span, t := s.op(ctx, "GetScenes", attrs...)
	v, err := s.inner.GetScenes(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) GetBeats(ctx context.Context, projectID string) ([]*types.Beat, error) {
	attrs := []attribute.KeyValue{attribute.String("plotsync.project.id", projectID)}
	ctx, span, t := s.op(ctx, "GetBeats", attrs...)
	v, err := s.inner.GetBeats(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) GetReferences(ctx context.Context, projectID string) ([]*types.Reference, error) {
	attrs := []attribute.KeyValue{attribute.String("plotsync.project.id", projectID)}
	ctx, span, t := s.op(ctx, "GetReferences", attrs...)
	v, err := s.inner.GetReferences(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) GetSceneReferences(ctx context.Context, projectID string) ([]*types.SceneReference, error) {
	attrs := []attribute.KeyValue{attribute.String("plotsync.project.id", projectID)}
	ctx, span, t := s.op(ctx, "GetSceneReferences", attrs...)
	v, err := s.inner.GetSceneReferences(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) GetChapter(ctx context.Context, id string) (*types.Chapter, error) {
	ctx, span, t := s.op(ctx, "GetChapter")
	v, err := s.inner.GetChapter(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedGateway) GetScene(ctx context.Context, id string) (*types.Scene, error) {
	ctx, span, t := s.op(ctx, "GetScene")
	v, err := s.inner.GetScene(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedGateway) GetBeat(ctx context.Context, id string) (*types.Beat, error) {
	ctx, span, t := s.op(ctx, "GetBeat")
	v, err := s.inner.GetBeat(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedGateway) GetReference(ctx context.Context, id string) (*types.Reference, error) {
	ctx, span, t := s.op(ctx, "GetReference")
	v, err := s.inner.GetReference(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Writes ──────────────────────────────────────────────────────────────────

func (s *InstrumentedGateway) CreateProject(ctx context.Context, p *types.Project) error {
	attrs := []attribute.KeyValue{attribute.String("plotsync.format", string(p.SourceFormat))}
	ctx, span, t := s.op(ctx, "CreateProject", attrs...)
	err := s.inner.CreateProject(ctx, p)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedGateway) UpdateProjectSource(ctx context.Context, id, sourcePath string, format types.Format) error {
	attrs := []attribute.KeyValue{attribute.String("plotsync.project.id", id)}
	ctx, span, t := s.op(ctx, "UpdateProjectSource", attrs...)
	err := s.inner.UpdateProjectSource(ctx, id, sourcePath, format)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedGateway) InsertChapter(ctx context.Context, ch *types.Chapter, position int) (string, error) {
	attrs := []attribute.KeyValue{attribute.Int("plotsync.position", position)}
	ctx, span, t := s.op(ctx, "InsertChapter", attrs...)
	v, err := s.inner.InsertChapter(ctx, ch, position)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) InsertScene(ctx context.Context, sc *types.Scene, position int) (string, error) {
	attrs := []attribute.KeyValue{attribute.Int("plotsync.position", position)}
	ctx, span, t := s.op(ctx, "InsertScene", attrs...)
	v, err := s.inner.InsertScene(ctx, sc, position)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) InsertBeat(ctx context.Context, b *types.Beat, position int) (string, error) {
	attrs := []attribute.KeyValue{attribute.Int("plotsync.position", position)}
	ctx, span, t := s.op(ctx, "InsertBeat", attrs...)
	v, err := s.inner.InsertBeat(ctx, b, position)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) InsertReference(ctx context.Context, r *types.Reference) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("plotsync.reference.type", string(r.Type))}
	ctx, span, t := s.op(ctx, "InsertReference", attrs...)
	v, err := s.inner.InsertReference(ctx, r)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedGateway) LinkSceneReference(ctx context.Context, sceneID, referenceID string) error {
	ctx, span, t := s.op(ctx, "LinkSceneReference")
	err := s.inner.LinkSceneReference(ctx, sceneID, referenceID)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedGateway) UpdateField(ctx context.Context, kind types.ItemKind, id, field, value string) error {
	attrs := []attribute.KeyValue{
		attribute.String("plotsync.kind", string(kind)),
		attribute.String("plotsync.field", field),
	}
	ctx, span, t := s.op(ctx, "UpdateField", attrs...)
	err := s.inner.UpdateField(ctx, kind, id, field, value)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedGateway) UpdateProse(ctx context.Context, kind types.ItemKind, id string, prose *string) error {
	attrs := []attribute.KeyValue{attribute.String("plotsync.kind", string(kind))}
	ctx, span, t := s.op(ctx, "UpdateProse", attrs...)
	err := s.inner.UpdateProse(ctx, kind, id, prose)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedGateway) SetLocked(ctx context.Context, kind types.ItemKind, id string, locked bool) error {
	attrs := []attribute.KeyValue{attribute.String("plotsync.kind", string(kind))}
	ctx, span, t := s.op(ctx, "SetLocked", attrs...)
	err := s.inner.SetLocked(ctx, kind, id, locked)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedGateway) SetArchived(ctx context.Context, kind types.ItemKind, id string, archived bool) error {
	attrs := []attribute.KeyValue{attribute.String("plotsync.kind", string(kind))}
	ctx, span, t := s.op(ctx, "SetArchived", attrs...)
	err := s.inner.SetArchived(ctx, kind, id, archived)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedGateway) UpdateReferenceType(ctx context.Context, id string, refType types.RefType, basis types.Basis) error {
	attrs := []attribute.KeyValue{attribute.String("plotsync.reference.type", string(refType))}
	ctx, span, t := s.op(ctx, "UpdateReferenceType", attrs...)
	err := s.inner.UpdateReferenceType(ctx, id, refType, basis)
	s.done(ctx, span, t, err, attrs...)
	return err
}
