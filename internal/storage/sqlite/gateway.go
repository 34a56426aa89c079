package sqlite

import (
	"context"

	"github.com/plotsync/plotsync/internal/types"
)

// Each Store method runs in its own transaction. The bodies live on queries
// so RunInTransaction callers share the same code.

func call[T any](ctx context.Context, s *Store, fn func(q *queries) (T, error)) (T, error) {
	var out T
	err := s.withTx(ctx, func(q *queries) error {
		v, err := fn(q)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (s *Store) GetProject(ctx context.Context, id string) (*types.Project, error) {
	return call(ctx, s, func(q *queries) (*types.Project, error) { return q.GetProject(ctx, id) })
}

func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) {
	return call(ctx, s, func(q *queries) ([]*types.Project, error) { return q.ListProjects(ctx) })
}

func (s *Store) GetChapters(ctx context.Context, projectID string) ([]*types.Chapter, error) {
	return call(ctx, s, func(q *queries) ([]*types.Chapter, error) { return q.GetChapters(ctx, projectID) })
}

func (s *Store) GetScenes(ctx context.Context, projectID string) ([]*types.Scene, error) {
	return call(ctx, s, func(q *queries) ([]*types.Scene, error) { return q.GetScenes(ctx, projectID) })
}

func (s *Store) GetBeats(ctx context.Context, projectID string) ([]*types.Beat, error) {
	return call(ctx, s, func(q *queries) ([]*types.Beat, error) { return q.GetBeats(ctx, projectID) })
}

func (s *Store) GetReferences(ctx context.Context, projectID string) ([]*types.Reference, error) {
	return call(ctx, s, func(q *queries) ([]*types.Reference, error) { return q.GetReferences(ctx, projectID) })
}

func (s *Store) GetSceneReferences(ctx context.Context, projectID string) ([]*types.SceneReference, error) {
	return call(ctx, s, func(q *queries) ([]*types.SceneReference, error) { return q.GetSceneReferences(ctx, projectID) })
}

func (s *Store) GetChapter(ctx context.Context, id string) (*types.Chapter, error) {
	return call(ctx, s, func(q *queries) (*types.Chapter, error) { return q.GetChapter(ctx, id) })
}

func (s *Store) GetScene(ctx context.Context, id string) (*types.Scene, error) {
	return call(ctx, s, func(q *queries) (*types.Scene, error) { return q.GetScene(ctx, id) })
}

func (s *Store) GetBeat(ctx context.Context, id string) (*types.Beat, error) {
	return call(ctx, s, func(q *queries) (*types.Beat, error) { return q.GetBeat(ctx, id) })
}

func (s *Store) GetReference(ctx context.Context, id string) (*types.Reference, error) {
	return call(ctx, s, func(q *queries) (*types.Reference, error) { return q.GetReference(ctx, id) })
}

func (s *Store) CreateProject(ctx context.Context, p *types.Project) error {
	return s.withTx(ctx, func(q *queries) error { return q.CreateProject(ctx, p) })
}

func (s *Store) UpdateProjectSource(ctx context.Context, id, sourcePath string, format types.Format) error {
	return s.withTx(ctx, func(q *queries) error { return q.UpdateProjectSource(ctx, id, sourcePath, format) })
}

func (s *Store) InsertChapter(ctx context.Context, ch *types.Chapter, position int) (string, error) {
	return call(ctx, s, func(q *queries) (string, error) { return q.InsertChapter(ctx, ch, position) })
}

func (s *Store) InsertScene(ctx context.Context, sc *types.Scene, position int) (string, error) {
	return call(ctx, s, func(q *queries) (string, error) { return q.InsertScene(ctx, sc, position) })
}

func (s *Store) InsertBeat(ctx context.Context, b *types.Beat, position int) (string, error) {
	return call(ctx, s, func(q *queries) (string, error) { return q.InsertBeat(ctx, b, position) })
}

func (s *Store) InsertReference(ctx context.Context, r *types.Reference) (string, error) {
	return call(ctx, s, func(q *queries) (string, error) { return q.InsertReference(ctx, r) })
}

func (s *Store) LinkSceneReference(ctx context.Context, sceneID, referenceID string) error {
	return s.withTx(ctx, func(q *queries) error { return q.LinkSceneReference(ctx, sceneID, referenceID) })
}

func (s *Store) UpdateField(ctx context.Context, kind types.ItemKind, id, field, value string) error {
	return s.withTx(ctx, func(q *queries) error { return q.UpdateField(ctx, kind, id, field, value) })
}

func (s *Store) UpdateProse(ctx context.Context, kind types.ItemKind, id string, prose *string) error {
	return s.withTx(ctx, func(q *queries) error { return q.UpdateProse(ctx, kind, id, prose) })
}

func (s *Store) SetLocked(ctx context.Context, kind types.ItemKind, id string, locked bool) error {
	return s.withTx(ctx, func(q *queries) error { return q.SetLocked(ctx, kind, id, locked) })
}

func (s *Store) SetArchived(ctx context.Context, kind types.ItemKind, id string, archived bool) error {
	return s.withTx(ctx, func(q *queries) error { return q.SetArchived(ctx, kind, id, archived) })
}

func (s *Store) UpdateReferenceType(ctx context.Context, id string, refType types.RefType, basis types.Basis) error {
	return s.withTx(ctx, func(q *queries) error { return q.UpdateReferenceType(ctx, id, refType, basis) })
}
