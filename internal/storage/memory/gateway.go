package memory

import (
	"context"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

func call[T any](ctx context.Context, m *MemoryStorage, fn func(v *view) (T, error)) (T, error) {
	var out T
	err := m.withTx(ctx, func(v *view) error {
		res, err := fn(v)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// withTx runs fn as a single-operation transaction.
func (m *MemoryStorage) withTx(ctx context.Context, fn func(v *view) error) error {
	return m.RunInTransaction(ctx, func(tx storage.Transaction) error { return fn(tx.(*view)) })
}

func (m *MemoryStorage) GetProject(ctx context.Context, id string) (*types.Project, error) {
	return call(ctx, m, func(v *view) (*types.Project, error) { return v.GetProject(ctx, id) })
}

func (m *MemoryStorage) ListProjects(ctx context.Context) ([]*types.Project, error) {
	return call(ctx, m, func(v *view) ([]*types.Project, error) { return v.ListProjects(ctx) })
}

func (m *MemoryStorage) GetChapters(ctx context.Context, projectID string) ([]*types.Chapter, error) {
	return call(ctx, m, func(v *view) ([]*types.Chapter, error) { return v.GetChapters(ctx, projectID) })
}

func (m *MemoryStorage) GetScenes(ctx context.Context, projectID string) ([]*types.Scene, error) {
	return call(ctx, m, func(v *view) ([]*types.Scene, error) { return v.GetScenes(ctx, projectID) })
}

func (m *MemoryStorage) GetBeats(ctx context.Context, projectID string) ([]*types.Beat, error) {
	return call(ctx, m, func(v *view) ([]*types.Beat, error) { return v.GetBeats(ctx, projectID) })
}

func (m *MemoryStorage) GetReferences(ctx context.Context, projectID string) ([]*types.Reference, error) {
	return call(ctx, m, func(v *view) ([]*types.Reference, error) { return v.GetReferences(ctx, projectID) })
}

func (m *MemoryStorage) GetSceneReferences(ctx context.Context, projectID string) ([]*types.SceneReference, error) {
	return call(ctx, m, func(v *view) ([]*types.SceneReference, error) { return v.GetSceneReferences(ctx, projectID) })
}

func (m *MemoryStorage) GetChapter(ctx context.Context, id string) (*types.Chapter, error) {
	return call(ctx, m, func(v *view) (*types.Chapter, error) { return v.GetChapter(ctx, id) })
}

func (m *MemoryStorage) GetScene(ctx context.Context, id string) (*types.Scene, error) {
	return call(ctx, m, func(v *view) (*types.Scene, error) { return v.GetScene(ctx, id) })
}

func (m *MemoryStorage) GetBeat(ctx context.Context, id string) (*types.Beat, error) {
	return call(ctx, m, func(v *view) (*types.Beat, error) { return v.GetBeat(ctx, id) })
}

func (m *MemoryStorage) GetReference(ctx context.Context, id string) (*types.Reference, error) {
	return call(ctx, m, func(v *view) (*types.Reference, error) { return v.GetReference(ctx, id) })
}

func (m *MemoryStorage) CreateProject(ctx context.Context, p *types.Project) error {
	return m.withTx(ctx, func(v *view) error { return v.CreateProject(ctx, p) })
}

func (m *MemoryStorage) UpdateProjectSource(ctx context.Context, id, sourcePath string, format types.Format) error {
	return m.withTx(ctx, func(v *view) error { return v.UpdateProjectSource(ctx, id, sourcePath, format) })
}

func (m *MemoryStorage) InsertChapter(ctx context.Context, ch *types.Chapter, position int) (string, error) {
	return call(ctx, m, func(v *view) (string, error) { return v.InsertChapter(ctx, ch, position) })
}

func (m *MemoryStorage) InsertScene(ctx context.Context, sc *types.Scene, position int) (string, error) {
	return call(ctx, m, func(v *view) (string, error) { return v.InsertScene(ctx, sc, position) })
}

func (m *MemoryStorage) InsertBeat(ctx context.Context, b *types.Beat, position int) (string, error) {
	return call(ctx, m, func(v *view) (string, error) { return v.InsertBeat(ctx, b, position) })
}

func (m *MemoryStorage) InsertReference(ctx context.Context, r *types.Reference) (string, error) {
	return call(ctx, m, func(v *view) (string, error) { return v.InsertReference(ctx, r) })
}

func (m *MemoryStorage) LinkSceneReference(ctx context.Context, sceneID, referenceID string) error {
	return m.withTx(ctx, func(v *view) error { return v.LinkSceneReference(ctx, sceneID, referenceID) })
}

func (m *MemoryStorage) UpdateField(ctx context.Context, kind types.ItemKind, id, field, value string) error {
	return m.withTx(ctx, func(v *view) error { return v.UpdateField(ctx, kind, id, field, value) })
}

func (m *MemoryStorage) UpdateProse(ctx context.Context, kind types.ItemKind, id string, prose *string) error {
	return m.withTx(ctx, func(v *view) error { return v.UpdateProse(ctx, kind, id, prose) })
}

func (m *MemoryStorage) SetLocked(ctx context.Context, kind types.ItemKind, id string, locked bool) error {
	return m.withTx(ctx, func(v *view) error { return v.SetLocked(ctx, kind, id, locked) })
}

func (m *MemoryStorage) SetArchived(ctx context.Context, kind types.ItemKind, id string, archived bool) error {
	return m.withTx(ctx, func(v *view) error { return v.SetArchived(ctx, kind, id, archived) })
}

func (m *MemoryStorage) UpdateReferenceType(ctx context.Context, id string, refType types.RefType, basis types.Basis) error {
	return m.withTx(ctx, func(v *view) error { return v.UpdateReferenceType(ctx, id, refType, basis) })
}
