package syncer

import (
	"context"
	"fmt"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// SetLocked locks or unlocks a chapter or scene. A locked item and
// everything under it is left alone by sync.
func (e *Engine) SetLocked(ctx context.Context, projectID string, kind types.ItemKind, id string, locked bool) error {
	if kind != types.KindChapter && kind != types.KindScene {
		return fmt.Errorf("only chapters and scenes can be locked, not %s", kind)
	}
	return e.mutateItem(ctx, "lock", projectID, kind, id, func(tx storage.Transaction) error {
		return tx.SetLocked(ctx, kind, id, locked)
	})
}

// SetArchived soft-deletes or restores an item. Archived items stay matched
// by sync and are never re-added.
func (e *Engine) SetArchived(ctx context.Context, projectID string, kind types.ItemKind, id string, archived bool) error {
	return e.mutateItem(ctx, "archive", projectID, kind, id, func(tx storage.Transaction) error {
		return tx.SetArchived(ctx, kind, id, archived)
	})
}

// SetProse stores writer-authored prose on a scene or beat. Sync never
// reads or writes this field.
func (e *Engine) SetProse(ctx context.Context, projectID string, kind types.ItemKind, id string, prose *string) error {
	if kind != types.KindScene && kind != types.KindBeat {
		return fmt.Errorf("only scenes and beats carry prose, not %s", kind)
	}
	return e.mutateItem(ctx, "set prose", projectID, kind, id, func(tx storage.Transaction) error {
		return tx.UpdateProse(ctx, kind, id, prose)
	})
}

func (e *Engine) mutateItem(ctx context.Context, op, projectID string, kind types.ItemKind, id string, fn func(tx storage.Transaction) error) error {
	return e.withLock(ctx, projectID, func() error {
		err := e.Store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			if err := ownedBy(ctx, tx, projectID, kind, id); err != nil {
				return err
			}
			return fn(tx)
		})
		if err != nil {
			return storeError(op+" "+string(kind), string(kind), id, err)
		}
		e.logger().Debug("item updated", "op", op, "project", projectID, "type", string(kind), "id", id)
		return nil
	})
}

// ownedBy returns storage.ErrNotFound unless id is a kind item of projectID.
func ownedBy(ctx context.Context, r storage.TreeReader, projectID string, kind types.ItemKind, id string) error {
	if kind == types.KindReference {
		ref, err := r.GetReference(ctx, id)
		if err != nil {
			return err
		}
		if ref.ProjectID != projectID {
			return storage.ErrNotFound
		}
		return nil
	}
	_, err := loadItem(ctx, r, projectID, kind, id)
	return err
}
