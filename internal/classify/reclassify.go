package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// Reclassify records a writer's choice of type for a persisted reference.
// Only classification metadata changes; the diff engine never sees it.
func Reclassify(ctx context.Context, gw storage.Gateway, projectID, refID string, refType types.RefType) (*types.Reference, error) {
	if !refType.IsValid() {
		return nil, fmt.Errorf("invalid reference type %q (want one of %v)", refType, types.RefTypes)
	}
	var out *types.Reference
	err := gw.RunInTransaction(ctx, func(tx storage.Transaction) error {
		ref, err := tx.GetReference(ctx, refID)
		if err != nil {
			return err
		}
		if ref.ProjectID != projectID {
			return storage.ErrNotFound
		}
		if err := tx.UpdateReferenceType(ctx, refID, refType, types.BasisManual); err != nil {
			return err
		}
		out, err = tx.GetReference(ctx, refID)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &types.NotFoundError{Kind: "reference", Name: refID}
	}
	if err != nil {
		return nil, &types.StoreError{Op: "reclassify reference", Err: err}
	}
	return out, nil
}
