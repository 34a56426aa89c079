// Package storage provides the persistence gateway interface for projects.
//
// Concrete implementations live in the sqlite and memory sub-packages. The
// sync engine, importer, and CLI depend only on these interfaces.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/plotsync/plotsync/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrInvalidField is returned by UpdateField for fields that are not writable
// on the given kind.
var ErrInvalidField = errors.New("invalid field")

// AppendPosition asks an insert to place the item after its last sibling.
const AppendPosition = -1

// TreeReader reads a project's persisted tree. Every list is ordered by
// position within its parent and includes archived items.
type TreeReader interface {
	GetProject(ctx context.Context, id string) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)

	GetChapters(ctx context.Context, projectID string) ([]*types.Chapter, error)
	// GetScenes returns scenes ordered by chapter position, then scene position.
	GetScenes(ctx context.Context, projectID string) ([]*types.Scene, error)
	// GetBeats returns beats ordered by their scene's order, then beat position.
	GetBeats(ctx context.Context, projectID string) ([]*types.Beat, error)
	GetReferences(ctx context.Context, projectID string) ([]*types.Reference, error)
	GetSceneReferences(ctx context.Context, projectID string) ([]*types.SceneReference, error)

	GetChapter(ctx context.Context, id string) (*types.Chapter, error)
	GetScene(ctx context.Context, id string) (*types.Scene, error)
	GetBeat(ctx context.Context, id string) (*types.Beat, error)
	GetReference(ctx context.Context, id string) (*types.Reference, error)
}

// TreeWriter mutates a project's persisted tree.
type TreeWriter interface {
	CreateProject(ctx context.Context, p *types.Project) error
	UpdateProjectSource(ctx context.Context, id, sourcePath string, format types.Format) error

	// Insert* place the item at position within its parent, shifting later
	// siblings down. AppendPosition (or any position past the end) appends.
	// The new id is returned and also written back to the argument.
	InsertChapter(ctx context.Context, ch *types.Chapter, position int) (string, error)
	InsertScene(ctx context.Context, sc *types.Scene, position int) (string, error)
	InsertBeat(ctx context.Context, b *types.Beat, position int) (string, error)
	InsertReference(ctx context.Context, r *types.Reference) (string, error)
	LinkSceneReference(ctx context.Context, sceneID, referenceID string) error

	// UpdateField overwrites one syncable field (see WritableFields).
	UpdateField(ctx context.Context, kind types.ItemKind, id, field, value string) error
	// UpdateProse stores writer-authored prose on a scene or beat.
	UpdateProse(ctx context.Context, kind types.ItemKind, id string, prose *string) error
	SetLocked(ctx context.Context, kind types.ItemKind, id string, locked bool) error
	SetArchived(ctx context.Context, kind types.ItemKind, id string, archived bool) error
	UpdateReferenceType(ctx context.Context, id string, refType types.RefType, basis types.Basis) error
}

// Transaction provides atomic multi-operation support within a single
// database transaction. All reads inside the callback observe the
// transaction's own uncommitted writes.
type Transaction interface {
	TreeReader
	TreeWriter
}

// Gateway is the persistence interface required by the importer and sync engine.
// Each method outside RunInTransaction runs in its own transaction.
type Gateway interface {
	TreeReader
	TreeWriter

	// RunInTransaction commits if fn returns nil and rolls back otherwise.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	Close() error
}

// WritableFields lists the fields UpdateField accepts per kind.
var WritableFields = map[types.ItemKind][]string{
	types.KindChapter:   {types.FieldTitle},
	types.KindScene:     {types.FieldTitle, types.FieldSynopsis},
	types.KindBeat:      {types.FieldContent},
	types.KindReference: {"name", "description"},
}

// ValidateField returns ErrInvalidField unless field is writable on kind.
func ValidateField(kind types.ItemKind, field string) error {
	for _, f := range WritableFields[kind] {
		if f == field {
			return nil
		}
	}
	return fmt.Errorf("%w: %s.%s", ErrInvalidField, kind, field)
}

// Tree is a consistent snapshot of one project.
type Tree struct {
	Project    *types.Project
	Chapters   []*types.Chapter
	Scenes     []*types.Scene
	Beats      []*types.Beat
	References []*types.Reference
	Links      []*types.SceneReference
}

// LoadTree reads a full project snapshot through r. Callers wanting a
// consistent view pass a Transaction.
func LoadTree(ctx context.Context, r TreeReader, projectID string) (*Tree, error) {
	p, err := r.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	t := &Tree{Project: p}
	if t.Chapters, err = r.GetChapters(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load chapters: %w", err)
	}
	if t.Scenes, err = r.GetScenes(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load scenes: %w", err)
	}
	if t.Beats, err = r.GetBeats(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load beats: %w", err)
	}
	if t.References, err = r.GetReferences(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load references: %w", err)
	}
	if t.Links, err = r.GetSceneReferences(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load scene references: %w", err)
	}
	return t, nil
}
