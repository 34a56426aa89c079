package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements storage.Transaction over one open transaction.
type queries struct {
	q dbtx
}

var _ storage.Transaction = (*queries)(nil)

const (
	projectColumns = `id, title, source_path, source_format, created_at, updated_at`
	chapterColumns = `ch.id, ch.project_id, ch.source_id, ch.title, ch.position, ch.is_part, ch.locked, ch.archived, ch.created_at, ch.updated_at`
	sceneColumns   = `sc.id, sc.project_id, sc.chapter_id, sc.source_id, sc.title, sc.synopsis, sc.prose, sc.status, sc.scene_type, sc.position, sc.locked, sc.archived, sc.created_at, sc.updated_at`
	beatColumns    = `b.id, b.project_id, b.scene_id, b.source_id, b.content, b.prose, b.position, b.archived, b.created_at, b.updated_at`
	refColumns     = `id, project_id, source_id, type, name, description, attributes, classification, confidence, archived, created_at, updated_at`
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*types.Project, error) {
	var p types.Project
	var sourcePath sql.NullString
	var format, created, updated string
	if err := row.Scan(&p.ID, &p.Title, &sourcePath, &format, &created, &updated); err != nil {
		return nil, err
	}
	if sourcePath.Valid {
		p.SourcePath = &sourcePath.String
	}
	p.SourceFormat = types.Format(format)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

func scanChapter(row scanner) (*types.Chapter, error) {
	var ch types.Chapter
	var sourceID sql.NullString
	var created, updated string
	if err := row.Scan(&ch.ID, &ch.ProjectID, &sourceID, &ch.Title, &ch.Position,
		&ch.IsPart, &ch.Locked, &ch.Archived, &created, &updated); err != nil {
		return nil, err
	}
	ch.SourceID = nullString(sourceID)
	ch.CreatedAt = parseTime(created)
	ch.UpdatedAt = parseTime(updated)
	return &ch, nil
}

func scanScene(row scanner) (*types.Scene, error) {
	var sc types.Scene
	var sourceID, synopsis, prose sql.NullString
	var created, updated string
	if err := row.Scan(&sc.ID, &sc.ProjectID, &sc.ChapterID, &sourceID, &sc.Title, &synopsis, &prose,
		&sc.Status, &sc.SceneType, &sc.Position, &sc.Locked, &sc.Archived, &created, &updated); err != nil {
		return nil, err
	}
	sc.SourceID = nullString(sourceID)
	sc.Synopsis = nullString(synopsis)
	sc.Prose = nullString(prose)
	sc.CreatedAt = parseTime(created)
	sc.UpdatedAt = parseTime(updated)
	return &sc, nil
}

func scanBeat(row scanner) (*types.Beat, error) {
	var b types.Beat
	var sourceID, prose sql.NullString
	var created, updated string
	if err := row.Scan(&b.ID, &b.ProjectID, &b.SceneID, &sourceID, &b.Content, &prose,
		&b.Position, &b.Archived, &created, &updated); err != nil {
		return nil, err
	}
	b.SourceID = nullString(sourceID)
	b.Prose = nullString(prose)
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return &b, nil
}

func scanReference(row scanner) (*types.Reference, error) {
	var r types.Reference
	var sourceID, description sql.NullString
	var refType, attrs, basis, confidence, created, updated string
	if err := row.Scan(&r.ID, &r.ProjectID, &sourceID, &refType, &r.Name, &description, &attrs,
		&basis, &confidence, &r.Archived, &created, &updated); err != nil {
		return nil, err
	}
	r.SourceID = nullString(sourceID)
	r.Description = nullString(description)
	r.Type = types.RefType(refType)
	r.Classification = types.Basis(basis)
	r.Confidence = types.Confidence(confidence)
	if attrs != "" && attrs != "{}" {
		if err := json.Unmarshal([]byte(attrs), &r.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", r.ID, err)
		}
	}
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// collect drains rows through scan.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (t *queries) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get project %s", id)
	}
	return p, nil
}

func (t *queries) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, wrapDBError("list projects", err)
	}
	out, err := collect(rows, scanProject)
	return out, wrapDBError("list projects", err)
}

func (t *queries) GetChapters(ctx context.Context, projectID string) ([]*types.Chapter, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+chapterColumns+` FROM chapters ch
		WHERE ch.project_id = ? ORDER BY ch.position, ch.created_at`, projectID)
	if err != nil {
		return nil, wrapDBError("get chapters", err)
	}
	out, err := collect(rows, scanChapter)
	return out, wrapDBError("get chapters", err)
}

func (t *queries) GetScenes(ctx context.Context, projectID string) ([]*types.Scene, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+sceneColumns+` FROM scenes sc
		JOIN chapters ch ON ch.id = sc.chapter_id
		WHERE sc.project_id = ? ORDER BY ch.position, sc.position, sc.created_at`, projectID)
	if err != nil {
		return nil, wrapDBError("get scenes", err)
	}
	out, err := collect(rows, scanScene)
	return out, wrapDBError("get scenes", err)
}

func (t *queries) GetBeats(ctx context.Context, projectID string) ([]*types.Beat, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+beatColumns+` FROM beats b
		JOIN scenes sc ON sc.id = b.scene_id
		JOIN chapters ch ON ch.id = sc.chapter_id
		WHERE b.project_id = ? ORDER BY ch.position, sc.position, b.position, b.created_at`, projectID)
	if err != nil {
		return nil, wrapDBError("get beats", err)
	}
	out, err := collect(rows, scanBeat)
	return out, wrapDBError("get beats", err)
}

func (t *queries) GetReferences(ctx context.Context, projectID string) ([]*types.Reference, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT `+refColumns+` FROM refs
		WHERE project_id = ? ORDER BY type, name, id`, projectID)
	if err != nil {
		return nil, wrapDBError("get references", err)
	}
	out, err := collect(rows, scanReference)
	return out, wrapDBError("get references", err)
}

func (t *queries) GetSceneReferences(ctx context.Context, projectID string) ([]*types.SceneReference, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT l.scene_id, l.reference_id FROM scene_refs l
		JOIN scenes sc ON sc.id = l.scene_id
		WHERE sc.project_id = ? ORDER BY l.scene_id, l.reference_id`, projectID)
	if err != nil {
		return nil, wrapDBError("get scene references", err)
	}
	out, err := collect(rows, func(row scanner) (*types.SceneReference, error) {
		var l types.SceneReference
		err := row.Scan(&l.SceneID, &l.ReferenceID)
		return &l, err
	})
	return out, wrapDBError("get scene references", err)
}

func (t *queries) GetChapter(ctx context.Context, id string) (*types.Chapter, error) {
	ch, err := scanChapter(t.q.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters ch WHERE ch.id = ?`, id))
	if err != nil {
		return nil, wrapDBErrorf(err, "get chapter %s", id)
	}
	return ch, nil
}

func (t *queries) GetScene(ctx context.Context, id string) (*types.Scene, error) {
	sc, err := scanScene(t.q.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes sc WHERE sc.id = ?`, id))
	if err != nil {
		return nil, wrapDBErrorf(err, "get scene %s", id)
	}
	return sc, nil
}

func (t *queries) GetBeat(ctx context.Context, id string) (*types.Beat, error) {
	b, err := scanBeat(t.q.QueryRowContext(ctx, `SELECT `+beatColumns+` FROM beats b WHERE b.id = ?`, id))
	if err != nil {
		return nil, wrapDBErrorf(err, "get beat %s", id)
	}
	return b, nil
}

func (t *queries) GetReference(ctx context.Context, id string) (*types.Reference, error) {
	r, err := scanReference(t.q.QueryRowContext(ctx, `SELECT `+refColumns+` FROM refs WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBErrorf(err, "get reference %s", id)
	}
	return r, nil
}
