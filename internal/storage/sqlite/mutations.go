package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

func (t *queries) CreateProject(ctx context.Context, p *types.Project) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = idgen.NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := t.q.ExecContext(ctx, `INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, nullable(p.SourcePath), string(p.SourceFormat), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return wrapDBErrorf(err, "create project %s", p.ID)
}

func (t *queries) UpdateProjectSource(ctx context.Context, id, sourcePath string, format types.Format) error {
	var path any
	if sourcePath != "" {
		path = sourcePath
	}
	res, err := t.q.ExecContext(ctx, `UPDATE projects SET source_path = ?, source_format = ?, updated_at = ? WHERE id = ?`,
		path, string(format), formatTime(time.Now()), id)
	if err != nil {
		return wrapDBErrorf(err, "update project %s", id)
	}
	return requireAffected(res, "update project "+id)
}

// placeAt clamps position to [0, count] and opens a gap there by shifting
// later siblings. parentCol/parentID scope the siblings.
func (t *queries) placeAt(ctx context.Context, table, parentCol, parentID string, position int) (int, error) {
	var count int
	if err := t.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, table, parentCol), parentID,
	).Scan(&count); err != nil {
		return 0, wrapDBErrorf(err, "count %s", table)
	}
	if position < 0 || position > count {
		return count, nil
	}
	if _, err := t.q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET position = position + 1 WHERE %s = ? AND position >= ?`, table, parentCol),
		parentID, position,
	); err != nil {
		return 0, wrapDBErrorf(err, "shift %s", table)
	}
	return position, nil
}

func stamp(id *string, created, updated *time.Time) {
	now := time.Now().UTC()
	if *id == "" {
		*id = idgen.NewID()
	}
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func (t *queries) InsertChapter(ctx context.Context, ch *types.Chapter, position int) (string, error) {
	pos, err := t.placeAt(ctx, "chapters", "project_id", ch.ProjectID, position)
	if err != nil {
		return "", err
	}
	stamp(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt)
	ch.Position = pos
	_, err = t.q.ExecContext(ctx, `INSERT INTO chapters
		(id, project_id, source_id, title, position, is_part, locked, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.ProjectID, nullable(ch.SourceID), ch.Title, ch.Position, ch.IsPart, ch.Locked, ch.Archived,
		formatTime(ch.CreatedAt), formatTime(ch.UpdatedAt))
	if err != nil {
		return "", wrapDBErrorf(err, "insert chapter %q", ch.Title)
	}
	return ch.ID, nil
}

func (t *queries) InsertScene(ctx context.Context, sc *types.Scene, position int) (string, error) {
	if sc.ProjectID == "" {
		if err := t.q.QueryRowContext(ctx, `SELECT project_id FROM chapters WHERE id = ?`, sc.ChapterID).Scan(&sc.ProjectID); err != nil {
			return "", wrapDBErrorf(err, "chapter %s", sc.ChapterID)
		}
	}
	pos, err := t.placeAt(ctx, "scenes", "chapter_id", sc.ChapterID, position)
	if err != nil {
		return "", err
	}
	stamp(&sc.ID, &sc.CreatedAt, &sc.UpdatedAt)
	sc.Position = pos
	_, err = t.q.ExecContext(ctx, `INSERT INTO scenes
		(id, project_id, chapter_id, source_id, title, synopsis, prose, status, scene_type, position, locked, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.ProjectID, sc.ChapterID, nullable(sc.SourceID), sc.Title, nullable(sc.Synopsis), nullable(sc.Prose),
		sc.Status, sc.SceneType, sc.Position, sc.Locked, sc.Archived, formatTime(sc.CreatedAt), formatTime(sc.UpdatedAt))
	if err != nil {
		return "", wrapDBErrorf(err, "insert scene %q", sc.Title)
	}
	return sc.ID, nil
}

func (t *queries) InsertBeat(ctx context.Context, b *types.Beat, position int) (string, error) {
	if b.ProjectID == "" {
		if err := t.q.QueryRowContext(ctx, `SELECT project_id FROM scenes WHERE id = ?`, b.SceneID).Scan(&b.ProjectID); err != nil {
			return "", wrapDBErrorf(err, "scene %s", b.SceneID)
		}
	}
	pos, err := t.placeAt(ctx, "beats", "scene_id", b.SceneID, position)
	if err != nil {
		return "", err
	}
	stamp(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	b.Position = pos
	_, err = t.q.ExecContext(ctx, `INSERT INTO beats
		(id, project_id, scene_id, source_id, content, prose, position, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ProjectID, b.SceneID, nullable(b.SourceID), b.Content, nullable(b.Prose), b.Position, b.Archived,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return "", wrapDBError("insert beat", err)
	}
	return b.ID, nil
}

func (t *queries) InsertReference(ctx context.Context, r *types.Reference) (string, error) {
	stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	attrs := "{}"
	if len(r.Attributes) > 0 {
		data, err := json.Marshal(r.Attributes)
		if err != nil {
			return "", fmt.Errorf("encode attributes: %w", err)
		}
		attrs = string(data)
	}
	_, err := t.q.ExecContext(ctx, `INSERT INTO refs (`+refColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, nullable(r.SourceID), string(r.Type), r.Name, nullable(r.Description), attrs,
		string(r.Classification), string(r.Confidence), r.Archived, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return "", wrapDBErrorf(err, "insert reference %q", r.Name)
	}
	return r.ID, nil
}

func (t *queries) LinkSceneReference(ctx context.Context, sceneID, referenceID string) error {
	_, err := t.q.ExecContext(ctx, `INSERT OR IGNORE INTO scene_refs (scene_id, reference_id) VALUES (?, ?)`,
		sceneID, referenceID)
	return wrapDBErrorf(err, "link scene %s to %s", sceneID, referenceID)
}

var kindTables = map[types.ItemKind]string{
	types.KindChapter:   "chapters",
	types.KindScene:     "scenes",
	types.KindBeat:      "beats",
	types.KindReference: "refs",
}

func (t *queries) UpdateField(ctx context.Context, kind types.ItemKind, id, field, value string) error {
	if err := storage.ValidateField(kind, field); err != nil {
		return err
	}
	var v any = value
	if value == "" && (field == types.FieldSynopsis || field == "description") {
		v = nil
	}
	// table and column come from fixed whitelists above.
	query := fmt.Sprintf(`UPDATE %s SET %s = ?, updated_at = ? WHERE id = ?`, kindTables[kind], field)
	res, err := t.q.ExecContext(ctx, query, v, formatTime(time.Now()), id)
	if err != nil {
		return wrapDBErrorf(err, "update %s %s.%s", kind, id, field)
	}
	return requireAffected(res, fmt.Sprintf("update %s %s", kind, id))
}

func (t *queries) UpdateProse(ctx context.Context, kind types.ItemKind, id string, prose *string) error {
	if kind != types.KindScene && kind != types.KindBeat {
		return fmt.Errorf("%w: %s has no prose", storage.ErrInvalidField, kind)
	}
	res, err := t.q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET prose = ?, updated_at = ? WHERE id = ?`, kindTables[kind]),
		nullable(prose), formatTime(time.Now()), id)
	if err != nil {
		return wrapDBErrorf(err, "update prose %s", id)
	}
	return requireAffected(res, "update prose "+id)
}

func (t *queries) SetLocked(ctx context.Context, kind types.ItemKind, id string, locked bool) error {
	if kind != types.KindChapter && kind != types.KindScene {
		return fmt.Errorf("%w: %s cannot be locked", storage.ErrInvalidField, kind)
	}
	res, err := t.q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET locked = ?, updated_at = ? WHERE id = ?`, kindTables[kind]),
		locked, formatTime(time.Now()), id)
	if err != nil {
		return wrapDBErrorf(err, "lock %s %s", kind, id)
	}
	return requireAffected(res, fmt.Sprintf("lock %s %s", kind, id))
}

func (t *queries) SetArchived(ctx context.Context, kind types.ItemKind, id string, archived bool) error {
	table, ok := kindTables[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %s", storage.ErrInvalidField, kind)
	}
	res, err := t.q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET archived = ?, updated_at = ? WHERE id = ?`, table),
		archived, formatTime(time.Now()), id)
	if err != nil {
		return wrapDBErrorf(err, "archive %s %s", kind, id)
	}
	return requireAffected(res, fmt.Sprintf("archive %s %s", kind, id))
}

func (t *queries) UpdateReferenceType(ctx context.Context, id string, refType types.RefType, basis types.Basis) error {
	res, err := t.q.ExecContext(ctx, `UPDATE refs SET type = ?, classification = ?, confidence = ?, updated_at = ? WHERE id = ?`,
		string(refType), string(basis), string(types.ConfidenceHigh), formatTime(time.Now()), id)
	if err != nil {
		return wrapDBErrorf(err, "retype reference %s", id)
	}
	return requireAffected(res, "retype reference "+id)
}
