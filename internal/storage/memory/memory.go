// Package memory implements storage.Gateway in process memory. It backs unit
// tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plotsync/plotsync/internal/idgen"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/types"
)

// MemoryStorage is an in-memory gateway. Transactions run against a copy of
// the state that replaces the original on commit.
type MemoryStorage struct {
	mu sync.Mutex
	st *state
}

var _ storage.Gateway = (*MemoryStorage)(nil)

// New returns an empty in-memory gateway.
func New() *MemoryStorage {
	return &MemoryStorage{st: newState()}
}

type state struct {
	projects map[string]*types.Project
	chapters map[string]*types.Chapter
	scenes   map[string]*types.Scene
	beats    map[string]*types.Beat
	refs     map[string]*types.Reference
	links    map[types.SceneReference]bool
}

func newState() *state {
	return &state{
		projects: make(map[string]*types.Project),
		chapters: make(map[string]*types.Chapter),
		scenes:   make(map[string]*types.Scene),
		beats:    make(map[string]*types.Beat),
		refs:     make(map[string]*types.Reference),
		links:    make(map[types.SceneReference]bool),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.projects {
		c.projects[k] = copyProject(v)
	}
	for k, v := range s.chapters {
		c.chapters[k] = copyChapter(v)
	}
	for k, v := range s.scenes {
		c.scenes[k] = copyScene(v)
	}
	for k, v := range s.beats {
		c.beats[k] = copyBeat(v)
	}
	for k, v := range s.refs {
		c.refs[k] = copyReference(v)
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	return c
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyProject(p *types.Project) *types.Project {
	c := *p
	c.SourcePath = copyStr(p.SourcePath)
	return &c
}

func copyChapter(ch *types.Chapter) *types.Chapter {
	c := *ch
	c.SourceID = copyStr(ch.SourceID)
	return &c
}

func copyScene(sc *types.Scene) *types.Scene {
	c := *sc
	c.SourceID = copyStr(sc.SourceID)
	c.Synopsis = copyStr(sc.Synopsis)
	c.Prose = copyStr(sc.Prose)
	return &c
}

func copyBeat(b *types.Beat) *types.Beat {
	c := *b
	c.SourceID = copyStr(b.SourceID)
	c.Prose = copyStr(b.Prose)
	return &c
}

func copyReference(r *types.Reference) *types.Reference {
	c := *r
	c.SourceID = copyStr(r.SourceID)
	c.Description = copyStr(r.Description)
	if r.Attributes != nil {
		c.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// RunInTransaction executes fn against a private copy of the state and
// publishes it only if fn succeeds.
func (m *MemoryStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.st.clone()
	if err := fn(&view{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error { return nil }

// view implements storage.Transaction over one state.
type view struct {
	st *state
}

var _ storage.Transaction = (*view)(nil)

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
}

func (v *view) GetProject(ctx context.Context, id string) (*types.Project, error) {
	p, ok := v.st.projects[id]
	if !ok {
		return nil, notFound("project", id)
	}
	return copyProject(p), nil
}

func (v *view) ListProjects(ctx context.Context) ([]*types.Project, error) {
	out := make([]*types.Project, 0, len(v.st.projects))
	for _, p := range v.st.projects {
		out = append(out, copyProject(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) GetChapters(ctx context.Context, projectID string) ([]*types.Chapter, error) {
	var out []*types.Chapter
	for _, ch := range v.st.chapters {
		if ch.ProjectID == projectID {
			out = append(out, copyChapter(ch))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (v *view) chapterPos(id string) int {
	if ch, ok := v.st.chapters[id]; ok {
		return ch.Position
	}
	return -1
}

func (v *view) GetScenes(ctx context.Context, projectID string) ([]*types.Scene, error) {
	var out []*types.Scene
	for _, sc := range v.st.scenes {
		if sc.ProjectID == projectID {
			out = append(out, copyScene(sc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := v.chapterPos(out[i].ChapterID), v.chapterPos(out[j].ChapterID)
		if ci != cj {
			return ci < cj
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (v *view) GetBeats(ctx context.Context, projectID string) ([]*types.Beat, error) {
	var out []*types.Beat
	for _, b := range v.st.beats {
		if b.ProjectID == projectID {
			out = append(out, copyBeat(b))
		}
	}
	key := func(b *types.Beat) (int, int) {
		sc, ok := v.st.scenes[b.SceneID]
		if !ok {
			return -1, -1
		}
		return v.chapterPos(sc.ChapterID), sc.Position
	}
	sort.Slice(out, func(i, j int) bool {
		ci, si := key(out[i])
		cj, sj := key(out[j])
		if ci != cj {
			return ci < cj
		}
		if si != sj {
			return si < sj
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (v *view) GetReferences(ctx context.Context, projectID string) ([]*types.Reference, error) {
	var out []*types.Reference
	for _, r := range v.st.refs {
		if r.ProjectID == projectID {
			out = append(out, copyReference(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) GetSceneReferences(ctx context.Context, projectID string) ([]*types.SceneReference, error) {
	var out []*types.SceneReference
	for l := range v.st.links {
		if sc, ok := v.st.scenes[l.SceneID]; ok && sc.ProjectID == projectID {
			link := l
			out = append(out, &link)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SceneID != out[j].SceneID {
			return out[i].SceneID < out[j].SceneID
		}
		return out[i].ReferenceID < out[j].ReferenceID
	})
	return out, nil
}

func (v *view) GetChapter(ctx context.Context, id string) (*types.Chapter, error) {
	ch, ok := v.st.chapters[id]
	if !ok {
		return nil, notFound("chapter", id)
	}
	return copyChapter(ch), nil
}

func (v *view) GetScene(ctx context.Context, id string) (*types.Scene, error) {
	sc, ok := v.st.scenes[id]
	if !ok {
		return nil, notFound("scene", id)
	}
	return copyScene(sc), nil
}

func (v *view) GetBeat(ctx context.Context, id string) (*types.Beat, error) {
	b, ok := v.st.beats[id]
	if !ok {
		return nil, notFound("beat", id)
	}
	return copyBeat(b), nil
}

func (v *view) GetReference(ctx context.Context, id string) (*types.Reference, error) {
	r, ok := v.st.refs[id]
	if !ok {
		return nil, notFound("reference", id)
	}
	return copyReference(r), nil
}

func (v *view) CreateProject(ctx context.Context, p *types.Project) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = idgen.NewID()
	}
	if _, exists := v.st.projects[p.ID]; exists {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	v.st.projects[p.ID] = copyProject(p)
	return nil
}

func (v *view) UpdateProjectSource(ctx context.Context, id, sourcePath string, format types.Format) error {
	p, ok := v.st.projects[id]
	if !ok {
		return notFound("project", id)
	}
	p.SourcePath = types.StrPtr(sourcePath)
	p.SourceFormat = format
	p.UpdatedAt = time.Now().UTC()
	return nil
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

// place clamps position and shifts siblings at or after it. siblings must
// return the position pointers of every item sharing the parent.
func place(positions []*int, position int) int {
	if position < 0 || position > len(positions) {
		return len(positions)
	}
	for _, p := range positions {
		if *p >= position {
			*p++
		}
	}
	return position
}

func dupSource(existing, candidate *string) bool {
	return existing != nil && candidate != nil && *existing == *candidate
}

func (v *view) InsertChapter(ctx context.Context, ch *types.Chapter, position int) (string, error) {
	if _, ok := v.st.projects[ch.ProjectID]; !ok {
		return "", notFound("project", ch.ProjectID)
	}
	var siblings []*int
	for _, other := range v.st.chapters {
		if other.ProjectID != ch.ProjectID {
			continue
		}
		if dupSource(other.SourceID, ch.SourceID) {
			return "", fmt.Errorf("insert chapter: duplicate source_id %s", *ch.SourceID)
		}
		siblings = append(siblings, &other.Position)
	}
	ch.Position = place(siblings, position)
	stamp(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt)
	v.st.chapters[ch.ID] = copyChapter(ch)
	return ch.ID, nil
}

func (v *view) InsertScene(ctx context.Context, sc *types.Scene, position int) (string, error) {
	parent, ok := v.st.chapters[sc.ChapterID]
	if !ok {
		return "", notFound("chapter", sc.ChapterID)
	}
	sc.ProjectID = parent.ProjectID
	var siblings []*int
	for _, other := range v.st.scenes {
		if other.ProjectID == sc.ProjectID && dupSource(other.SourceID, sc.SourceID) {
			return "", fmt.Errorf("insert scene: duplicate source_id %s", *sc.SourceID)
		}
		if other.ChapterID == sc.ChapterID {
			siblings = append(siblings, &other.Position)
		}
	}
	sc.Position = place(siblings, position)
	stamp(&sc.ID, &sc.CreatedAt, &sc.UpdatedAt)
	v.st.scenes[sc.ID] = copyScene(sc)
	return sc.ID, nil
}

func (v *view) InsertBeat(ctx context.Context, b *types.Beat, position int) (string, error) {
	parent, ok := v.st.scenes[b.SceneID]
	if !ok {
		return "", notFound("scene", b.SceneID)
	}
	b.ProjectID = parent.ProjectID
	var siblings []*int
	for _, other := range v.st.beats {
		if other.ProjectID == b.ProjectID && dupSource(other.SourceID, b.SourceID) {
			return "", fmt.Errorf("insert beat: duplicate source_id %s", *b.SourceID)
		}
		if other.SceneID == b.SceneID {
			siblings = append(siblings, &other.Position)
		}
	}
	b.Position = place(siblings, position)
	stamp(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	v.st.beats[b.ID] = copyBeat(b)
	return b.ID, nil
}

func (v *view) InsertReference(ctx context.Context, r *types.Reference) (string, error) {
	if _, ok := v.st.projects[r.ProjectID]; !ok {
		return "", notFound("project", r.ProjectID)
	}
	for _, other := range v.st.refs {
		if other.ProjectID == r.ProjectID && dupSource(other.SourceID, r.SourceID) {
			return "", fmt.Errorf("insert reference: duplicate source_id %s", *r.SourceID)
		}
	}
	stamp(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	v.st.refs[r.ID] = copyReference(r)
	return r.ID, nil
}

func (v *view) LinkSceneReference(ctx context.Context, sceneID, referenceID string) error {
	if _, ok := v.st.scenes[sceneID]; !ok {
		return notFound("scene", sceneID)
	}
	if _, ok := v.st.refs[referenceID]; !ok {
		return notFound("reference", referenceID)
	}
	v.st.links[types.SceneReference{SceneID: sceneID, ReferenceID: referenceID}] = true
	return nil
}

func (v *view) UpdateField(ctx context.Context, kind types.ItemKind, id, field, value string) error {
	if err := storage.ValidateField(kind, field); err != nil {
		return err
	}
	now := time.Now().UTC()
	switch kind {
	case types.KindChapter:
		ch, ok := v.st.chapters[id]
		if !ok {
			return notFound("chapter", id)
		}
		ch.Title, ch.UpdatedAt = value, now
	case types.KindScene:
		sc, ok := v.st.scenes[id]
		if !ok {
			return notFound("scene", id)
		}
		if field == types.FieldTitle {
			sc.Title = value
		} else {
			sc.Synopsis = types.StrPtr(value)
		}
		sc.UpdatedAt = now
	case types.KindBeat:
		b, ok := v.st.beats[id]
		if !ok {
			return notFound("beat", id)
		}
		b.Content, b.UpdatedAt = value, now
	case types.KindReference:
		r, ok := v.st.refs[id]
		if !ok {
			return notFound("reference", id)
		}
		if field == "name" {
			r.Name = value
		} else {
			r.Description = types.StrPtr(value)
		}
		r.UpdatedAt = now
	}
	return nil
}

func (v *view) UpdateProse(ctx context.Context, kind types.ItemKind, id string, prose *string) error {
	switch kind {
	case types.KindScene:
		sc, ok := v.st.scenes[id]
		if !ok {
			return notFound("scene", id)
		}
		sc.Prose, sc.UpdatedAt = copyStr(prose), time.Now().UTC()
	case types.KindBeat:
		b, ok := v.st.beats[id]
		if !ok {
			return notFound("beat", id)
		}
		b.Prose, b.UpdatedAt = copyStr(prose), time.Now().UTC()
	default:
		return fmt.Errorf("%w: %s has no prose", storage.ErrInvalidField, kind)
	}
	return nil
}

func (v *view) SetLocked(ctx context.Context, kind types.ItemKind, id string, locked bool) error {
	switch kind {
	case types.KindChapter:
		ch, ok := v.st.chapters[id]
		if !ok {
			return notFound("chapter", id)
		}
		ch.Locked = locked
	case types.KindScene:
		sc, ok := v.st.scenes[id]
		if !ok {
			return notFound("scene", id)
		}
		sc.Locked = locked
	default:
		return fmt.Errorf("%w: %s cannot be locked", storage.ErrInvalidField, kind)
	}
	return nil
}

func (v *view) SetArchived(ctx context.Context, kind types.ItemKind, id string, archived bool) error {
	switch kind {
	case types.KindChapter:
		ch, ok := v.st.chapters[id]
		if !ok {
			return notFound("chapter", id)
		}
		ch.Archived = archived
	case types.KindScene:
		sc, ok := v.st.scenes[id]
		if !ok {
			return notFound("scene", id)
		}
		sc.Archived = archived
	case types.KindBeat:
		b, ok := v.st.beats[id]
		if !ok {
			return notFound("beat", id)
		}
		b.Archived = archived
	case types.KindReference:
		r, ok := v.st.refs[id]
		if !ok {
			return notFound("reference", id)
		}
		r.Archived = archived
	default:
		return fmt.Errorf("%w: unknown kind %s", storage.ErrInvalidField, kind)
	}
	return nil
}

func (v *view) UpdateReferenceType(ctx context.Context, id string, refType types.RefType, basis types.Basis) error {
	r, ok := v.st.refs[id]
	if !ok {
		return notFound("reference", id)
	}
	r.Type, r.Classification, r.Confidence = refType, basis, types.ConfidenceHigh
	r.UpdatedAt = time.Now().UTC()
	return nil
}
