package types

// ParsedProject is the canonical tree produced by a reader. It lives only for
// the duration of one import or reimport call.
type ParsedProject struct {
	Title      string             `json:"title"`
	Format     Format             `json:"format"`
	SourcePath string             `json:"source_path"`
	Chapters   []*ParsedChapter   `json:"chapters"`
	References []*ParsedReference `json:"references,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"` // non-fatal reader/builder notes
}

// ParsedChapter is a chapter in the canonical tree
type ParsedChapter struct {
	SourceID string         `json:"source_id,omitempty"`
	Title    string         `json:"title"`
	Position int            `json:"position"`
	IsPart   bool           `json:"is_part,omitempty"`
	Scenes   []*ParsedScene `json:"scenes"`
}

// ParsedScene is a scene in the canonical tree
type ParsedScene struct {
	SourceID  string        `json:"source_id,omitempty"`
	Title     string        `json:"title"`
	Synopsis  *string       `json:"synopsis,omitempty"`
	Prose     *string       `json:"-"` // seeds new scenes only
	Status    string        `json:"status,omitempty"`
	SceneType string        `json:"scene_type,omitempty"`
	Position  int           `json:"position"`
	Beats     []*ParsedBeat `json:"beats"`
	Links     []ParsedLink  `json:"links,omitempty"`
}

// ParsedBeat is a beat in the canonical tree
type ParsedBeat struct {
	SourceID string `json:"source_id,omitempty"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

// ParsedLink names a reference mentioned by a scene. SourceID is set when the
// reader knows the exact reference record.
type ParsedLink struct {
	Type     RefType `json:"type"`
	Name     string  `json:"name"`
	SourceID string  `json:"source_id,omitempty"`
}

// ClassificationHint carries the raw signals the classifier works from.
type ClassificationHint struct {
	Declared string   `json:"declared,omitempty"` // type/category as written in the source
	Folder   string   `json:"folder,omitempty"`   // containing folder path, slash separated
	Tags     []string `json:"tags,omitempty"`
}

// ParsedReference is a named entity in the canonical tree
type ParsedReference struct {
	SourceID       string             `json:"source_id,omitempty"`
	Type           RefType            `json:"type"`
	Name           string             `json:"name"`
	Description    *string            `json:"description,omitempty"`
	Attributes     map[string]string  `json:"attributes,omitempty"`
	Hint           ClassificationHint `json:"-"`
	Classification Basis              `json:"classification,omitempty"`
	Confidence     Confidence         `json:"confidence,omitempty"`
}

// SceneCount returns the number of scenes across all chapters.
func (p *ParsedProject) SceneCount() int {
	n := 0
	for _, ch := range p.Chapters {
		n += len(ch.Scenes)
	}
	return n
}

// BeatCount returns the number of beats across all scenes.
func (p *ParsedProject) BeatCount() int {
	n := 0
	for _, ch := range p.Chapters {
		for _, sc := range ch.Scenes {
			n += len(sc.Beats)
		}
	}
	return n
}

// ReferencesByType groups references by type, preserving order.
func (p *ParsedProject) ReferencesByType() map[RefType][]*ParsedReference {
	out := make(map[RefType][]*ParsedReference)
	for _, r := range p.References {
		out[r.Type] = append(out[r.Type], r)
	}
	return out
}

// Clone returns a deep copy of the tree.
func (p *ParsedProject) Clone() *ParsedProject {
	if p == nil {
		return nil
	}
	out := *p
	out.Warnings = append([]string(nil), p.Warnings...)
	out.Chapters = make([]*ParsedChapter, len(p.Chapters))
	for i, ch := range p.Chapters {
		c := *ch
		c.Scenes = make([]*ParsedScene, len(ch.Scenes))
		for j, sc := range ch.Scenes {
			s := *sc
			s.Synopsis = clonePtr(sc.Synopsis)
			s.Prose = clonePtr(sc.Prose)
			s.Links = append([]ParsedLink(nil), sc.Links...)
			s.Beats = make([]*ParsedBeat, len(sc.Beats))
			for k, b := range sc.Beats {
				bb := *b
				s.Beats[k] = &bb
			}
			c.Scenes[j] = &s
		}
		out.Chapters[i] = &c
	}
	out.References = make([]*ParsedReference, len(p.References))
	for i, r := range p.References {
		rr := *r
		rr.Description = clonePtr(r.Description)
		rr.Hint.Tags = append([]string(nil), r.Hint.Tags...)
		if r.Attributes != nil {
			rr.Attributes = make(map[string]string, len(r.Attributes))
			for k, v := range r.Attributes {
				rr.Attributes[k] = v
			}
		}
		out.References[i] = &rr
	}
	return &out
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
