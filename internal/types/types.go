// Package types defines core data structures for plotsync projects.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Format identifies the source format a project was imported from
type Format string

// Source formats
const (
	FormatToolExport Format = "toolexport" // outline tool JSON export (Plottr-style)
	FormatMarkdown   Format = "markdown"   // heading-based plain text
	FormatProjectXML Format = "projectxml" // yWriter7 project file
	FormatVault      Format = "vault"      // Obsidian Longform note vault
)

// IsValid checks if the format value is valid
func (f Format) IsValid() bool {
	switch f {
	case FormatToolExport, FormatMarkdown, FormatProjectXML, FormatVault:
		return true
	}
	return false
}

// ParseFormat parses a format name, accepting a few common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "toolexport", "plottr", "json":
		return FormatToolExport, nil
	case "markdown", "md", "text", "headings":
		return FormatMarkdown, nil
	case "projectxml", "ywriter", "yw7", "xml":
		return FormatProjectXML, nil
	case "vault", "obsidian", "longform":
		return FormatVault, nil
	}
	return "", fmt.Errorf("unknown format %q (valid: toolexport, markdown, projectxml, vault)", s)
}

// Project is a persisted story project
type Project struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	SourcePath   *string   `json:"source_path,omitempty"` // nil when the project was not imported
	SourceFormat Format    `json:"source_format,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Chapter is a top-level grouping of scenes
type Chapter struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	SourceID  *string   `json:"source_id,omitempty"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	IsPart    bool      `json:"is_part,omitempty"` // starts a new part/section
	Locked    bool      `json:"locked,omitempty"`
	Archived  bool      `json:"archived,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scene belongs to a chapter
type Scene struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	ChapterID string    `json:"chapter_id"`
	SourceID  *string   `json:"source_id,omitempty"`
	Title     string    `json:"title"`
	Synopsis  *string   `json:"synopsis,omitempty"`
	Prose     *string   `json:"prose,omitempty"` // authored in-app, never synced
	Status    string    `json:"status,omitempty"`
	SceneType string    `json:"scene_type,omitempty"`
	Position  int       `json:"position"`
	Locked    bool      `json:"locked,omitempty"`
	Archived  bool      `json:"archived,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Beat is a single prompt or summary line inside a scene
type Beat struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	SceneID   string    `json:"scene_id"`
	SourceID  *string   `json:"source_id,omitempty"`
	Content   string    `json:"content"`
	Prose     *string   `json:"prose,omitempty"` // authored in-app, never synced
	Position  int       `json:"position"`
	Archived  bool      `json:"archived,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefType is the kind of named entity a reference describes
type RefType string

// Reference types
const (
	RefCharacter    RefType = "character"
	RefLocation     RefType = "location"
	RefItem         RefType = "item"
	RefObjective    RefType = "objective"
	RefOrganization RefType = "organization"
)

// RefTypes lists every reference type in display order.
var RefTypes = []RefType{RefCharacter, RefLocation, RefItem, RefObjective, RefOrganization}

// IsValid checks if the reference type value is valid
func (r RefType) IsValid() bool {
	switch r {
	case RefCharacter, RefLocation, RefItem, RefObjective, RefOrganization:
		return true
	}
	return false
}

// Basis records how a reference type was decided
type Basis string

// Classification bases, strongest first
const (
	BasisDeclared Basis = "declared"
	BasisFolder   Basis = "folder"
	BasisTag      Basis = "tag"
	BasisDefault  Basis = "default"
	BasisManual   Basis = "manual"
)

// Confidence is an advisory signal attached to a classification
type Confidence string

// Confidence levels
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// NotesKey is the conventional attribute holding free-form notes.
const NotesKey = "notes"

// Reference is a typed named entity (character, location, ...)
type Reference struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id"`
	SourceID       *string           `json:"source_id,omitempty"`
	Type           RefType           `json:"type"`
	Name           string            `json:"name"`
	Description    *string           `json:"description,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Classification Basis             `json:"classification,omitempty"`
	Confidence     Confidence        `json:"confidence,omitempty"`
	Archived       bool              `json:"archived,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SceneReference links a scene to a reference it mentions
type SceneReference struct {
	SceneID     string `json:"scene_id"`
	ReferenceID string `json:"reference_id"`
}

// ItemKind names a persisted entity level
type ItemKind string

// Item kinds
const (
	KindChapter   ItemKind = "chapter"
	KindScene     ItemKind = "scene"
	KindBeat      ItemKind = "beat"
	KindReference ItemKind = "reference"
)

// IsValid checks if the kind value is valid
func (k ItemKind) IsValid() bool {
	switch k {
	case KindChapter, KindScene, KindBeat, KindReference:
		return true
	}
	return false
}

// Syncable fields. Nothing else is ever compared or written by sync.
const (
	FieldTitle    = "title"
	FieldSynopsis = "synopsis"
	FieldContent  = "content"
)

// StrPtr returns a pointer to s, or nil if s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
