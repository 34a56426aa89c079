package types

import (
	"fmt"
	"time"
)

// SyncAddition is an item present in the fresh parse with no persisted
// counterpart.
type SyncAddition struct {
	ID          string   `json:"id"`
	ItemType    ItemKind `json:"item_type"`
	SourceID    string   `json:"source_id"`
	Title       string   `json:"title"`
	ParentTitle string   `json:"parent_title,omitempty"`
	Parent      string   `json:"parent,omitempty"`    // parent source_id
	ParentID    string   `json:"parent_id,omitempty"` // persisted parent id; empty when the parent is new
	Position    int      `json:"position"`
	RefType     RefType  `json:"ref_type,omitempty"` // references only
}

// SyncChange is a field-level difference on an existing item.
type SyncChange struct {
	ID           string   `json:"id"`
	ItemID       string   `json:"item_id"`
	ItemType     ItemKind `json:"item_type"`
	Field        string   `json:"field"`
	ItemTitle    string   `json:"item_title"`
	CurrentValue string   `json:"current_value"`
	NewValue     string   `json:"new_value"`
}

// SyncPreview is the advisory result of diffing a fresh parse against the
// persisted project.
type SyncPreview struct {
	ProjectID   string          `json:"project_id"`
	Additions   []*SyncAddition `json:"additions"`
	Changes     []*SyncChange   `json:"changes"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// IsEmpty reports whether the preview proposes nothing.
func (p *SyncPreview) IsEmpty() bool {
	return p == nil || (len(p.Additions) == 0 && len(p.Changes) == 0)
}

// AdditionID builds the deterministic id of an addition.
func AdditionID(kind ItemKind, sourceID string) string {
	return fmt.Sprintf("add:%s:%s", kind, sourceID)
}

// ChangeID builds the deterministic id of a change.
func ChangeID(kind ItemKind, itemID, field string) string {
	return fmt.Sprintf("chg:%s:%s:%s", kind, itemID, field)
}

// ReimportSummary reports what an apply or reimport did.
type ReimportSummary struct {
	ChaptersAdded   int `json:"chapters_added"`
	ScenesAdded     int `json:"scenes_added"`
	BeatsAdded      int `json:"beats_added"`
	ReferencesAdded int `json:"references_added"`

	ChaptersUpdated int `json:"chapters_updated"`
	ScenesUpdated   int `json:"scenes_updated"`
	BeatsUpdated    int `json:"beats_updated"`

	ProseUntouched int `json:"prose_untouched"` // authored prose fields left as they were

	Skipped []PartialApplyWarning `json:"skipped,omitempty"`
}

// TotalAdded returns the number of inserted items at every level.
func (s *ReimportSummary) TotalAdded() int {
	return s.ChaptersAdded + s.ScenesAdded + s.BeatsAdded + s.ReferencesAdded
}

// TotalUpdated returns the number of field updates at every level.
func (s *ReimportSummary) TotalUpdated() int {
	return s.ChaptersUpdated + s.ScenesUpdated + s.BeatsUpdated
}
