// Package domain defines the persistence models for locally queued email
// drafts. These types are mapped with GORM and form the core data layer of
// the draftsync sidecar service.
package domain

import (
	"strings"
	"time"
)

// Sync status values for a locally stored draft.
//
// A draft is "pending" from the moment it is written locally until the
// synchronization coordinator receives a confirmed server identifier for it,
// at which point it becomes "synced". The transition is one-way: nothing in
// this service ever moves a synced draft back to pending.
//
// "conflict" is declared for forward compatibility with multi-device edit
// resolution; no code path currently produces or consumes it.
const (
	SyncStatusPending  = "pending"
	SyncStatusSynced   = "synced"
	SyncStatusConflict = "conflict"
)

// Draft represents an unsent, locally composed email awaiting translation,
// review, or submission. The local store is the sole owner of draft rows;
// the desktop client only holds transient editor state that it pushes here.
//
// Fields:
//   - LocalID: auto-increment primary key; the sole handle for update/delete.
//     Immutable once assigned.
//   - ServerID: identifier of the remote draft resource; nil until the first
//     successful upload. Set if and only if SyncStatus == synced.
//   - To / Subject / SourceBody / TranslatedBody / TargetLang: draft payload
//     as composed in the editor. The store treats these as opaque beyond an
//     emptiness check at save time.
//   - UpdatedAt: stamped on every local write.
//   - SyncStatus: pending | synced | conflict (see constants above).
//   - SyncedAt: stamped only when the draft transitions to synced; drives the
//     retention sweep.
type Draft struct {
	LocalID        int64      `json:"local_id"        gorm:"primaryKey;autoIncrement"`
	ServerID       *string    `json:"server_id"       gorm:"type:TEXT;index:idx_drafts_server"`
	To             string     `json:"to"              gorm:"type:TEXT;not null;default:''"`
	Subject        string     `json:"subject"         gorm:"type:TEXT;not null;default:''"`
	SourceBody     string     `json:"source_body"     gorm:"type:TEXT;not null;default:''"`
	TranslatedBody string     `json:"translated_body" gorm:"type:TEXT;not null;default:''"`
	TargetLang     string     `json:"target_lang"     gorm:"type:TEXT;not null;default:''"`
	UpdatedAt      time.Time  `json:"updated_at"`
	SyncStatus     string     `json:"sync_status"     gorm:"type:TEXT;not null;default:'pending';check:sync_status IN ('pending','synced','conflict');index:idx_drafts_status"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
}

// TableName returns the database table name for Draft.
func (Draft) TableName() string { return "drafts" }

// IsEmpty reports whether the draft carries no user-visible content, i.e.
// both subject and bodies are blank. Empty drafts are never autosaved.
func (d Draft) IsEmpty() bool {
	return strings.TrimSpace(d.Subject) == "" &&
		strings.TrimSpace(d.SourceBody) == "" &&
		strings.TrimSpace(d.TranslatedBody) == ""
}

// IsSynced reports whether the draft has a confirmed remote counterpart.
func (d Draft) IsSynced() bool { return d.SyncStatus == SyncStatusSynced }
