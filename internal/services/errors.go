// Package services defines the business logic for the local draft queue:
// saving drafts, pushing pending drafts to the remote system, and sweeping
// old synchronized rows. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Draft-related errors.
var (
	// ErrDraftNotFound indicates that the requested draft does not exist in
	// the local store.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrEmptyDraft is returned when a save request carries no content at all
	// (blank subject and bodies). Empty drafts are never persisted.
	ErrEmptyDraft = errors.New("draft is empty")

	// ErrBadTargetLang is returned when a draft names a target language that
	// is not a well-formed BCP 47 tag.
	ErrBadTargetLang = errors.New("invalid target language")
)

// Synchronization errors.
var (
	// ErrSyncInProgress is returned when SyncPending is invoked while a
	// previous run has not finished. Overlapping runs could race to upload
	// the same draft, so the second caller backs off.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoUploader indicates the coordinator was constructed without an
	// upload function; nothing can be pushed remotely.
	ErrNoUploader = errors.New("no uploader configured")
)
