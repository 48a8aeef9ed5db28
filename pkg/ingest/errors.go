package ingest

import "errors"

var (
	// ErrEmptyContent rejects uploads with no bytes.
	ErrEmptyContent = errors.New("document content is empty")

	// ErrContentTooLarge rejects uploads above the configured ceiling.
	ErrContentTooLarge = errors.New("document content exceeds size limit")

	// ErrDocumentNotFound is returned when no document matches the id
	// within the caller's tenant.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrStateConflict signals an attempt to process a document that is
	// already terminal or mid-pipeline on another worker. It is detected
	// and reported, never silently overwritten.
	ErrStateConflict = errors.New("document is not in a processable state")
)
