package common

import (
	"github.com/google/uuid"
)

// NewBatchID generates a unique batch ID with the "batch_" prefix
// Format: batch_<uuid>
func NewBatchID() string {
	return "batch_" + uuid.New().String()
}

// NewSubmissionID generates a unique submission record ID with the "sub_" prefix
// Format: sub_<uuid>
func NewSubmissionID() string {
	return "sub_" + uuid.New().String()
}

// NewSubmissionReference generates an opaque correlation token linking a batch
// to its external submission. The engine echoes this token in callbacks.
func NewSubmissionReference() string {
	return uuid.New().String()
}
