// internal/models/models.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Image is a persisted, searchable record.
type Image struct {
	ID          int64     `db:"id" json:"id"`
	Filename    string    `db:"filename" json:"filename"`
	Locator     string    `db:"locator" json:"url"`
	IndexedText string    `db:"indexed_text" json:"indexed_text,omitempty"`
	UploadTime  time.Time `db:"upload_time" json:"upload_time"`
}

// Status is the state of a queued upload. The zero value is StatusPending.
type Status int

const (
	StatusPending Status = iota
	StatusPreprocessing
	StatusRecognizing
	StatusUploading
	StatusSuccess
	StatusError
)

var statusNames = [...]string{
	StatusPending:       "pending",
	StatusPreprocessing: "preprocessing",
	StatusRecognizing:   "recognizing",
	StatusUploading:     "uploading",
	StatusSuccess:       "success",
	StatusError:         "error",
}

func (s Status) String() string {
	if s < StatusPending || s > StatusError {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// CanTransition reports whether an item in state s may move to next.
// Stages only move forward; error is reachable from any non-terminal state.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	return next >= s && next <= StatusSuccess
}

func (s Status) MarshalText() ([]byte, error) {
	if s < StatusPending || s > StatusError {
		return nil, fmt.Errorf("models.Status: unknown value %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("models.Status: unknown value %q", b)
}

// QueueItem is the observable state of one file submitted for ingestion.
type QueueItem struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	RecordID  int64     `json:"record_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Results []Image
	HasMore bool
	Page    int
}
