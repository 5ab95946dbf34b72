package models

// IndexedEvent is published once a record has been inserted.
type IndexedEvent struct {
	ID       int64  `json:"id"`
	Key      string `json:"key"`
	Filename string `json:"filename"`
}
