// Package tasks defines the payloads that travel through the ingestion queue.
package tasks

// IngestionTask represents one uploaded document waiting to be parsed, chunked and indexed.
// It only carries ids and paths so it can be serialized and picked up by any worker process.
type IngestionTask struct {
	RoomID           uint   `json:"roomId"`
	DocumentID       uint   `json:"documentId"`
	TempFilePath     string `json:"tempFilePath"`
	OriginalFileName string `json:"originalFileName"`
	// Attempts counts redeliveries after a worker crash (reliable queue mode only).
	Attempts int `json:"attempts,omitempty"`
}
