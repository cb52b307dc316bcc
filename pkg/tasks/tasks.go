// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentTask represents the data structure for a document processing job.
type DocumentTask struct {
	DocumentID  uint   `json:"document_id"`
	ContentHash string `json:"content_hash"`
	ObjectName  string `json:"object_name"`
	FileName    string `json:"file_name"`
	UserID      uint   `json:"user_id"`
}
