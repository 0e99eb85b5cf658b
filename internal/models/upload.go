package models

// UploadStatus is the polled view of an asynchronous ingestion job.
type UploadStatus struct {
	UploadID      string     `json:"uploadId"`
	FileName      string     `json:"fileName,omitempty"`
	Status        FileStatus `json:"status"`
	Progress      float64    `json:"progress"` // 0-100
	ProcessedRows int        `json:"processedRows,omitempty"`
	TotalRows     int        `json:"totalRows,omitempty"`
	Error         string     `json:"error,omitempty"`
}
