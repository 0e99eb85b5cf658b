package models

// Partition is a proposed grouping of files by account value. It is
// ephemeral: partitions exist only between analysis and approval, and are
// converted 1:1 into Sessions when approved.
type Partition struct {
	AccountName string   `json:"accountName"`
	FileIDs     []string `json:"fileIds"`
	FileCount   int      `json:"fileCount"`
	TotalRows   int      `json:"totalRows"`
	TotalAmount float64  `json:"totalAmount"`
	SessionName string   `json:"sessionName"`
	WorkerName  string   `json:"workerName,omitempty"`
	Selected    bool     `json:"selected"`
}
