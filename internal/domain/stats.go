package domain

import "time"

// SyncStats is a snapshot of inbound sync counters.
type SyncStats struct {
	FilesSynced       int       `json:"filesSynced"`
	FilesFailed       int       `json:"filesFailed"`
	MessagesProcessed int       `json:"messagesProcessed"`
	PendingFiles      int       `json:"pendingFiles"`
	LastSyncAt        time.Time `json:"lastSyncAt"`
}

// ExportStats is a snapshot of outbound export counters. ExportedToday
// rolls over at local midnight.
type ExportStats struct {
	ExportedToday  int       `json:"exportedToday"`
	ExportFailures int       `json:"exportFailures"`
	LastExportAt   time.Time `json:"lastExportAt"`
}
