package app

import "github.com/medlink-labs/medlink/internal/domain"

// SyncEventEmitter receives inbound sync notifications. Calls are
// synchronous; implementations must not block.
type SyncEventEmitter interface {
	OnFileSynced(file string, messages int)
	OnFileFailed(file string, attempts int, err error)
	OnCredentialsInvalid()
	OnActivity(item domain.ActivityItem)
}

// ExportEventEmitter receives outbound export notifications.
type ExportEventEmitter interface {
	OnExported(kind string, count int)
	OnActivity(item domain.ActivityItem)
}
