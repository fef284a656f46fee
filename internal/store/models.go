package store

import "time"

// SyncState is the lifecycle state of a local file record.
type SyncState string

const (
	StateUnknown         SyncState = "unknown"
	StatePendingDownload SyncState = "pending_download"
	StateDownloaded      SyncState = "downloaded"
	StatePendingUpload   SyncState = "pending_upload"
	StateUploaded        SyncState = "uploaded"
	StateDeleted         SyncState = "deleted"
	StateError           SyncState = "error"
)

// RemoteItem mirrors one entry of the remote change feed. Written only by
// delta ingestion; read by reconciliation.
type RemoteItem struct {
	AccountID    string
	ItemID       string
	RelativePath string
	ETag         string
	CTag         string
	Size         int64
	ModifiedAt   time.Time
	Folder       bool
	Deleted      bool
}

// LocalFile tracks the local side of one path. Written by reconciliation and
// the transfer scheduler.
type LocalFile struct {
	AccountID    string
	RelativePath string
	ItemID       string
	ContentHash  string
	Size         int64
	LastWriteUtc time.Time
	State        SyncState
}

// DeltaCursor is the resumption token for one account's change feed, plus the
// timestamp of the last fully applied sync. At most one row per account.
type DeltaCursor struct {
	AccountID  string
	Token      string
	LastSynced time.Time
}

// TransferType distinguishes transfer log entries.
type TransferType string

const (
	TransferDownload TransferType = "download"
	TransferUpload   TransferType = "upload"
	TransferDelete   TransferType = "delete"
)

// TransferStatus is the outcome recorded for one transfer attempt.
type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferInProgress TransferStatus = "in_progress"
	TransferSuccess    TransferStatus = "success"
	TransferFailed     TransferStatus = "failed"
)

// TransferLogEntry is one append-only transfer attempt record.
type TransferLogEntry struct {
	ID               int64
	AccountID        string
	Type             TransferType
	ItemID           string
	Started          time.Time
	Completed        time.Time
	Status           TransferStatus
	BytesTransferred int64
	ErrorText        string
}

// Conflict records a divergent concurrent edit. Never deleted; resolution
// flips the Resolved flag exactly once.
type Conflict struct {
	ID             string
	AccountID      string
	RelativePath   string
	LocalModified  time.Time
	RemoteModified time.Time
	LocalSize      int64
	RemoteSize     int64
	Detected       time.Time
	Strategy       string
	Resolved       bool
}
