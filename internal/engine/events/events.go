package events

import "time"

// Event is the interface implemented by all sync engine events.
type Event interface {
	isEvent()
}

// Phase identifies the stage of a sync pass.
type Phase string

const (
	PhaseIngesting    Phase = "ingesting"
	PhaseReconciling  Phase = "reconciling"
	PhaseTransferring Phase = "transferring"
	PhaseDone         Phase = "done"
)

// PassStarted is emitted when a sync pass begins.
type PassStarted struct {
	AccountID string
	Full      bool
}

func (PassStarted) isEvent() {}

// PhaseChanged is emitted when the pass moves to a new stage.
type PhaseChanged struct {
	Phase Phase
}

func (PhaseChanged) isEvent() {}

// PageApplied is emitted after each delta page is durably applied.
type PageApplied struct {
	Page  int
	Items int
}

func (PageApplied) isEvent() {}

// TransferStarted is emitted when a transfer worker picks up an item.
type TransferStarted struct {
	ItemID     string
	Path       string
	Type       string
	TotalBytes int64
}

func (TransferStarted) isEvent() {}

// TransferProgress is emitted periodically while bytes move.
type TransferProgress struct {
	ItemID           string
	BytesTransferred int64
	TotalBytes       int64
	Timestamp        time.Time
}

func (TransferProgress) isEvent() {}

// TransferComplete is emitted when a transfer finishes successfully.
type TransferComplete struct {
	ItemID string
	Path   string
	Type   string
	Bytes  int64
}

func (TransferComplete) isEvent() {}

// TransferFailed is emitted when a transfer exhausts its retries.
type TransferFailed struct {
	ItemID string
	Path   string
	Type   string
	Err    string
}

func (TransferFailed) isEvent() {}

// ConflictDetected is emitted when reconciliation records a new conflict.
type ConflictDetected struct {
	ConflictID string
	Path       string
}

func (ConflictDetected) isEvent() {}

// PassComplete is emitted when a sync pass finishes.
type PassComplete struct {
	Succeeded  int
	Failed     int
	Conflicted int
	Err        string
}

func (PassComplete) isEvent() {}
