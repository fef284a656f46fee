package utils

// Upload thresholds (binary units)
const (
	// UploadSimpleMaxBytes is the largest payload sent as a single-shot upload.
	UploadSimpleMaxBytes = 4 * 1024 * 1024 // 4 MiB
	// UploadChunkSize is the byte-range size for chunked upload sessions.
	// Must stay a multiple of 320 KiB per the upload session contract.
	UploadChunkSize = 32 * 320 * 1024 // 10 MiB
)

// Retry defaults
const (
	DefaultMaxRetries     = 3
	DefaultRetryBaseMs    = 1000
	MaxRetryDelayMs       = 32000
	DefaultRequestTimeout = 60 // seconds
)

// Scheduler defaults
const (
	DefaultConcurrency = 4
	DefaultBatchSize   = 50
)
