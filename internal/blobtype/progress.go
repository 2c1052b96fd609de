package blobtype

// ProgressEvent represents a progress update during pack, sign, validation,
// or extraction.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the entry currently being processed, if applicable.
	Path string

	// BytesDone is the number of bytes completed in the current operation.
	BytesDone uint64

	// BytesTotal is the total bytes for the current operation.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// FilesDone is the number of entries completed.
	FilesDone int

	// FilesTotal is the total number of entries.
	// Zero indicates the total is unknown (e.g., during enumeration).
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StageEnumerating indicates the input tree is being walked.
	StageEnumerating ProgressStage = iota

	// StageCompressing indicates entries are being compressed and written.
	StageCompressing

	// StageSigning indicates the manifest digest is being signed.
	StageSigning

	// StageValidating indicates entry digests are being recomputed.
	StageValidating

	// StageExtracting indicates entries are being restored.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StageCompressing:
		return "compressing"
	case StageSigning:
		return "signing"
	case StageValidating:
		return "validating"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
type ProgressFunc func(ProgressEvent)
