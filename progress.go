package templatex

import "github.com/meigma/templatex/archive"

// Progress types re-exported from archive.
type (
	ProgressEvent = archive.ProgressEvent
	ProgressStage = archive.ProgressStage
	ProgressFunc  = archive.ProgressFunc
)

// Progress stages.
const (
	StageEnumerating = archive.StageEnumerating
	StageCompressing = archive.StageCompressing
	StageSigning     = archive.StageSigning
	StageValidating  = archive.StageValidating
	StageExtracting  = archive.StageExtracting
)

// Compression re-exported from archive.
type Compression = archive.Compression

// Compression algorithms.
const (
	CompressionNone = archive.CompressionNone
	CompressionZstd = archive.CompressionZstd
)

// ChangeDetection re-exported from archive.
type ChangeDetection = archive.ChangeDetection

// Change detection modes.
const (
	ChangeDetectionNone   = archive.ChangeDetectionNone
	ChangeDetectionStrict = archive.ChangeDetectionStrict
)

func (c *config) reportProgress(ev ProgressEvent) {
	if c.progress != nil {
		c.progress(ev)
	}
}
