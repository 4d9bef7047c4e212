package entities

import "time"

// Format is an output encoding accepted by the optimizer.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
	FormatAuto Format = "auto"
)

// OutputFormats lists every format the optimizer can encode to.
var OutputFormats = []Format{FormatJPEG, FormatPNG, FormatWebP, FormatAVIF, FormatGIF, FormatTIFF, FormatAuto}

func (f Format) Valid() bool {
	for _, o := range OutputFormats {
		if f == o {
			return true
		}
	}
	return false
}

// InputMimeTypes lists the upload content types the service accepts.
var InputMimeTypes = map[string]bool{
	"image/jpeg":    true,
	"image/jpg":     true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
	"image/tiff":    true,
	"image/bmp":     true,
}

// OptimizationOptions carries the transformation parameters for one request.
// Immutable once accepted.
type OptimizationOptions struct {
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	Quality         int    `json:"quality"`
	Format          Format `json:"format"`
	BlurRadius      int    `json:"blurRadius,omitempty"`
	MobileOptimized bool   `json:"mobileOptimized,omitempty"`
}

// CallbackSink is one webhook destination registered with a request.
type CallbackSink struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// UploadedFile is a handle to an inbound upload spooled to a temp file.
type UploadedFile struct {
	Path         string `json:"path"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// OptimizationContext is everything needed to finish an in-flight
// optimization after the HTTP response has been committed. Stored in the
// context registry under the optimization id.
type OptimizationContext struct {
	File      *UploadedFile  `json:"file,omitempty"`
	Files     []UploadedFile `json:"files,omitempty"`
	Options   OptimizationOptions
	Callbacks []CallbackSink

	// NewFilePath is the destination key returned synchronously to the
	// client. The uploaded artifact is addressable at exactly this key.
	NewFilePath  string   `json:"newFilePath,omitempty"`
	NewFilePaths []string `json:"newFilePaths,omitempty"`
}

// JobStatus mirrors the lifecycle of a single optimization.
type JobStatus string

const (
	StatusAccepted  JobStatus = "accepted"
	StatusCompleted JobStatus = "completed"
	StatusError     JobStatus = "error"
)

// CallbackPayload is the body delivered to webhook sinks and embedded in the
// terminal SSE event for single optimizations.
type CallbackPayload struct {
	OptimizationID string    `json:"optimizationId"`
	Status         JobStatus `json:"status"`
	DownloadURL    string    `json:"downloadUrl,omitempty"`
	OriginalSize   int       `json:"originalSize,omitempty"`
	OptimizedSize  int       `json:"optimizedSize,omitempty"`
	Error          string    `json:"error,omitempty"`
	CompletedAt    time.Time `json:"completedAt"`
}

// BatchFileResult is the outcome of one file within a batch.
type BatchFileResult struct {
	Index         int       `json:"index"`
	OriginalName  string    `json:"originalName"`
	Status        JobStatus `json:"status"`
	DownloadURL   string    `json:"downloadUrl,omitempty"`
	OriginalSize  int       `json:"originalSize,omitempty"`
	OptimizedSize int       `json:"optimizedSize,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// BatchCallbackPayload is the single consolidated body fired once per batch.
type BatchCallbackPayload struct {
	OptimizationID  string            `json:"optimizationId"`
	Status          JobStatus         `json:"status"`
	TotalFiles      int               `json:"totalFiles"`
	SuccessfulFiles int               `json:"successfulFiles"`
	Results         []BatchFileResult `json:"results"`
	CompletedAt     time.Time         `json:"completedAt"`
}
