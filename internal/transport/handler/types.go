package handler

// OptimizeParams carries the validated query parameters of an optimize
// request.
type OptimizeParams struct {
	Width   int    `validate:"gte=0,lte=8000"`
	Height  int    `validate:"gte=0,lte=8000"`
	Quality int    `validate:"gte=1,lte=100"`
	Format  string `validate:"required"`
}

// BlurParams carries the validated query parameters of a blur placeholder
// request.
type BlurParams struct {
	Width           int `validate:"gte=10,lte=256"`
	Height          int `validate:"gte=0,lte=256"`
	BlurRadius      int `validate:"gte=1,lte=50"`
	Quality         int `validate:"gte=1,lte=50"`
	MobileOptimized bool
}

// OptimizeResponse is the synchronous answer to an optimize request. The
// artifact itself arrives later at DownloadURL.
type OptimizeResponse struct {
	Message            string `json:"message"`
	OriginalSize       int64  `json:"originalSize"`
	Data               string `json:"data"`
	DownloadURL        string `json:"downloadUrl"`
	CallbacksScheduled int    `json:"callbacksScheduled"`
	OptimizationID     string `json:"optimizationId"`
}

// BatchResultEntry describes one admitted file of a batch.
type BatchResultEntry struct {
	OriginalName string `json:"originalName"`
	Data         string `json:"data"`
	Size         int64  `json:"size"`
}

// BatchOptimizeResponse is the synchronous answer to a batch request.
type BatchOptimizeResponse struct {
	Message            string             `json:"message"`
	Count              int                `json:"count"`
	CallbacksScheduled int                `json:"callbacksScheduled"`
	OptimizationID     string             `json:"optimizationId"`
	Results            []BatchResultEntry `json:"results"`
}

// BlurPlaceholderResponse carries the placeholder inline as base64.
type BlurPlaceholderResponse struct {
	Message       string `json:"message"`
	Data          string `json:"data"`
	OriginalSize  int    `json:"originalSize"`
	OptimizedSize int    `json:"optimizedSize"`
}
