package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/skapxd/image-optimization-service/internal/config"
	"github.com/skapxd/image-optimization-service/internal/entities"
	"github.com/skapxd/image-optimization-service/internal/journal"
	"github.com/skapxd/image-optimization-service/internal/orchestrator"
	"github.com/skapxd/image-optimization-service/internal/ssebroker"
	"github.com/skapxd/image-optimization-service/internal/transformer"
)

// Orchestrator is the slice of the optimization pipeline the HTTP surface
// drives.
type Orchestrator interface {
	AcceptSingle(ctx context.Context, file entities.UploadedFile, callbacks []entities.CallbackSink, opts entities.OptimizationOptions) (orchestrator.AcceptResult, error)
	AcceptBatch(ctx context.Context, files []entities.UploadedFile, callbacks []entities.CallbackSink, opts entities.OptimizationOptions) (orchestrator.AcceptResult, error)
	BlurPlaceholder(ctx context.Context, data []byte, originalName string, opts transformer.BlurOptions) (orchestrator.BlurResult, error)
}

// Subscriber hands out live event streams keyed by optimization id.
type Subscriber interface {
	Subscribe(id string) (<-chan ssebroker.Event, func(), error)
}

// ArtifactSource fetches optimized artifacts that are no longer on local
// disk.
type ArtifactSource interface {
	Download(ctx context.Context, key string) ([]byte, string, error)
}

type Handler struct {
	orch      Orchestrator
	broker    Subscriber
	artifacts ArtifactSource
	journal   *journal.Journal
	cfg       *config.Config
	validator *validator.Validate
}

func New(orch Orchestrator, broker Subscriber, artifacts ArtifactSource, jrnl *journal.Journal, cfg *config.Config) *Handler {
	return &Handler{
		orch:      orch,
		broker:    broker,
		artifacts: artifacts,
		journal:   jrnl,
		cfg:       cfg,
		validator: validator.New(),
	}
}

func (h *Handler) optimizeParams(r *http.Request) (OptimizeParams, error) {
	q := r.URL.Query()
	params := OptimizeParams{
		Width:   parseIntDefault(q.Get("width"), 800),
		Height:  parseIntDefault(q.Get("height"), 0),
		Quality: parseIntDefault(q.Get("quality"), 80),
		Format:  strings.ToLower(q.Get("format")),
	}
	if params.Format == "" {
		params.Format = string(entities.FormatJPEG)
	}
	if err := h.validator.Struct(params); err != nil {
		return params, err
	}
	return params, nil
}

func toOptions(p OptimizeParams) entities.OptimizationOptions {
	return entities.OptimizationOptions{
		Width:   p.Width,
		Height:  p.Height,
		Quality: p.Quality,
		Format:  entities.Format(p.Format),
	}
}

// saveUpload spools one multipart part to a uuid-prefixed temp file after
// sniffing its real content type.
func (h *Handler) saveUpload(file multipart.File, fh *multipart.FileHeader) (entities.UploadedFile, error) {
	mime, err := mimetype.DetectReader(file)
	if err != nil {
		return entities.UploadedFile{}, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return entities.UploadedFile{}, err
	}
	if err := validateMimeType(mime.String()); err != nil {
		return entities.UploadedFile{}, err
	}

	name := filepath.Base(fh.Filename)
	path := filepath.Join(h.cfg.Storage.TempDir, uuid.NewString()+"_"+name)
	dst, err := os.Create(path)
	if err != nil {
		return entities.UploadedFile{}, err
	}
	defer dst.Close()

	size, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(path)
		return entities.UploadedFile{}, err
	}

	return entities.UploadedFile{Path: path, OriginalName: name, Size: size}, nil
}

func (h *Handler) acceptError(w http.ResponseWriter, err error) {
	var ce *orchestrator.ClientError
	switch {
	case errors.As(err, &ce):
		writeJSONError(w, ce.Reason, http.StatusBadRequest)
	case errors.Is(err, orchestrator.ErrBusy):
		writeJSONError(w, "service is busy, try again later", http.StatusServiceUnavailable)
	default:
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

// Optimize accepts one upload and answers immediately with the minted
// destination path; the optimization itself runs asynchronously.
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	params, err := h.optimizeParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return
	}

	callbacks, err := parseCallbacks(r.Form.Get("callbacks"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, fh, err := r.FormFile("image")
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			writeJSONError(w, `missing image file: form field key should be "image"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	upload, err := h.saveUpload(file, fh)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.orch.AcceptSingle(r.Context(), upload, callbacks, toOptions(params))
	if err != nil {
		os.Remove(upload.Path)
		h.acceptError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OptimizeResponse{
		Message:            "image optimization scheduled",
		OriginalSize:       res.OriginalSize,
		Data:               res.NewFilePath,
		DownloadURL:        res.DownloadURL,
		CallbacksScheduled: res.CallbacksScheduled,
		OptimizationID:     res.OptimizationID,
	})
}

// BatchOptimize accepts up to the configured number of uploads under one
// optimization id.
func (h *Handler) BatchOptimize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	params, err := h.optimizeParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return
	}

	callbacks, err := parseCallbacks(r.Form.Get("callbacks"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		writeJSONError(w, `no files uploaded: form field key should be "files"`, http.StatusBadRequest)
		return
	}
	if len(headers) > h.cfg.Upload.MaxBatchFiles {
		writeJSONError(w, fmt.Sprintf("too many files: at most %d per batch", h.cfg.Upload.MaxBatchFiles), http.StatusBadRequest)
		return
	}

	maxFileBytes := h.cfg.Upload.MaxBatchFileMB << 20
	uploads := make([]entities.UploadedFile, 0, len(headers))
	cleanupAll := func() {
		for _, u := range uploads {
			os.Remove(u.Path)
		}
	}
	for _, fh := range headers {
		if fh.Size > maxFileBytes {
			cleanupAll()
			writeJSONError(w, fmt.Sprintf("file %q exceeds the %dMB per-file limit", fh.Filename, h.cfg.Upload.MaxBatchFileMB), http.StatusRequestEntityTooLarge)
			return
		}
		part, err := fh.Open()
		if err != nil {
			cleanupAll()
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		upload, err := h.saveUpload(part, fh)
		part.Close()
		if err != nil {
			cleanupAll()
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, upload)
	}

	res, err := h.orch.AcceptBatch(r.Context(), uploads, callbacks, toOptions(params))
	if err != nil {
		cleanupAll()
		h.acceptError(w, err)
		return
	}

	results := make([]BatchResultEntry, len(uploads))
	for i, u := range uploads {
		results[i] = BatchResultEntry{
			OriginalName: u.OriginalName,
			Data:         res.NewFilePaths[i],
			Size:         u.Size,
		}
	}

	writeJSON(w, http.StatusOK, BatchOptimizeResponse{
		Message:            "batch optimization scheduled",
		Count:              len(uploads),
		CallbacksScheduled: res.CallbacksScheduled,
		OptimizationID:     res.OptimizationID,
		Results:            results,
	})
}

// BlurPlaceholder generates a tiny blurred preview and returns it inline.
func (h *Handler) BlurPlaceholder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	q := r.URL.Query()
	params := BlurParams{
		Width:           parseIntDefault(q.Get("width"), 40),
		Height:          parseIntDefault(q.Get("height"), 0),
		BlurRadius:      parseIntDefault(q.Get("blurRadius"), 15),
		Quality:         parseIntDefault(q.Get("quality"), 15),
		MobileOptimized: parseBoolDefault(q.Get("mobileOptimized"), true),
	}
	if err := h.validator.Struct(params); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return
	}

	file, fh, err := r.FormFile("image")
	if err != nil {
		writeJSONError(w, `missing image file: form field key should be "image"`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateMimeType(mimetype.Detect(data).String()); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.orch.BlurPlaceholder(r.Context(), data, filepath.Base(fh.Filename), transformer.BlurOptions{
		Width:           params.Width,
		Height:          params.Height,
		BlurRadius:      params.BlurRadius,
		Quality:         params.Quality,
		MobileOptimized: params.MobileOptimized,
	})
	if err != nil {
		h.acceptError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BlurPlaceholderResponse{
		Message:       "blur placeholder generated",
		Data:          base64.StdEncoding.EncodeToString(res.Bytes),
		OriginalSize:  res.OriginalSize,
		OptimizedSize: res.OptimizedSize,
	})
}
