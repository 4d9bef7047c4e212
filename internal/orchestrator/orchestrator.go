package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/skapxd/image-optimization-service/internal/contextstore"
	"github.com/skapxd/image-optimization-service/internal/entities"
	"github.com/skapxd/image-optimization-service/internal/journal"
	"github.com/skapxd/image-optimization-service/internal/pathminter"
	"github.com/skapxd/image-optimization-service/internal/ssebroker"
	"github.com/skapxd/image-optimization-service/internal/transformer"
	"github.com/skapxd/image-optimization-service/internal/workerpool"
)

// ErrBusy signals that the worker queue is saturated; callers should answer
// with a 503-class response.
var ErrBusy = errors.New("optimization queue is saturated")

// ClientError is an invalid-input failure raised at accept time. It never
// reaches the pool.
type ClientError struct {
	Reason string
}

func (e *ClientError) Error() string { return e.Reason }

func clientErrf(format string, args ...any) error {
	return &ClientError{Reason: fmt.Sprintf(format, args...)}
}

// BlobSink stores finished artifacts under their minted keys.
type BlobSink interface {
	Put(ctx context.Context, key, contentType string, payload []byte) error
}

// EventPublisher pushes optimization events to SSE subscribers.
type EventPublisher interface {
	Publish(ev ssebroker.Event)
}

// CallbackNotifier fires webhook callbacks and always settles.
type CallbackNotifier interface {
	Notify(ctx context.Context, callbacks []entities.CallbackSink, payload any)
}

// Registry is the context registry flavor the orchestrator persists into.
type Registry = contextstore.Registry[entities.OptimizationContext]

// Orchestrator is the entry point behind the HTTP surface: it validates,
// mints destination paths, persists context, answers immediately and runs
// the transform/upload/notify pipeline asynchronously.
type Orchestrator struct {
	pool     *workerpool.Pool
	registry *Registry
	sink     BlobSink
	events   EventPublisher
	notifier CallbackNotifier
	journal  *journal.Journal

	baseURL string
}

func New(
	pool *workerpool.Pool,
	registry *Registry,
	sink BlobSink,
	events EventPublisher,
	notifier CallbackNotifier,
	jrnl *journal.Journal,
	baseURL string,
) *Orchestrator {
	return &Orchestrator{
		pool:     pool,
		registry: registry,
		sink:     sink,
		events:   events,
		notifier: notifier,
		journal:  jrnl,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// AcceptResult is the synchronous answer for one accepted optimization.
type AcceptResult struct {
	OptimizationID     string
	NewFilePath        string
	NewFilePaths       []string
	DownloadURL        string
	OriginalSize       int64
	CallbacksScheduled int
}

func validateOptions(opts entities.OptimizationOptions) error {
	if opts.Width < 1 || opts.Width > 8000 {
		return clientErrf("width must be between 1 and 8000, got %d", opts.Width)
	}
	if opts.Height < 0 || opts.Height > 8000 {
		return clientErrf("height must be between 1 and 8000, got %d", opts.Height)
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		return clientErrf("quality must be between 1 and 100, got %d", opts.Quality)
	}
	if !opts.Format.Valid() {
		return clientErrf("unsupported output format %q, supported formats: %s",
			opts.Format, supportedFormats())
	}
	return nil
}

func supportedFormats() string {
	names := make([]string, len(entities.OutputFormats))
	for i, f := range entities.OutputFormats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func (o *Orchestrator) checkCapacity() error {
	if o.pool.QueueDepth() >= o.pool.QueueCapacity() {
		return ErrBusy
	}
	return nil
}

func (o *Orchestrator) downloadURL(key string) string {
	return o.baseURL + "/" + key
}

// mintExt picks the file extension for the destination key. The artifact for
// an auto request is keyed as jpeg; the stored bytes decide the real content
// type at upload time.
func mintExt(format entities.Format) entities.Format {
	if format == entities.FormatAuto {
		return entities.FormatJPEG
	}
	return format
}

func contentTypeFor(format entities.Format, payload []byte) string {
	if format == entities.FormatAuto {
		return mimetype.Detect(payload).String()
	}
	return "image/" + string(format)
}

// AcceptSingle admits one upload. The returned result is safe to serialize
// into the HTTP response before any worker touches the file.
func (o *Orchestrator) AcceptSingle(ctx context.Context, file entities.UploadedFile, callbacks []entities.CallbackSink, opts entities.OptimizationOptions) (AcceptResult, error) {
	if err := validateOptions(opts); err != nil {
		return AcceptResult{}, err
	}
	if err := o.checkCapacity(); err != nil {
		return AcceptResult{}, err
	}

	id := uuid.NewString()
	newFilePath := pathminter.Mint(string(mintExt(opts.Format)))

	o.registry.Set(id, entities.OptimizationContext{
		File:        &file,
		Options:     opts,
		Callbacks:   callbacks,
		NewFilePath: newFilePath,
	})
	o.journal.Accepted(ctx, id, 1)

	go o.runSingle(id)

	return AcceptResult{
		OptimizationID:     id,
		NewFilePath:        newFilePath,
		DownloadURL:        o.downloadURL(newFilePath),
		OriginalSize:       file.Size,
		CallbacksScheduled: len(callbacks),
	}, nil
}

func (o *Orchestrator) runSingle(id string) {
	ctx := context.Background()

	rec, ok := o.registry.Get(id)
	if !ok {
		log.Printf("[orchestrator] context for %s vanished before processing", id)
		o.failSingle(ctx, id, entities.OptimizationContext{}, "optimization context expired")
		return
	}
	octx := rec.Value

	o.events.Publish(ssebroker.Progress{ID: id, Percent: 10, Message: "optimization started"})

	data, err := os.ReadFile(octx.File.Path)
	if err != nil {
		log.Printf("[orchestrator] cannot read upload for %s: %v", id, err)
		o.failSingle(ctx, id, octx, "uploaded file is no longer available")
		return
	}

	future, err := o.pool.Submit(workerpool.Task{
		Kind:         workerpool.KindOptimize,
		Bytes:        data,
		Options:      octx.Options,
		OriginalName: octx.File.OriginalName,
	})
	if err != nil {
		log.Printf("[orchestrator] dispatch for %s failed: %v", id, err)
		o.failSingle(ctx, id, octx, "optimization could not be scheduled")
		return
	}

	res, err := future.Wait(ctx)
	if err != nil {
		o.failSingle(ctx, id, octx, err.Error())
		return
	}
	if !res.Success {
		o.failSingle(ctx, id, octx, res.Err.Error())
		return
	}

	o.events.Publish(ssebroker.Progress{ID: id, Percent: 70, Message: "uploading optimized image"})

	contentType := contentTypeFor(octx.Options.Format, res.Bytes)
	if err := o.sink.Put(ctx, octx.NewFilePath, contentType, res.Bytes); err != nil {
		log.Printf("[orchestrator] upload for %s failed: %v", id, err)
		o.failSingle(ctx, id, octx, "upload to storage failed")
		return
	}

	payload := entities.CallbackPayload{
		OptimizationID: id,
		Status:         entities.StatusCompleted,
		DownloadURL:    o.downloadURL(octx.NewFilePath),
		OriginalSize:   res.OriginalSize,
		OptimizedSize:  res.OptimizedSize,
		CompletedAt:    time.Now().UTC(),
	}
	o.events.Publish(ssebroker.Complete{ID: id, Payload: payload})
	o.notifier.Notify(ctx, octx.Callbacks, payload)
	o.journal.Completed(ctx, id, 1)

	o.finish(id, octx)
}

func (o *Orchestrator) failSingle(ctx context.Context, id string, octx entities.OptimizationContext, message string) {
	payload := entities.CallbackPayload{
		OptimizationID: id,
		Status:         entities.StatusError,
		Error:          message,
		CompletedAt:    time.Now().UTC(),
	}
	o.events.Publish(ssebroker.Error{ID: id, Message: message})
	o.notifier.Notify(ctx, octx.Callbacks, payload)
	o.journal.Failed(ctx, id, message)

	o.finish(id, octx)
}

// AcceptBatch admits up to the handler-enforced number of uploads under one
// optimization id. One consolidated callback fires after all files settle.
func (o *Orchestrator) AcceptBatch(ctx context.Context, files []entities.UploadedFile, callbacks []entities.CallbackSink, opts entities.OptimizationOptions) (AcceptResult, error) {
	if len(files) == 0 {
		return AcceptResult{}, clientErrf("no files uploaded")
	}
	if err := validateOptions(opts); err != nil {
		return AcceptResult{}, err
	}
	if err := o.checkCapacity(); err != nil {
		return AcceptResult{}, err
	}

	id := uuid.NewString()
	paths := make([]string, len(files))
	var totalSize int64
	for i, f := range files {
		paths[i] = pathminter.Mint(string(mintExt(opts.Format)))
		totalSize += f.Size
	}

	o.registry.Set(id, entities.OptimizationContext{
		Files:        files,
		Options:      opts,
		Callbacks:    callbacks,
		NewFilePaths: paths,
	})
	o.journal.Accepted(ctx, id, len(files))

	go o.runBatch(id)

	return AcceptResult{
		OptimizationID:     id,
		NewFilePaths:       paths,
		OriginalSize:       totalSize,
		CallbacksScheduled: len(callbacks),
	}, nil
}

func (o *Orchestrator) runBatch(id string) {
	ctx := context.Background()

	rec, ok := o.registry.Get(id)
	if !ok {
		log.Printf("[orchestrator] context for batch %s vanished before processing", id)
		o.events.Publish(ssebroker.Error{ID: id, Message: "optimization context expired"})
		o.journal.Failed(ctx, id, "optimization context expired")
		return
	}
	octx := rec.Value
	total := len(octx.Files)

	o.events.Publish(ssebroker.Progress{ID: id, Percent: 5, Message: fmt.Sprintf("batch of %d files started", total)})

	tasks := make([]workerpool.Task, total)
	readErrs := make([]error, total)
	for i, f := range octx.Files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			readErrs[i] = err
			log.Printf("[orchestrator] cannot read file %d of batch %s: %v", i, id, err)
		}
		tasks[i] = workerpool.Task{
			Kind:         workerpool.KindOptimize,
			Bytes:        data,
			Options:      octx.Options,
			OriginalName: f.OriginalName,
		}
	}

	mf, err := o.pool.SubmitMany(tasks)
	if err != nil {
		log.Printf("[orchestrator] batch dispatch for %s failed: %v", id, err)
		o.events.Publish(ssebroker.Error{ID: id, Message: "optimization could not be scheduled"})
		o.notifier.Notify(ctx, octx.Callbacks, entities.BatchCallbackPayload{
			OptimizationID: id,
			Status:         entities.StatusError,
			TotalFiles:     total,
			CompletedAt:    time.Now().UTC(),
		})
		o.journal.Failed(ctx, id, "optimization could not be scheduled")
		o.finish(id, octx)
		return
	}

	results, err := mf.Wait(ctx)
	if err != nil {
		o.events.Publish(ssebroker.Error{ID: id, Message: err.Error()})
		o.journal.Failed(ctx, id, err.Error())
		o.finish(id, octx)
		return
	}

	fileResults := make([]entities.BatchFileResult, total)
	successful := 0
	for i, res := range results {
		fr := entities.BatchFileResult{
			Index:        i,
			OriginalName: octx.Files[i].OriginalName,
			OriginalSize: res.OriginalSize,
		}
		switch {
		case readErrs[i] != nil:
			fr.Status = entities.StatusError
			fr.Error = "uploaded file is no longer available"
		case !res.Success:
			fr.Status = entities.StatusError
			fr.Error = res.Err.Error()
		default:
			key := fmt.Sprintf("%s_%d", id, i)
			contentType := contentTypeFor(octx.Options.Format, res.Bytes)
			if err := o.sink.Put(ctx, key, contentType, res.Bytes); err != nil {
				log.Printf("[orchestrator] upload of file %d in batch %s failed: %v", i, id, err)
				fr.Status = entities.StatusError
				fr.Error = "upload to storage failed"
			} else {
				fr.Status = entities.StatusCompleted
				fr.DownloadURL = o.downloadURL(key)
				fr.OptimizedSize = res.OptimizedSize
				successful++
			}
		}
		fileResults[i] = fr

		o.events.Publish(ssebroker.Progress{
			ID:        id,
			Percent:   (i + 1) * 100 / total,
			Message:   "file processed",
			FileIndex: i,
			FileName:  octx.Files[i].OriginalName,
		})
	}

	payload := entities.BatchCallbackPayload{
		OptimizationID:  id,
		Status:          entities.StatusCompleted,
		TotalFiles:      total,
		SuccessfulFiles: successful,
		Results:         fileResults,
		CompletedAt:     time.Now().UTC(),
	}
	if successful == 0 {
		payload.Status = entities.StatusError
		o.events.Publish(ssebroker.Error{ID: id, Message: "all files failed to optimize"})
	} else {
		o.events.Publish(ssebroker.Complete{ID: id, Payload: payload})
	}
	o.notifier.Notify(ctx, octx.Callbacks, payload)
	if successful == 0 {
		o.journal.Failed(ctx, id, "all files failed to optimize")
	} else {
		o.journal.Completed(ctx, id, total)
	}

	o.finish(id, octx)
}

// BlurResult is the synchronous outcome of a blur placeholder request.
type BlurResult struct {
	Bytes         []byte
	OriginalSize  int
	OptimizedSize int
}

// BlurPlaceholder runs a placeholder generation through the pool and waits
// for the bytes. Unlike optimize it answers with the artifact itself.
func (o *Orchestrator) BlurPlaceholder(ctx context.Context, data []byte, originalName string, opts transformer.BlurOptions) (BlurResult, error) {
	if err := o.checkCapacity(); err != nil {
		return BlurResult{}, err
	}

	future, err := o.pool.Submit(workerpool.Task{
		Kind:         workerpool.KindBlurPlaceholder,
		Bytes:        data,
		Blur:         opts,
		OriginalName: originalName,
	})
	if err != nil {
		if errors.Is(err, workerpool.ErrQueueFull) {
			return BlurResult{}, ErrBusy
		}
		return BlurResult{}, err
	}

	res, err := future.Wait(ctx)
	if err != nil {
		return BlurResult{}, err
	}
	if !res.Success {
		return BlurResult{}, &ClientError{Reason: res.Err.Error()}
	}
	return BlurResult{
		Bytes:         res.Bytes,
		OriginalSize:  res.OriginalSize,
		OptimizedSize: res.OptimizedSize,
	}, nil
}

// finish removes the temp files and drops the context once the terminal
// fan-out has run. Orphans left by crashes are the cleanup scheduler's job.
func (o *Orchestrator) finish(id string, octx entities.OptimizationContext) {
	if octx.File != nil && octx.File.Path != "" {
		if err := os.Remove(octx.File.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("[orchestrator] cannot remove temp file for %s: %v", id, err)
		}
	}
	for _, f := range octx.Files {
		if f.Path == "" {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("[orchestrator] cannot remove temp file for %s: %v", id, err)
		}
	}
	o.registry.Delete(id)
}
