package journal

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skapxd/image-optimization-service/internal/entities"
)

var ErrNotFound = errors.New("no status recorded for id")

// ClientSource yields the current redis client. A holder satisfies this so
// the journal survives reconnects without re-wiring.
type ClientSource interface {
	Get() redis.UniversalClient
}

// Entry is one lifecycle record appended to the journal stream.
type Entry struct {
	OptimizationID string             `json:"optimizationId"`
	Status         entities.JobStatus `json:"status"`
	TotalFiles     int                `json:"totalFiles,omitempty"`
	Message        string             `json:"message,omitempty"`
	At             time.Time          `json:"at"`
}

// Journal appends job lifecycle records to a Redis stream and keeps a TTL'd
// status key per optimization id. It is an optional durability extension: a
// nil Journal is a valid no-op instance, the in-process pipeline never
// depends on it.
type Journal struct {
	src       ClientSource
	stream    string
	maxLen    int64
	namespace string
	statusTTL time.Duration
}

func New(src ClientSource, stream, namespace string, maxLen int64, statusTTL time.Duration) *Journal {
	if statusTTL <= 0 {
		statusTTL = time.Hour
	}
	return &Journal{
		src:       src,
		stream:    stream,
		maxLen:    maxLen,
		namespace: namespace,
		statusTTL: statusTTL,
	}
}

func (j *Journal) enabled() bool {
	return j != nil && j.src != nil && j.src.Get() != nil
}

func (j *Journal) statusKey(id string) string {
	return j.namespace + ":jobs:" + id
}

// Record appends entry to the stream and refreshes the status key. Failures
// are logged, never propagated: durability is best-effort on top of the
// in-memory pipeline.
func (j *Journal) Record(ctx context.Context, entry Entry) {
	if !j.enabled() {
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	raw, _ := json.Marshal(entry)
	r := j.src.Get()

	if err := r.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		MaxLen: j.maxLen,
		Approx: true,
		Values: map[string]any{
			"payload": string(raw),
		},
	}).Err(); err != nil {
		log.Printf("[journal] cannot append %s record for %s: %v", entry.Status, entry.OptimizationID, err)
	}

	if err := r.Set(ctx, j.statusKey(entry.OptimizationID), string(raw), j.statusTTL).Err(); err != nil {
		log.Printf("[journal] cannot store status for %s: %v", entry.OptimizationID, err)
	}
}

// Accepted records job admission.
func (j *Journal) Accepted(ctx context.Context, id string, totalFiles int) {
	j.Record(ctx, Entry{OptimizationID: id, Status: entities.StatusAccepted, TotalFiles: totalFiles})
}

// Completed records a successful terminal state.
func (j *Journal) Completed(ctx context.Context, id string, totalFiles int) {
	j.Record(ctx, Entry{OptimizationID: id, Status: entities.StatusCompleted, TotalFiles: totalFiles})
}

// Failed records a failed terminal state.
func (j *Journal) Failed(ctx context.Context, id, message string) {
	j.Record(ctx, Entry{OptimizationID: id, Status: entities.StatusError, Message: message})
}

// Status returns the latest recorded entry for id, or ErrNotFound when the
// journal is disabled, the id is unknown, or its key expired.
func (j *Journal) Status(ctx context.Context, id string) (Entry, error) {
	if !j.enabled() {
		return Entry{}, ErrNotFound
	}

	raw, err := j.src.Get().Get(ctx, j.statusKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
