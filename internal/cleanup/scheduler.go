package cleanup

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/skapxd/image-optimization-service/internal/contextstore"
	"github.com/skapxd/image-optimization-service/internal/entities"
)

// DefaultInterval is how often expired contexts are swept eagerly. Lazy
// eviction on read still applies between ticks.
const DefaultInterval = 5 * time.Minute

// Sweepable is any store that can evict its expired entries on demand.
type Sweepable interface {
	Sweep() int
}

// Scheduler periodically sweeps the optimization context registry, unlinking
// temp files that expired before their pipeline finished, plus any extra
// stores registered with it. One goroutine, stoppable.
type Scheduler struct {
	registry *contextstore.Registry[entities.OptimizationContext]
	extra    []Sweepable
	interval time.Duration

	done chan struct{}
	once sync.Once
}

func New(registry *contextstore.Registry[entities.OptimizationContext], interval time.Duration, extra ...Sweepable) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		registry: registry,
		extra:    extra,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.loop()
}

func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	evicted := s.registry.Sweep(func(id string, rec contextstore.Record[entities.OptimizationContext]) {
		unlinkTempFiles(id, rec.Value)
	})
	for _, store := range s.extra {
		evicted += store.Sweep()
	}
	if evicted > 0 {
		log.Printf("[cleanup] evicted %d expired entries", evicted)
	}
}

func unlinkTempFiles(id string, octx entities.OptimizationContext) {
	paths := make([]string, 0, len(octx.Files)+1)
	if octx.File != nil && octx.File.Path != "" {
		paths = append(paths, octx.File.Path)
	}
	for _, f := range octx.Files {
		if f.Path != "" {
			paths = append(paths, f.Path)
		}
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("[cleanup] cannot remove orphaned temp file of %s: %v", id, err)
		}
	}
}
