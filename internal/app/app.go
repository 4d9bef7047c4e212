package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/skapxd/image-optimization-service/internal/cleanup"
	"github.com/skapxd/image-optimization-service/internal/config"
	"github.com/skapxd/image-optimization-service/internal/contextstore"
	"github.com/skapxd/image-optimization-service/internal/entities"
	"github.com/skapxd/image-optimization-service/internal/journal"
	"github.com/skapxd/image-optimization-service/internal/notifier"
	"github.com/skapxd/image-optimization-service/internal/orchestrator"
	"github.com/skapxd/image-optimization-service/internal/r2"
	"github.com/skapxd/image-optimization-service/internal/redisholder"
	"github.com/skapxd/image-optimization-service/internal/ssebroker"
	"github.com/skapxd/image-optimization-service/internal/transformer"
	"github.com/skapxd/image-optimization-service/internal/transport/handler"
	"github.com/skapxd/image-optimization-service/internal/transport/router"
	"github.com/skapxd/image-optimization-service/internal/workerpool"
)

type App struct {
	HttpServer *http.Server

	pool    *workerpool.Pool
	broker  *ssebroker.Broker
	sweeper *cleanup.Scheduler
	holder  *redisholder.Holder
	sink    *r2.Storage

	cancel context.CancelFunc
}

// mergeContexts composes a partial context update with the stored one:
// fields set on next win, everything else is carried over.
func mergeContexts(old, next entities.OptimizationContext) entities.OptimizationContext {
	merged := old
	if next.File != nil {
		merged.File = next.File
	}
	if next.Files != nil {
		merged.Files = next.Files
	}
	if next.Callbacks != nil {
		merged.Callbacks = next.Callbacks
	}
	if next.NewFilePath != "" {
		merged.NewFilePath = next.NewFilePath
	}
	if next.NewFilePaths != nil {
		merged.NewFilePaths = next.NewFilePaths
	}
	zero := entities.OptimizationOptions{}
	if next.Options != zero {
		merged.Options = next.Options
	}
	return merged
}

// localSink stores artifacts on local disk when no object store is
// configured; the download endpoint serves them from the same directory.
type localSink struct {
	dir string
}

func (l *localSink) Put(_ context.Context, key, _ string, payload []byte) error {
	path := filepath.Join(l.dir, filepath.Base(key))
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func New(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{cancel: cancel}

	var jrnl *journal.Journal
	if cfg.Journal.Enabled && len(cfg.Redis.Nodes) > 0 {
		holder, err := redisholder.Build(ctx, cfg)
		if err != nil {
			cancel()
			return nil, err
		}
		a.holder = holder
		jrnl = journal.New(holder, cfg.Journal.Stream, cfg.Journal.Namespace,
			cfg.Journal.MaxLen, time.Duration(cfg.Journal.StatusTTLSeconds)*time.Second)
	}

	var sink orchestrator.BlobSink
	var artifacts handler.ArtifactSource
	if cfg.R2.AccountID != "" {
		r2Storage, err := r2.NewStorage(r2.Config{
			AccountID:  cfg.R2.AccountID,
			BucketName: cfg.R2.BucketName,
			AccessKey:  cfg.R2.AccessKeyID,
			SecretKey:  cfg.R2.SecretKey,
		})
		if err != nil {
			cancel()
			return nil, err
		}
		a.sink = r2Storage
		sink = r2Storage
		artifacts = r2Storage
	} else {
		log.Println("[app] no object store configured, artifacts stay on local disk")
		sink = &localSink{dir: cfg.Storage.ArtifactDir}
	}

	registry := contextstore.NewRegistry[entities.OptimizationContext](
		contextstore.KindControllerParams,
		time.Duration(cfg.Storage.ContextTTLSeconds)*time.Second,
		mergeContexts,
	)

	pool := workerpool.New(workerpool.Config{
		MinWorkers:  cfg.Worker.MinWorkers,
		MaxWorkers:  cfg.Worker.MaxWorkers,
		IdleTimeout: time.Duration(cfg.Worker.IdleTimeoutMs) * time.Millisecond,
		QueueSize:   cfg.Worker.QueueSize,
	}, workerpool.TransformRunner(transformer.New()))
	a.pool = pool

	broker := ssebroker.New()
	a.broker = broker

	orch := orchestrator.New(pool, registry, sink, broker, notifier.New(), jrnl, cfg.Storage.DownloadBaseURL)

	sweeper := cleanup.New(registry, time.Duration(cfg.Storage.CleanupIntervalMs)*time.Millisecond)
	sweeper.Start()
	a.sweeper = sweeper

	h := handler.New(orch, broker, artifacts, jrnl, cfg)
	r := router.NewRouter(h, cfg)

	a.HttpServer = &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return a, nil
}

func (a *App) Run() error {
	log.Printf("starting server on %s", a.HttpServer.Addr)
	return a.HttpServer.ListenAndServe()
}

// Shutdown drains the server and the async pipeline in dependency order.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.HttpServer.Shutdown(ctx)

	a.sweeper.Stop()
	if perr := a.pool.Shutdown(ctx); perr != nil && err == nil {
		err = perr
	}
	a.broker.Close()
	if a.sink != nil {
		a.sink.Close()
	}
	a.cancel()
	if a.holder != nil {
		_ = a.holder.Close()
	}
	return err
}
