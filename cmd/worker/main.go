package main

import (
	"context"
	"log"
	"time"

	"scholarqa/internal/activities"
	"scholarqa/internal/config"
	"scholarqa/internal/corpus"
	"scholarqa/internal/embedding"
	"scholarqa/internal/index"
	"scholarqa/internal/providers"
	"scholarqa/internal/storage"
	"scholarqa/internal/util"
	"scholarqa/internal/watch"
	"scholarqa/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx, cfg.EmbedDim); err != nil {
		log.Fatal(err)
	}

	pm, err := providers.NewManager(cfg.LLMProviders, cfg.EmbedProviders, cfg.EmbedDim)
	if err != nil {
		log.Fatal(err)
	}
	gateway := embedding.NewGateway(pm.FirstEmbedProvider(), embedding.Config{
		ModelID:      cfg.EmbedModelID,
		Dimension:    cfg.EmbedDim,
		BatchSize:    cfg.EmbedBatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
	})

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	a := activities.New(cfg, corpus.NewPgStore(db), index.NewPgIndexer(db), gateway)
	activities.Register(w, a)

	if err := util.EnsureDir(cfg.MetadataInRoot); err != nil {
		log.Fatal(err)
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	watcher := watch.New(watch.Config{Dir: cfg.MetadataInRoot}, func(ctx context.Context, csvPath string) error {
		_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:        "ingest-drop-" + time.Now().UTC().Format("20060102T150405"),
			TaskQueue: cfg.TemporalTaskQueue,
		}, workflows.CorpusIngestWorkflow, workflows.CorpusIngestInput{
			BatchID:               time.Now().UTC().Format("20060102T150405"),
			CSVPath:               csvPath,
			MaxConcurrentChildren: cfg.IngestMaxChildren,
		})
		return err
	})
	go func() {
		if err := watcher.Run(watchCtx); err != nil && watchCtx.Err() == nil {
			log.Printf("watcher stopped: %v", err)
		}
	}()

	log.Printf("scholarqa worker on %s queue=%s watching=%s embed_providers=%q", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.MetadataInRoot, cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
