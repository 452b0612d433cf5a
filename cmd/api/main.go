package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"scholarqa/internal/api"
	"scholarqa/internal/config"
	"scholarqa/internal/corpus"
	"scholarqa/internal/embedding"
	"scholarqa/internal/index"
	"scholarqa/internal/providers"
	"scholarqa/internal/retriever"
	"scholarqa/internal/session"
	"scholarqa/internal/storage"
	"scholarqa/internal/synth"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

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

	searcher := index.NewPgSearcher(db, cfg.EmbedModelID)
	retr := retriever.New(index.VectorSide{S: searcher}, index.LexicalSide{S: searcher}, gateway, retriever.Config{
		TopK:             cfg.RetrieveTopK,
		FusionMultiplier: cfg.FusionMultiplier,
		RRFConstant:      cfg.RRFConstant,
		VectorMinScore:   cfg.VectorMinScore,
		FusedMinScore:    cfg.FusedMinScore,
		SearchTimeout:    time.Duration(cfg.SearchTimeoutMS) * time.Millisecond,
	})
	synthesizer := synth.New(pm.FirstLLMProvider(), synth.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
	})
	sessions := session.NewManager(session.Config{
		Window: cfg.SessionWindow,
		TTL:    time.Duration(cfg.SessionTTLMin) * time.Minute,
	})

	tc, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Printf("temporal unavailable, ingest endpoints disabled: %v", err)
		tc = nil
	} else {
		defer tc.Close()
	}

	srv := api.NewServer(cfg, api.Deps{
		Store:       corpus.NewPgStore(db),
		Retriever:   retr,
		Synthesizer: synthesizer,
		Sessions:    sessions,
		Temporal:    tc,
		Orphans:     searcher.Orphans,
	})

	log.Printf("scholarqa api listening on %s llm_providers=%q embed_providers=%q", cfg.APIAddr, cfg.LLMProviders, cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, srv.Routes()); err != nil {
		log.Fatal(err)
	}
}
