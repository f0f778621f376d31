// Command ingest loads documents into the pgvector search backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/katakuxiko/ragsearch/internal/config"
	"github.com/katakuxiko/ragsearch/internal/logging"
	"github.com/katakuxiko/ragsearch/internal/model"
	"github.com/katakuxiko/ragsearch/internal/pdf"
	"github.com/katakuxiko/ragsearch/internal/service"
	"github.com/katakuxiko/ragsearch/internal/store"
)

type options struct {
	envFile string
	title   string
	size    int
	overlap int
}

// chunkWriter is the part of store.PgStore ingest needs.
type chunkWriter interface {
	Add(ctx context.Context, c model.Chunk, v []float32) error
}

type result struct {
	doc   string
	total int
	saved int
}

func main() {
	if err := newIngestCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newIngestCommand() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:          "ingest FILE...",
		Short:        "Chunk, embed and store PDF or text documents in pgvector",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&opts.title, "title", "", "title stored with every chunk (defaults to the file name)")
	cmd.Flags().IntVar(&opts.size, "chunk-size", 220, "words per chunk")
	cmd.Flags().IntVar(&opts.overlap, "chunk-overlap", 40, "words shared by consecutive chunks")
	return cmd
}

func run(ctx context.Context, opts options, files []string) error {
	cfg, err := config.Load(opts.envFile)
	if cfg == nil {
		return err
	}
	// ingest always writes to pgvector, whatever the server is configured to query
	cfg.SearchBackend = config.BackendPgVector
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	pg, err := store.NewPgStore(cfg.PgConn, cfg.EmbedDimensions)
	if err != nil {
		return fmt.Errorf("connect pgvector: %w", err)
	}
	defer pg.Close()

	results, err := ingestFiles(ctx, service.NewLLMClient(cfg), pg, files, opts)
	for _, r := range results {
		log.WithFields(log.Fields{
			"doc":          r.doc,
			"chunks_total": r.total,
			"chunks_saved": r.saved,
		}).Info("document ingested")
	}
	return err
}

// ingestFiles stores every chunk it can; chunks that fail to embed or insert
// are logged and skipped. Unreadable files are reported in the returned error.
func ingestFiles(ctx context.Context, emb service.Embedder, w chunkWriter, files []string, opts options) ([]result, error) {
	var (
		results []result
		errs    []error
	)
	for _, path := range files {
		text, err := pdf.ReadDocument(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		parts := pdf.ChunkByWords(pdf.Sanitize(text), opts.size, opts.overlap)
		if len(parts) == 0 {
			errs = append(errs, fmt.Errorf("%s: no text extracted", path))
			continue
		}

		docName := filepath.Base(path)
		title := opts.title
		if title == "" {
			title = docName
		}

		res := result{doc: docName, total: len(parts)}
		for i, p := range parts {
			id := fmt.Sprintf("%s_chunk_%d", docName, i)
			logger := log.WithField("chunk_id", id)

			vec, err := emb.Embedding(ctx, p)
			if err != nil {
				logger.WithError(err).Warn("embedding failed")
				continue
			}
			if err := w.Add(ctx, model.Chunk{ChunkID: id, Title: title, Content: p}, vec); err != nil {
				logger.WithError(err).Warn("insert failed")
				continue
			}
			res.saved++
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
