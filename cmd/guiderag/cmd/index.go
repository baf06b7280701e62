package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/questline/guiderag/internal/service"
	"github.com/questline/guiderag/internal/store"
)

// indexBatchSize bounds how many documents are embedded and written per
// ingestion round.
const indexBatchSize = 200

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <corpus.jsonl>",
		Short: "Ingest a preprocessed guide corpus",
		Long: `Ingest a corpus of preprocessed guide chunks into the knowledge base.

The input is a JSONL file, one document per line:

  {"doc_id": "...", "content": "...", "metadata": {"title": "...",
   "class_name": "...", "quality_score": "8.5", "views": "1200", ...}}

Documents are persisted, embedded in batches, and indexed for both
lexical and dense retrieval. Re-ingesting an ID replaces it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runIndex(ctx, cmd, args[0])
		},
	}

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("close failed", slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	total, err := ingestFile(ctx, svc, path)
	if err != nil {
		return err
	}

	count, err := svc.DocumentCount(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents in %s (corpus: %d)\n",
		total, time.Since(start).Round(time.Millisecond), count)
	return nil
}

// ingestFile streams the JSONL corpus in batches. Malformed lines abort
// with their line number rather than being silently skipped, because a
// partial corpus produces silently wrong answers.
func ingestFile(ctx context.Context, svc *service.Service, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var (
		batch []*store.Document
		total int
		line  int
	)
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var doc store.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		if doc.ID == "" || doc.Content == "" {
			return total, fmt.Errorf("line %d: doc_id and content are required", line)
		}

		batch = append(batch, &doc)
		if len(batch) >= indexBatchSize {
			if err := svc.Index(ctx, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
			slog.Info("ingestion progress", slog.Int("documents", total))
		}
	}
	if err := scanner.Err(); err != nil {
		return total, fmt.Errorf("read corpus: %w", err)
	}

	if len(batch) > 0 {
		if err := svc.Index(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
	}
	return total, nil
}
