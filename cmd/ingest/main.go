// Command ingest loads the portfolio content directory, embeds it, and
// upserts it into the vector store. Run after editing content, before the
// server can answer about it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/morav/folio-backend/internal/app"
	"github.com/morav/folio-backend/internal/ingestion"
)

func main() {
	dir := flag.String("content", "content", "directory of markdown content files")
	flag.Parse()

	ctx := context.Background()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.Shutdown(ctx)

	items, chunks, err := ingestion.LoadContentDir(*dir)
	if err != nil {
		a.Log.Error("content load failed", "dir", *dir, "error", err)
		os.Exit(1)
	}
	a.Log.Info("content loaded", "dir", *dir, "items", len(items), "chunks", len(chunks))

	if err := a.Ingestor.UpsertCorpus(ctx, items, chunks); err != nil {
		a.Log.Error("corpus upsert failed", "error", err)
		os.Exit(1)
	}
	if err := a.Catalog.Refresh(ctx); err != nil {
		a.Log.Warn("catalog refresh after ingest failed", "error", err)
	}
	a.Log.Info("ingest complete")
}
