package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"
)

// runResults retrieves the outcomes of a previously submitted batch. With
// an id-map file from the submitting run the output files get their proper
// titles; without one the raw correlation IDs are used.
func runResults(cfg Config, args []string) {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	batchID := fs.String("batch-id", "", "ID of the batch (e.g. msgbatch_01PN3XYMTxabV9tPkucuy9mG)")
	outputDir := fs.String("output-dir", "./responses", "directory to save responses")
	apiKey := fs.String("api-key", "", "API key (overrides .env and environment)")
	idMapPath := fs.String("id-map", "", "JSON file mapping correlation IDs to titles")
	pollInterval := fs.Int("poll-interval", 10, "seconds between status polls while waiting")
	fallback := fs.Bool("fallback", false, "use the HTTP download fallback if the result stream fails")
	fs.Parse(args)

	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}
	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "error: API key not found, set ANTHROPIC_API_KEY or pass -api-key")
		os.Exit(1)
	}
	if *batchID == "" {
		fmt.Fprintln(os.Stderr, "error: -batch-id is required")
		os.Exit(1)
	}

	titles := make(map[string]string)
	if *idMapPath != "" {
		loaded, err := loadIDMap(*idMapPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		} else {
			titles = loaded
		}
	}

	ctx := context.Background()
	client := newAnthropicClient(cfg.APIKey, cfg.BaseURL)
	lifecycle := newBatchLifecycle(client, time.Duration(*pollInterval)*time.Second, os.Stdout)

	if err := lifecycle.Resume(ctx, *batchID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := lifecycle.WaitUntilEnded(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	mat, err := newMaterializer(*outputDir, titles, false, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := lifecycle.Retrieve(ctx, *fallback, mat.Write); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(titles) > 0 {
		reportMissing(mat, os.Stderr)
	}
	fmt.Println("All results processed.")
}
