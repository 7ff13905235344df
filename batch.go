package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// runRun is the main pipeline: read inputs, build requests, submit the
// batch, poll until it ends, then write one output file per result.
func runRun(cfg Config, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	csvPath := fs.String("csv", "", "variables table with a header row")
	filesGlob := fs.String("files", "", "glob of standalone prompt files (alternative to -csv)")
	systemPath := fs.String("system", "system_prompt.txt", "system prompt file")
	templatePath := fs.String("template", "template.txt", "message template file")
	model := fs.String("model", cfg.Model, "model to use")
	maxTokens := fs.Int("max-tokens", cfg.MaxTokens, "maximum tokens in each response")
	temperature := fs.Float64("temperature", cfg.Temperature, "sampling temperature (0.0-1.0)")
	outputDir := fs.String("output-dir", "./responses", "directory to save responses")
	apiKey := fs.String("api-key", "", "API key (overrides .env and environment)")
	pollInterval := fs.Int("poll-interval", 10, "seconds between status polls")
	fallback := fs.Bool("fallback", false, "use the HTTP download fallback if the result stream fails")
	idMapPath := fs.String("id-map", "", "optional JSON file to record the request-to-title map")
	fs.Parse(args)

	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}
	cfg.Model = *model
	cfg.MaxTokens = *maxTokens
	cfg.Temperature = *temperature

	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "error: API key not found, set ANTHROPIC_API_KEY or pass -api-key")
		os.Exit(1)
	}
	if (*csvPath == "") == (*filesGlob == "") {
		fmt.Fprintln(os.Stderr, "error: exactly one of -csv or -files is required")
		os.Exit(1)
	}

	system, err := readTrimmedFile(*systemPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var source promptSource
	if *csvPath != "" {
		tmpl, err := readTrimmedFile(*templatePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Template requires these variables: %v\n", templateVars(tmpl))

		f, err := os.Open(*csvPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()

		source, err = newCSVSource(f, tmpl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		source, err = newFileSource(*filesGlob)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	builder := newRequestBuilder(system, cfg)
	if err := collectRequests(source, builder); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(builder.Requests()) == 0 {
		fmt.Println("No valid requests found. Exiting.")
		return
	}

	if *idMapPath != "" {
		if err := saveIDMap(*idMapPath, builder.Titles()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	ctx := context.Background()
	client := newAnthropicClient(cfg.APIKey, cfg.BaseURL)
	lifecycle := newBatchLifecycle(client, time.Duration(*pollInterval)*time.Second, os.Stdout)

	if err := lifecycle.Submit(ctx, builder.Requests()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := lifecycle.WaitUntilEnded(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	mat, err := newMaterializer(*outputDir, builder.Titles(), true, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := lifecycle.Retrieve(ctx, *fallback, mat.Write); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	reportMissing(mat, os.Stderr)
	fmt.Println("All processing complete!")
}

// collectRequests drains the source into the builder. Skips are reported
// and survive; the end-of-data sentinel stops intake for good.
func collectRequests(source promptSource, builder *requestBuilder) error {
	for {
		item, err := source.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		var skip *skipItemError
		if errors.As(err, &skip) {
			fmt.Fprintf(os.Stderr, "warning: %v, skipping\n", skip)
			continue
		}
		var stop *endOfDataError
		if errors.As(err, &stop) {
			fmt.Printf("Empty row detected at row %d. Stopping processing.\n", stop.Row)
			return nil
		}
		if err != nil {
			return err
		}

		builder.Add(item)
	}
}

func reportMissing(mat *materializer, errOut io.Writer) {
	missing := mat.MissingIDs()
	if len(missing) == 0 {
		return
	}
	fmt.Fprintf(errOut, "warning: no result received for %d request(s): %s\n",
		len(missing), strings.Join(missing, ", "))
}

func readTrimmedFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
