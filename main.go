package main

import (
	"fmt"
	"os"
)

func main() {
	cfg := loadConfig()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run":
		runRun(cfg, args)
	case "results":
		runResults(cfg, args)
	case "status":
		runStatus(cfg, args)
	case "serve":
		runServe(cfg, args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: promptbatch <command> [flags]

commands:
  run      fill a template from a variables table (or standalone files),
           submit the batch, wait for it, and save the responses
  results  retrieve responses for an already submitted batch by ID
  status   watch a batch job's progress live
  serve    expose the pipeline as a stdio tool server

Run "promptbatch <command> -h" for the flags of each command.

Environment (a .env file in the working directory is honored):
  ANTHROPIC_API_KEY     API key (required for run/results/status)
  MODEL                 default model
  MAX_TOKENS            default response token limit
  TEMPERATURE           default sampling temperature
  PROMPTBATCH_DATA_DIR  sandbox root for serve`)
}
