package main

import (
	"context"
	"fmt"
	"io"
	"time"
)

type lifecyclePhase int

const (
	phaseBuilding lifecyclePhase = iota
	phaseSubmitted
	phasePolling
	phaseEnded
	phaseRetrieved
	phaseFailed
)

func (p lifecyclePhase) String() string {
	switch p {
	case phaseBuilding:
		return "building"
	case phaseSubmitted:
		return "submitted"
	case phasePolling:
		return "polling"
	case phaseEnded:
		return "ended"
	case phaseRetrieved:
		return "retrieved"
	case phaseFailed:
		return "failed"
	}
	return "unknown"
}

// batchLifecycle drives one batch job from submission to retrieved results:
// building -> submitted -> polling -> ended -> retrieved, with failed
// reachable from submitted and polling. Submission and polling get no
// retries; a failure there aborts the run. Only retrieval has a fallback.
type batchLifecycle struct {
	client       *anthropicClient
	pollInterval time.Duration
	out          io.Writer

	phase lifecyclePhase
	job   *batchJob

	sleep func(time.Duration) // stubbed in tests
}

func newBatchLifecycle(client *anthropicClient, pollInterval time.Duration, out io.Writer) *batchLifecycle {
	return &batchLifecycle{
		client:       client,
		pollInterval: pollInterval,
		out:          out,
		phase:        phaseBuilding,
		sleep:        time.Sleep,
	}
}

// Submit sends the request set as one batch. An empty set is reported and
// never submitted.
func (l *batchLifecycle) Submit(ctx context.Context, reqs []batchRequest) error {
	if len(reqs) == 0 {
		return fmt.Errorf("no valid requests to submit")
	}

	fmt.Fprintf(l.out, "Submitting batch of %d requests...\n", len(reqs))

	job, err := l.client.CreateBatch(ctx, reqs)
	if err != nil {
		l.phase = phaseFailed
		return err
	}

	l.job = job
	l.phase = phaseSubmitted
	fmt.Fprintf(l.out, "Batch submitted with ID: %s\n", job.ID)
	fmt.Fprintf(l.out, "Initial status: %s\n", job.ProcessingStatus)
	fmt.Fprintf(l.out, "Request counts: %s\n", job.RequestCounts)
	return nil
}

// Resume attaches the lifecycle to an already submitted batch so a separate
// retrieval run can pick it up by ID.
func (l *batchLifecycle) Resume(ctx context.Context, batchID string) error {
	job, err := l.client.GetBatch(ctx, batchID)
	if err != nil {
		l.phase = phaseFailed
		return err
	}
	l.job = job
	l.phase = phaseSubmitted
	if job.Ended() {
		l.phase = phaseEnded
	}
	fmt.Fprintf(l.out, "Batch status: %s\n", job.ProcessingStatus)
	fmt.Fprintf(l.out, "Request counts: %s\n", job.RequestCounts)
	return nil
}

// WaitUntilEnded polls at the fixed interval until the job reaches its
// terminal state. No retry cap: batch jobs routinely run for minutes to
// hours, and interruption is the caller's job.
func (l *batchLifecycle) WaitUntilEnded(ctx context.Context) error {
	if l.phase == phaseEnded {
		return nil
	}
	if l.job == nil {
		return fmt.Errorf("no batch submitted")
	}

	l.phase = phasePolling
	for {
		if l.job.Ended() {
			l.phase = phaseEnded
			fmt.Fprintln(l.out, "Batch processing complete!")
			return nil
		}

		fmt.Fprintf(l.out, "Checking batch status... (polling every %s)\n", l.pollInterval)
		l.sleep(l.pollInterval)

		if err := ctx.Err(); err != nil {
			l.phase = phaseFailed
			return err
		}

		job, err := l.client.GetBatch(ctx, l.job.ID)
		if err != nil {
			l.phase = phaseFailed
			return err
		}
		l.job = job
		fmt.Fprintf(l.out, "Status: %s\n", job.ProcessingStatus)
		fmt.Fprintf(l.out, "Counts: %s\n", job.RequestCounts)
	}
}

// Retrieve streams outcomes through yield, preferring the structured results
// endpoint. The plain-HTTP download runs only when the primary path failed
// and the caller opted in; it must produce the same outcomes.
func (l *batchLifecycle) Retrieve(ctx context.Context, useFallback bool, yield func(batchOutcome) error) error {
	if l.phase != phaseEnded {
		return fmt.Errorf("batch has not ended (phase %s)", l.phase)
	}

	fmt.Fprintln(l.out, "Processing results...")
	primary := &streamSource{client: l.client}
	err := primary.ForEach(ctx, l.job, yield)
	if err == nil {
		l.phase = phaseRetrieved
		return nil
	}

	if !useFallback {
		l.phase = phaseFailed
		return err
	}

	fmt.Fprintf(l.out, "warning: result stream failed (%v), falling back to HTTP download\n", err)
	fallback := &fallbackSource{client: l.client}
	if err := fallback.ForEach(ctx, l.job, yield); err != nil {
		l.phase = phaseFailed
		return err
	}
	l.phase = phaseRetrieved
	return nil
}
