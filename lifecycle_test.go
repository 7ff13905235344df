package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService scripts a minimal batch service: one job whose status advances
// on every poll, with results served both streamed and via download URL.
type fakeService struct {
	t *testing.T

	statuses      []string // consumed by successive status fetches
	resultsBody   string
	failStream    bool
	streamCalls   int
	downloadCalls int

	server *httptest.Server
}

func newFakeService(t *testing.T, statuses []string, results string) *fakeService {
	fs := &fakeService{t: t, statuses: statuses, resultsBody: results}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages/batches", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(batchJob{
			ID:               "msgbatch_fake",
			ProcessingStatus: "in_progress",
			ResultsURL:       fs.server.URL + "/download",
		})
	})
	mux.HandleFunc("GET /v1/messages/batches/msgbatch_fake", func(w http.ResponseWriter, r *http.Request) {
		status := statusEnded
		if len(fs.statuses) > 0 {
			status, fs.statuses = fs.statuses[0], fs.statuses[1:]
		}
		json.NewEncoder(w).Encode(batchJob{
			ID:               "msgbatch_fake",
			ProcessingStatus: status,
			ResultsURL:       fs.server.URL + "/download",
		})
	})
	mux.HandleFunc("GET /v1/messages/batches/msgbatch_fake/results", func(w http.ResponseWriter, r *http.Request) {
		fs.streamCalls++
		if fs.failStream {
			http.Error(w, "stream broken", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, fs.resultsBody)
	})
	mux.HandleFunc("GET /download", func(w http.ResponseWriter, r *http.Request) {
		fs.downloadCalls++
		fmt.Fprint(w, fs.resultsBody)
	})

	fs.server = httptest.NewServer(mux)
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeService) lifecycle() (*batchLifecycle, *bytes.Buffer, *[]time.Duration) {
	var out bytes.Buffer
	client := newAnthropicClient("secret", fs.server.URL)
	l := newBatchLifecycle(client, 10*time.Second, &out)

	sleeps := &[]time.Duration{}
	l.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return l, &out, sleeps
}

func TestLifecycleRejectsEmptySubmit(t *testing.T) {
	fs := newFakeService(t, nil, "")
	l, _, _ := fs.lifecycle()

	err := l.Submit(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid requests")
	assert.Equal(t, phaseBuilding, l.phase)
}

func TestLifecycleSubmitPollRetrieve(t *testing.T) {
	results := jsonLines(t, succeededOutcome("request_0", "Trees are plants."))
	fs := newFakeService(t, []string{"in_progress", statusEnded}, results)
	l, out, sleeps := fs.lifecycle()

	ctx := context.Background()
	reqs := []batchRequest{{CustomID: "request_0"}}

	require.NoError(t, l.Submit(ctx, reqs))
	assert.Equal(t, phaseSubmitted, l.phase)
	assert.Equal(t, "msgbatch_fake", l.job.ID)
	assert.Contains(t, out.String(), "Batch submitted with ID: msgbatch_fake")

	require.NoError(t, l.WaitUntilEnded(ctx))
	assert.Equal(t, phaseEnded, l.phase)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, *sleeps)

	var got []batchOutcome
	require.NoError(t, l.Retrieve(ctx, false, func(o batchOutcome) error {
		got = append(got, o)
		return nil
	}))
	assert.Equal(t, phaseRetrieved, l.phase)
	require.Len(t, got, 1)
	assert.Equal(t, "request_0", got[0].ID())
	assert.Equal(t, 0, fs.downloadCalls, "fallback must not run when the stream works")
}

func TestLifecycleRetrieveBeforeEnded(t *testing.T) {
	fs := newFakeService(t, nil, "")
	l, _, _ := fs.lifecycle()

	err := l.Retrieve(context.Background(), false, func(batchOutcome) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not ended")
}

func TestLifecycleStreamFailureWithoutFallback(t *testing.T) {
	fs := newFakeService(t, []string{statusEnded}, "")
	fs.failStream = true
	l, _, _ := fs.lifecycle()

	ctx := context.Background()
	require.NoError(t, l.Submit(ctx, []batchRequest{{CustomID: "request_0"}}))
	require.NoError(t, l.WaitUntilEnded(ctx))

	err := l.Retrieve(ctx, false, func(batchOutcome) error { return nil })
	require.Error(t, err)
	assert.Equal(t, phaseFailed, l.phase)
	assert.Equal(t, 0, fs.downloadCalls)
}

func TestLifecycleStreamFailureWithFallback(t *testing.T) {
	results := jsonLines(t, succeededOutcome("request_0", "hello"))
	fs := newFakeService(t, []string{statusEnded}, results)
	fs.failStream = true
	l, out, _ := fs.lifecycle()

	ctx := context.Background()
	require.NoError(t, l.Submit(ctx, []batchRequest{{CustomID: "request_0"}}))
	require.NoError(t, l.WaitUntilEnded(ctx))

	var got []batchOutcome
	require.NoError(t, l.Retrieve(ctx, true, func(o batchOutcome) error {
		got = append(got, o)
		return nil
	}))
	assert.Equal(t, phaseRetrieved, l.phase)
	assert.Equal(t, 1, fs.downloadCalls)
	require.Len(t, got, 1)
	assert.Contains(t, out.String(), "falling back to HTTP download")
}

func TestLifecycleResume(t *testing.T) {
	fs := newFakeService(t, []string{statusEnded}, "")
	l, _, _ := fs.lifecycle()

	require.NoError(t, l.Resume(context.Background(), "msgbatch_fake"))
	assert.Equal(t, phaseEnded, l.phase)
}

func TestLifecycleResumeStillRunning(t *testing.T) {
	fs := newFakeService(t, []string{"in_progress", statusEnded}, "")
	l, _, sleeps := fs.lifecycle()

	ctx := context.Background()
	require.NoError(t, l.Resume(ctx, "msgbatch_fake"))
	assert.Equal(t, phaseSubmitted, l.phase)

	require.NoError(t, l.WaitUntilEnded(ctx))
	assert.Equal(t, phaseEnded, l.phase)
	assert.Len(t, *sleeps, 1)
}

func TestLifecyclePhaseStrings(t *testing.T) {
	assert.Equal(t, "building", phaseBuilding.String())
	assert.Equal(t, "retrieved", phaseRetrieved.String())
	assert.Equal(t, "failed", phaseFailed.String())
}
