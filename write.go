package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// materializer writes one text file per succeeded outcome, named from the
// correlation map. Writes overwrite whole files; a failed outcome never
// touches the disk, so earlier output can't be corrupted.
type materializer struct {
	outDir string
	titles map[string]string
	// strict drops outcomes with an unknown correlation ID instead of
	// falling back to the raw ID. The submitting run knows every ID it
	// handed out; a detached retrieval run may not.
	strict bool
	out    io.Writer
	errOut io.Writer

	seen map[string]bool
}

func newMaterializer(outDir string, titles map[string]string, strict bool, out, errOut io.Writer) (*materializer, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if titles == nil {
		titles = make(map[string]string)
	}
	return &materializer{
		outDir: outDir,
		titles: titles,
		strict: strict,
		out:    out,
		errOut: errOut,
		seen:   make(map[string]bool),
	}, nil
}

// Write handles one outcome. Service-level failures are reported, not
// returned; only filesystem trouble is an error.
func (m *materializer) Write(o batchOutcome) error {
	id := o.ID()
	m.seen[id] = true

	title, known := m.titles[id]
	if !known {
		if m.strict {
			fmt.Fprintf(m.errOut, "warning: received result with unknown correlation ID: %s\n", id)
			return nil
		}
		title = id
		fmt.Fprintf(m.errOut, "warning: no title recorded for %s, using the ID as filename\n", id)
	}

	if o.Result.Type != "succeeded" {
		msg := "Unknown error"
		if o.Result.Error != nil && o.Result.Error.Message != "" {
			msg = o.Result.Error.Message
		}
		fmt.Fprintf(m.errOut, "Error processing %q: %s\n", title, msg)
		return nil
	}

	path := filepath.Join(m.outDir, sanitizeStem(title)+".txt")
	if err := os.WriteFile(path, []byte(outcomeText(o)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Fprintf(m.out, "Saved response for %q to %s\n", title, path)
	return nil
}

// MissingIDs returns the correlation IDs that never produced an outcome,
// sorted. A non-empty result after an ended batch means the service
// under-delivered on the submitted request count.
func (m *materializer) MissingIDs() []string {
	var missing []string
	for id := range m.titles {
		if !m.seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

func outcomeText(o batchOutcome) string {
	if o.Result.Message != nil {
		for _, block := range o.Result.Message.Content {
			if block.Type == "text" {
				return block.Text
			}
		}
	}
	return "No content returned"
}

func sanitizeStem(title string) string {
	return strings.ReplaceAll(title, " ", "_")
}
