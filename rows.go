package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// promptItem is one ready-to-submit prompt plus the title used to name its
// output file.
type promptItem struct {
	Title  string
	Prompt string
}

// promptSource yields prompt items until io.EOF. A *skipItemError return is
// non-fatal: the caller reports it and moves on. A *endOfDataError return
// terminates intake entirely.
type promptSource interface {
	Next() (promptItem, error)
}

// skipItemError marks one rejected input row or file.
type skipItemError struct {
	Ref     string
	Missing []string // missing template variables, empty for file inputs
}

func (e *skipItemError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s is missing variables: [%s]", e.Ref, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s is empty", e.Ref)
}

// endOfDataError marks the all-blank row that ends a variables table.
type endOfDataError struct {
	Row int
}

func (e *endOfDataError) Error() string {
	return fmt.Sprintf("empty row detected at row %d", e.Row)
}

// csvSource reads a variables table: a header row naming each field, then
// one record per request. Records are matched against the template and
// filled; the first template variable's value becomes the title.
type csvSource struct {
	r     *csv.Reader
	tmpl  string
	vars  []string
	heads []string
	index int // 0-based data record index
	done  bool
}

func newCSVSource(r io.Reader, tmpl string) (*csvSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	heads, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("variables table has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading table header: %w", err)
	}

	return &csvSource{
		r:     cr,
		tmpl:  tmpl,
		vars:  templateVars(tmpl),
		heads: heads,
	}, nil
}

func (s *csvSource) Next() (promptItem, error) {
	if s.done {
		return promptItem{}, io.EOF
	}

	rec, err := s.r.Read()
	if err == io.EOF {
		s.done = true
		return promptItem{}, io.EOF
	}
	if err != nil {
		return promptItem{}, fmt.Errorf("reading table row: %w", err)
	}

	index := s.index
	s.index++

	row := make(map[string]string, len(s.heads))
	for i, h := range s.heads {
		if i < len(rec) {
			row[h] = rec[i]
		} else {
			row[h] = ""
		}
	}

	// Header is row 1, so the first data record is row 2.
	rowNum := index + 2

	if allBlank(rec) {
		s.done = true
		return promptItem{}, &endOfDataError{Row: rowNum}
	}

	filled, missing := fillTemplate(s.tmpl, row)
	if len(missing) > 0 {
		return promptItem{}, &skipItemError{Ref: fmt.Sprintf("row %d", rowNum), Missing: missing}
	}

	title := fmt.Sprintf("row_%d", index)
	if len(s.vars) > 0 && row[s.vars[0]] != "" {
		title = row[s.vars[0]]
	}

	return promptItem{Title: title, Prompt: filled}, nil
}

func allBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// fileSource yields one prompt per text file matched by a glob pattern. The
// trimmed file content is the prompt and the filename stem is the title.
type fileSource struct {
	paths []string
	i     int
}

func newFileSource(pattern string) (*fileSource, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad file pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match %q", pattern)
	}
	sort.Strings(paths)
	return &fileSource{paths: paths}, nil
}

func (s *fileSource) Next() (promptItem, error) {
	if s.i >= len(s.paths) {
		return promptItem{}, io.EOF
	}

	path := s.paths[s.i]
	s.i++

	data, err := os.ReadFile(path)
	if err != nil {
		return promptItem{}, fmt.Errorf("reading %s: %w", path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return promptItem{}, &skipItemError{Ref: path}
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return promptItem{Title: stem, Prompt: text}, nil
}
