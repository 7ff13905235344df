package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rowsTestTemplate = "Hello {name}, about {topic}"

func TestCSVSource(t *testing.T) {
	table := strings.Join([]string{
		"name,topic",
		"Sam,trees",
		"Ada,rivers",
	}, "\n")

	src, err := newCSVSource(strings.NewReader(table), rowsTestTemplate)
	require.NoError(t, err)

	first, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "Sam", first.Title)
	assert.Equal(t, "Hello Sam, about trees", first.Prompt)

	second, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "Ada", second.Title)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVSourceSkipsRowsWithMissingVars(t *testing.T) {
	table := strings.Join([]string{
		"name,topic",
		"Sam,",
		"Ada,rivers",
	}, "\n")

	src, err := newCSVSource(strings.NewReader(table), rowsTestTemplate)
	require.NoError(t, err)

	_, err = src.Next()
	var skip *skipItemError
	require.ErrorAs(t, err, &skip)
	assert.Equal(t, "row 2", skip.Ref)
	assert.Equal(t, []string{"topic"}, skip.Missing)

	item, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "Ada", item.Title)
}

func TestCSVSourceBlankRowEndsIntake(t *testing.T) {
	table := strings.Join([]string{
		"name,topic",
		"Sam,trees",
		" , ",
		"Ada,rivers",
	}, "\n")

	src, err := newCSVSource(strings.NewReader(table), rowsTestTemplate)
	require.NoError(t, err)

	_, err = src.Next()
	require.NoError(t, err)

	_, err = src.Next()
	var stop *endOfDataError
	require.ErrorAs(t, err, &stop)
	assert.Equal(t, 3, stop.Row)

	// Nothing after the sentinel is processed.
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVSourceShortRecord(t *testing.T) {
	table := strings.Join([]string{
		"name,topic",
		"Sam",
	}, "\n")

	src, err := newCSVSource(strings.NewReader(table), rowsTestTemplate)
	require.NoError(t, err)

	_, err = src.Next()
	var skip *skipItemError
	require.ErrorAs(t, err, &skip)
	assert.Equal(t, []string{"topic"}, skip.Missing)
}

func TestCSVSourceTitleWithoutTemplateVars(t *testing.T) {
	src, err := newCSVSource(strings.NewReader("name\nSam"), "no placeholders here")
	require.NoError(t, err)

	item, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "row_0", item.Title)
}

func TestCSVSourceEmptyInput(t *testing.T) {
	_, err := newCSVSource(strings.NewReader(""), rowsTestTemplate)
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.txt"), []byte("first prompt\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "beta.txt"), []byte("second prompt"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("  \n"), 0o644))

	src, err := newFileSource(filepath.Join(dir, "*.txt"))
	require.NoError(t, err)

	first, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "alpha", first.Title)
	assert.Equal(t, "first prompt", first.Prompt)

	second, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "beta", second.Title)

	_, err = src.Next()
	var skip *skipItemError
	require.ErrorAs(t, err, &skip)
	assert.Contains(t, skip.Error(), "empty.txt")

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileSourceNoMatches(t *testing.T) {
	_, err := newFileSource(filepath.Join(t.TempDir(), "*.txt"))
	assert.Error(t, err)
}

func TestCollectRequests(t *testing.T) {
	table := strings.Join([]string{
		"name,topic",
		"Sam,trees",
		"NoTopic,",
		"Ada,rivers",
		",",
		"Ghost,unreached",
	}, "\n")

	src, err := newCSVSource(strings.NewReader(table), rowsTestTemplate)
	require.NoError(t, err)

	builder := newRequestBuilder("system", Config{Model: "m", MaxTokens: 10, Temperature: 0.5})
	require.NoError(t, collectRequests(src, builder))

	reqs := builder.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "request_0", reqs[0].CustomID)
	assert.Equal(t, "request_1", reqs[1].CustomID)
	assert.Equal(t, map[string]string{"request_0": "Sam", "request_1": "Ada"}, builder.Titles())
}

func TestSkipItemErrorMessageListsMissing(t *testing.T) {
	err := &skipItemError{Ref: "row 4", Missing: []string{"name", "topic"}}
	assert.Equal(t, "row 4 is missing variables: [name, topic]", err.Error())
	assert.False(t, errors.Is(err, io.EOF))
}
