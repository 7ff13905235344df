package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const childTimeout = 30 * time.Second

// toolServer exposes the pipeline as remotely callable tools. Every path
// argument is resolved against a single sandbox root; anything that escapes
// it is rejected outright.
type toolServer struct {
	cfg  Config
	root string

	// launch runs the pipeline binary as a child process; swapped out in
	// tests.
	launch func(args []string, timeout time.Duration) (stdout string, timedOut bool, err error)
}

func newToolServer(cfg Config) (*toolServer, error) {
	root, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &toolServer{cfg: cfg, root: root, launch: launchSelf}, nil
}

// resolvePath maps a tool-supplied path into the sandbox. Escapes are an
// error, never clamped back inside.
func (s *toolServer) resolvePath(rel string) (string, error) {
	abs := filepath.Join(s.root, rel)
	if filepath.IsAbs(rel) {
		abs = filepath.Clean(rel)
	}

	r, err := filepath.Rel(s.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("access denied: %q resolves outside the data directory", rel)
	}
	return abs, nil
}

func (s *toolServer) tools() []toolDef {
	return toolDefs
}

type toolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

var emptySchema = json.RawMessage(`{"type":"object","properties":{},"required":[]}`)

var toolDefs = []toolDef{
	{
		Name:        "welcome",
		Description: "Get started with the learning resource generator.",
		InputSchema: emptySchema,
	},
	{
		Name:        "update_system_prompt",
		Description: "Overwrite system_prompt.txt with new content.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "string", "description": "The new system prompt content"}
			},
			"required": ["content"]
		}`),
	},
	{
		Name:        "update_template",
		Description: "Overwrite template.txt with new content.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "string", "description": "The new template content"}
			},
			"required": ["content"]
		}`),
	},
	{
		Name:        "create_variables_csv",
		Description: "Create variables.csv from a title and a list of topics, with optional per-topic descriptions.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Main title for the learning resource"},
				"topics": {"type": "array", "items": {"type": "string"}},
				"descriptions": {"type": "array", "items": {"type": "string"}, "description": "Optional, must match topics in length"}
			},
			"required": ["title", "topics"]
		}`),
	},
	{
		Name:        "run_batch_processing",
		Description: "Start the batch pipeline using the files in the data directory. Returns the batch ID once submitted.",
		InputSchema: emptySchema,
	},
	{
		Name:        "check_batch_results",
		Description: "Retrieve the results of a batch job into the responses directory.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"batch_id": {"type": "string", "description": "ID of the batch to check"}
			},
			"required": ["batch_id"]
		}`),
	},
	{
		Name:        "read_file",
		Description: "Read a file from the data directory.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Path relative to the data directory"}
			},
			"required": ["path"]
		}`),
	},
	{
		Name:        "list_directory",
		Description: "List files in the data directory.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Directory path relative to the data directory"}
			},
			"required": []
		}`),
	},
	{
		Name:        "create_learning_resource_structure",
		Description: "Format a learning resource outline from main topics and optional subtopics.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"subject": {"type": "string"},
				"main_topics": {"type": "array", "items": {"type": "string"}},
				"subtopics": {"type": "object", "additionalProperties": {"type": "array", "items": {"type": "string"}}}
			},
			"required": ["subject", "main_topics"]
		}`),
	},
	{
		Name:        "generate_system_prompt_template",
		Description: "Generate a system prompt template for a subject area.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"subject": {"type": "string"},
				"format_style": {"type": "string", "description": "markdown (default) or xml"}
			},
			"required": ["subject"]
		}`),
	},
	{
		Name:        "generate_template",
		Description: "Generate a request template for a subject area.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"subject": {"type": "string"}
			},
			"required": ["subject"]
		}`),
	},
}

func (s *toolServer) callTool(name string, args json.RawMessage) (string, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	switch name {
	case "welcome":
		return welcomeText, nil
	case "update_system_prompt":
		return s.updateFileTool("system_prompt.txt", args)
	case "update_template":
		return s.updateFileTool("template.txt", args)
	case "create_variables_csv":
		return s.createVariablesCSV(args)
	case "run_batch_processing":
		return s.runBatchProcessing()
	case "check_batch_results":
		return s.checkBatchResults(args)
	case "read_file":
		return s.readFileTool(args)
	case "list_directory":
		return s.listDirectoryTool(args)
	case "create_learning_resource_structure":
		return createLearningResourceStructure(args)
	case "generate_system_prompt_template":
		return generateSystemPromptTemplate(args)
	case "generate_template":
		return generateTemplate(args)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

func (s *toolServer) updateFileTool(filename string, args json.RawMessage) (string, error) {
	var in struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}

	path, err := s.resolvePath(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
		return "", fmt.Errorf("updating %s: %w", filename, err)
	}
	return fmt.Sprintf("Successfully updated %s (%d bytes)", filename, len(in.Content)), nil
}

func (s *toolServer) createVariablesCSV(args json.RawMessage) (string, error) {
	var in struct {
		Title        string   `json:"title"`
		Topics       []string `json:"topics"`
		Descriptions []string `json:"descriptions"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}

	if in.Descriptions == nil {
		in.Descriptions = make([]string, len(in.Topics))
	}
	if len(in.Descriptions) != len(in.Topics) {
		return "", fmt.Errorf("number of topics (%d) must match number of descriptions (%d)",
			len(in.Topics), len(in.Descriptions))
	}

	path, err := s.resolvePath("variables.csv")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"title", "description"})

	// First row pairs the title with a synthesized description: the title
	// followed by the full topic list.
	fullDescription := in.Title + "\n\n" + strings.Join(in.Topics, "\n")
	w.Write([]string{in.Title, fullDescription})

	rows := 1
	for i, topic := range in.Topics {
		if in.Descriptions[i] != "" {
			w.Write([]string{topic, in.Descriptions[i]})
			rows++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("writing variables table: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing variables table: %w", err)
	}
	return fmt.Sprintf("Successfully created variables.csv with %d rows", rows), nil
}

func (s *toolServer) runBatchProcessing() (string, error) {
	args := []string{
		"run",
		"-csv", filepath.Join(s.root, "variables.csv"),
		"-system", filepath.Join(s.root, "system_prompt.txt"),
		"-template", filepath.Join(s.root, "template.txt"),
		"-output-dir", filepath.Join(s.root, "responses"),
		"-id-map", filepath.Join(s.root, "id_map.json"),
		"-model", s.cfg.Model,
		"-max-tokens", fmt.Sprintf("%d", s.cfg.MaxTokens),
		"-temperature", fmt.Sprintf("%g", s.cfg.Temperature),
	}

	out, timedOut, err := s.launch(args, childTimeout)
	if timedOut {
		// Batch jobs legitimately run long; the child keeps going.
		return "Batch processing started, but the command is still running. This is normal as batch processing continues in the background.", nil
	}
	if err != nil {
		return "", fmt.Errorf("running batch processing: %w", err)
	}

	if id := extractBatchID(out); id != "" {
		return fmt.Sprintf("Batch processing started successfully. Batch ID: %s\n\nProcessing may take several minutes; check back with check_batch_results.", id), nil
	}
	return "Batch processing started, but the batch ID could not be extracted from the output.", nil
}

func (s *toolServer) checkBatchResults(args json.RawMessage) (string, error) {
	var in struct {
		BatchID string `json:"batch_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}
	if in.BatchID == "" {
		return "", fmt.Errorf("batch_id is required")
	}

	childArgs := []string{
		"results",
		"-batch-id", in.BatchID,
		"-output-dir", filepath.Join(s.root, "responses"),
		"-id-map", filepath.Join(s.root, "id_map.json"),
	}

	out, timedOut, err := s.launch(childArgs, childTimeout)
	if timedOut {
		return "The check is still running. This might take a while for large batches.", nil
	}
	if err != nil {
		return "", fmt.Errorf("checking batch results: %w", err)
	}
	return "Batch results check completed:\n\n" + out, nil
}

const batchIDMarker = "Batch submitted with ID:"

func extractBatchID(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if idx := strings.Index(line, batchIDMarker); idx >= 0 {
			return strings.TrimSpace(line[idx+len(batchIDMarker):])
		}
	}
	return ""
}

// launchSelf re-executes this binary with the given subcommand arguments,
// waiting up to timeout. On timeout the child is left running detached.
func launchSelf(args []string, timeout time.Duration) (string, bool, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", false, fmt.Errorf("locating executable: %w", err)
	}

	cmd := exec.Command(exe, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Start(); err != nil {
		return "", false, fmt.Errorf("starting %s: %w", args[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return "", false, fmt.Errorf("%s failed: %v: %s", args[0], err, strings.TrimSpace(errBuf.String()))
		}
		return outBuf.String(), false, nil
	case <-time.After(timeout):
		return "", true, nil
	}
}

func (s *toolServer) readFileTool(args json.RawMessage) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}

	path, err := s.resolvePath(in.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", in.Path, err)
	}
	return string(data), nil
}

func (s *toolServer) listDirectoryTool(args json.RawMessage) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}

	path, err := s.resolvePath(in.Path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", in.Path, err)
	}

	label := in.Path
	if label == "" {
		label = "root directory"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Contents of %s:\n", label)
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&sb, "%s (Directory, -)\n", e.Name())
			continue
		}
		size := "-"
		if info, err := e.Info(); err == nil {
			size = fmt.Sprintf("%d bytes", info.Size())
		}
		fmt.Fprintf(&sb, "%s (File, %s)\n", e.Name(), size)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func createLearningResourceStructure(args json.RawMessage) (string, error) {
	var in struct {
		Subject    string              `json:"subject"`
		MainTopics []string            `json:"main_topics"`
		Subtopics  map[string][]string `json:"subtopics"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Learning Resource: %s\n\n", in.Subject)
	sb.WriteString("## Table of Contents\n\n")

	for i, topic := range in.MainTopics {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, topic)
		for j, sub := range in.Subtopics[topic] {
			fmt.Fprintf(&sb, "   %d.%d. %s\n", i+1, j+1, sub)
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

func generateSystemPromptTemplate(args json.RawMessage) (string, error) {
	var in struct {
		Subject     string `json:"subject"`
		FormatStyle string `json:"format_style"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}

	if strings.EqualFold(in.FormatStyle, "xml") {
		return fmt.Sprintf(xmlSystemPrompt, in.Subject, in.Subject), nil
	}
	return fmt.Sprintf(markdownSystemPrompt, in.Subject, in.Subject), nil
}

func generateTemplate(args json.RawMessage) (string, error) {
	var in struct {
		Subject string `json:"subject"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("bad arguments: %w", err)
	}

	return fmt.Sprintf("I need a beginner's guide to {title}. Could you make that for my %s learning materials? This will be shared with classmates, so the tone should be educational and not directed to me individually but something anyone could use.\n\n{description}\n", in.Subject), nil
}

const welcomeText = `# Welcome to the Learning Resource Generator!

This server helps you create structured learning resources using batch processing.

## Workflow

1. **Discuss the subject** you want to create learning materials for
2. **Create a learning structure** with create_learning_resource_structure
3. **Generate a system prompt** with generate_system_prompt_template
4. **Save it** with update_system_prompt
5. **Create a template** with generate_template
6. **Save it** with update_template
7. **Build the variables table** with create_variables_csv
8. **Run the batch** with run_batch_processing
9. **Check the results** with check_batch_results

What subject would you like to create learning resources for?`

const markdownSystemPrompt = `# %s Learning Resource Generator

## Role and Purpose
- Create consistent, well-formatted, and informative %s learning materials
- Generate beginner-friendly content that's accessible to all learners
- Provide practical examples and clear explanations

## Formatting Guidelines
- Use emoji icons for section headers
- Format code examples in appropriate language blocks
- Include a clear header with the topic name
- Maintain consistent section ordering
- Use clear, concise descriptions

## Standard Template Structure

### Title
(related emoji) {topic} Learning Guide (related emoji)

### Introduction
- Clear, concise explanation of the topic
- Why it's important and how it fits into the broader subject
- Prerequisites or related concepts

### Core Concepts
- Key ideas and principles
- Clear, accessible explanations

### Examples and Usage
- Real-world applications
- Step-by-step walkthroughs
- Code samples where relevant

### Best Practices
- Industry standards
- Common pitfalls to avoid

### Advantages and Disadvantages
- Key strengths and benefits
- Limitations and drawbacks

### Further Learning
- Books, articles, and tutorials
- Exercises and projects

## Response Format
1. Start with the standard template
2. Customize sections based on the specific topic
3. Include practical examples and applications
4. End with a horizontal rule (---)

## Tone and Style
- Educational and informative
- Beginner-friendly but not oversimplified
- Neutral and inclusive language`

const xmlSystemPrompt = `<?xml version="1.0" encoding="UTF-8"?>
<system_prompt>
    <identity>
        <role>%s Learning Resource Generator</role>
        <purpose>Create consistent, well-formatted, and informative %s learning materials</purpose>
    </identity>
    <core_behavior>
        <formatting_rules>
            <rule>Use emoji icons for section headers</rule>
            <rule>Format code examples in appropriate language blocks</rule>
            <rule>Include a clear header with the topic name</rule>
            <rule>Maintain consistent section ordering</rule>
        </formatting_rules>
        <template_structure>
            <section name="title">(related emoji) {topic} Learning Guide (related emoji)</section>
            <section name="introduction" required="true">Clear, concise explanation of the topic</section>
            <section name="core_concepts" required="true">Key ideas and principles</section>
            <section name="examples" required="true">Real-world applications and code samples</section>
            <section name="advantages_disadvantages" required="true">Strengths and limitations</section>
            <section name="further_learning" required="true">Resources, practice, communities</section>
        </template_structure>
    </core_behavior>
    <output_guidelines>
        <format>Markdown with code blocks</format>
        <style>Clear, concise, and educational</style>
    </output_guidelines>
    <response_pattern>
        Start from the standard template, customize per topic, include practical
        examples, and end with a horizontal rule (---).
    </response_pattern>
</system_prompt>`
