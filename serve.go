package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// The tool server speaks line-delimited JSON-RPC 2.0 on stdin/stdout, the
// shape MCP stdio servers use: initialize, tools/list, tools/call, ping.
// Diagnostics go to stderr so they never mix with the protocol stream.

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// toolCallResult is the tools/call payload: text content plus an error flag,
// so callers see tool failures as readable text rather than protocol errors.
type toolCallResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func runServe(cfg Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dataDir := fs.String("data", cfg.DataDir, "sandbox root for tool file operations")
	fs.Parse(args)

	cfg.DataDir = *dataDir
	srv, err := newToolServer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "tool server ready, sandbox root %s\n", srv.root)
	if err := srv.serve(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (s *toolServer) serve(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	// Tool arguments carry whole prompt files, so lines can get big.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	enc := json.NewEncoder(out)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			// The request id is unknowable here, so the response carries
			// an explicit null id.
			if err := enc.Encode(rpcResponse{
				JSONRPC: "2.0",
				ID:      json.RawMessage("null"),
				Error:   &rpcError{Code: codeParseError, Message: "parse error"},
			}); err != nil {
				return err
			}
			continue
		}

		resp, reply := s.handle(req)
		if !reply {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *toolServer) handle(req rpcRequest) (rpcResponse, bool) {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	// Notifications expect no reply.
	if strings.HasPrefix(req.Method, "notifications/") {
		return rpcResponse{}, false
	}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo": map[string]any{
				"name":    "promptbatch",
				"version": "1.0.0",
			},
			"instructions": serverInstructions,
		}

	case "ping":
		resp.Result = map[string]any{}

	case "tools/list":
		resp.Result = map[string]any{"tools": s.tools()}

	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: "invalid params"}
			break
		}
		text, err := s.callTool(params.Name, params.Arguments)
		if err != nil {
			resp.Result = toolCallResult{
				Content: []toolContent{{Type: "text", Text: "Error: " + err.Error()}},
				IsError: true,
			}
			break
		}
		resp.Result = toolCallResult{
			Content: []toolContent{{Type: "text", Text: text}},
		}

	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}

	return resp, true
}

const serverInstructions = `This server creates structured learning resources with batch processing.

Workflow:
1. Discuss the subject you want learning materials for
2. create_learning_resource_structure to design an outline
3. generate_system_prompt_template, then update_system_prompt to save it
4. generate_template, then update_template to save it
5. create_variables_csv to build the variables table
6. run_batch_processing to start the batch job
7. check_batch_results to retrieve the results`
