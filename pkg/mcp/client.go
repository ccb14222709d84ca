package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/quiver/internal/observability"
)

const (
	protocolVersion = "2024-11-05"
	requestTimeout  = 10 * time.Second
)

// JSON-RPC 2.0 framing over stdio, one message per line.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ToolDescriptor is one tool advertised by an MCP server. InputSchema is the
// server's raw JSON Schema for the tool's arguments.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// Client speaks the Model Context Protocol to one server process over stdio.
// Start spawns the process lazily; calls are matched to replies through a
// pending-request map keyed by request ID.
type Client struct {
	server  string
	command string
	args    []string

	mu      sync.Mutex
	process *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	id      int
	pending map[int]chan *rpcResponse
}

// NewClient creates a client for one MCP server. The process is not started
// until the first call.
func NewClient(server, command string, args []string) *Client {
	return &Client{
		server:  server,
		command: command,
		args:    args,
		pending: make(map[int]chan *rpcResponse),
	}
}

// Server returns the configured server name.
func (c *Client) Server() string {
	return c.server
}

// Start spawns the server process and performs the initialize handshake.
// Safe to call repeatedly; a running process is left alone.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.process != nil {
		c.mu.Unlock()
		return nil
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start MCP server %s: %w", c.server, err)
	}

	c.process = cmd
	c.stdin = stdin
	c.stdout = bufio.NewScanner(stdout)
	c.mu.Unlock()

	go c.listen()

	return c.initialize(ctx)
}

func (c *Client) listen() {
	for c.stdout.Scan() {
		var resp rpcResponse
		if err := json.Unmarshal(c.stdout.Bytes(), &resp); err != nil {
			log.Error().
				Str("server", c.server).
				Err(err).
				Msg("Failed to unmarshal MCP response")
			continue
		}

		if id, ok := resp.ID.(float64); ok {
			c.mu.Lock()
			ch, exists := c.pending[int(id)]
			if exists {
				delete(c.pending, int(id))
				ch <- &resp
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "Quiver",
			"version": "0.1.0",
		},
	}
	_, err := c.call(ctx, "initialize", params)
	return err
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	c.mu.Lock()
	c.id++
	id := c.id
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	stdin := c.stdin
	c.mu.Unlock()

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	data, err := json.Marshal(req)
	if err != nil {
		c.dropPending(id)
		return nil, err
	}

	start := time.Now()
	if _, err := io.WriteString(stdin, string(data)+"\n"); err != nil {
		c.dropPending(id)
		observability.RecordMCPRequest(c.server, method, "write_error", time.Since(start))
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			observability.RecordMCPRequest(c.server, method, "rpc_error", time.Since(start))
			return nil, fmt.Errorf("MCP error (%d): %s", resp.Error.Code, resp.Error.Message)
		}
		observability.RecordMCPRequest(c.server, method, "success", time.Since(start))
		return resp, nil
	case <-ctx.Done():
		c.dropPending(id)
		observability.RecordMCPRequest(c.server, method, "canceled", time.Since(start))
		return nil, ctx.Err()
	case <-time.After(requestTimeout):
		c.dropPending(id)
		observability.RecordMCPRequest(c.server, method, "timeout", time.Since(start))
		return nil, fmt.Errorf("MCP request timeout: %s %s", c.server, method)
	}
}

// dropPending abandons a request slot that will never receive its response,
// so the pending map does not grow on canceled or timed-out calls.
func (c *Client) dropPending(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// ListTools fetches the tool descriptors the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var listResult struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &listResult); err != nil {
		return nil, fmt.Errorf("failed to decode tools/list result: %w", err)
	}

	return listResult.Tools, nil
}

// CallTool invokes a tool on the server and flattens its content blocks into
// text. Non-text results come back as raw JSON.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if err := c.Start(ctx); err != nil {
		return "", fmt.Errorf("failed to start MCP server: %w", err)
	}

	callParams := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}

	resp, err := c.call(ctx, "tools/call", callParams)
	if err != nil {
		return "", err
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("failed to decode tools/call result: %w", err)
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		text = string(resp.Result)
	}

	if result.IsError {
		return "", fmt.Errorf("MCP tool %s failed: %s", name, text)
	}
	return text, nil
}

// Stop kills the server process if it is running.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.process != nil && c.process.Process != nil {
		err := c.process.Process.Kill()
		c.process = nil
		return err
	}
	return nil
}
