// Package orchestrator drives one chat exchange end to end: request
// building, transport, stream decoding, the bounded tool loop, and the
// final usage accounting.
package orchestrator

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"

	"github.com/MikaelWeiss/open-chat-core/internal/catalog"
	"github.com/MikaelWeiss/open-chat-core/internal/chat"
	"github.com/MikaelWeiss/open-chat-core/internal/providers"
	"github.com/MikaelWeiss/open-chat-core/internal/stream"
	"github.com/MikaelWeiss/open-chat-core/internal/tools"
	"github.com/MikaelWeiss/open-chat-core/internal/usage"
)

const defaultMaxToolIterations = 3

// Target identifies where one exchange is sent: a base endpoint, the
// credential for it, and the model to run.
type Target struct {
	Endpoint   string
	Credential string
	Model      string
	MaxTokens  int
}

// Client runs chat exchanges against a provider endpoint.
type Client struct {
	httpClient        *http.Client
	tools             tools.Executor
	accountant        *usage.Accountant
	catalog           *catalog.Resolver
	logger            *slog.Logger
	maxToolIterations int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithTools wires a tool executor into the exchange loop.
func WithTools(executor tools.Executor) Option {
	return func(c *Client) { c.tools = executor }
}

// WithCatalog wires a model catalog for pricing lookups.
func WithCatalog(resolver *catalog.Resolver) Option {
	return func(c *Client) { c.catalog = resolver }
}

// WithMaxToolIterations bounds the tool loop. Values below one are ignored.
func WithMaxToolIterations(n int) Option {
	return func(c *Client) {
		if n >= 1 {
			c.maxToolIterations = n
		}
	}
}

func NewClient(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient:        &http.Client{Timeout: 5 * time.Minute},
		accountant:        usage.NewAccountant(logger),
		logger:            logger,
		maxToolIterations: defaultMaxToolIterations,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage runs one full exchange: the first call streams text deltas to
// onDelta (when non-nil), tool calls are executed and fed back through
// non-streamed follow-up calls, and the final assistant message comes back
// with its token and cost accounting.
//
// Cancelling ctx mid-stream is not an error: the partial text accumulated so
// far is returned with Interrupted set.
func (c *Client) SendMessage(ctx context.Context, target Target, history []chat.Message, onDelta func(string)) (*chat.FinalMessage, error) {
	dialect := providers.DetectDialect(target.Endpoint)
	endpoint, err := providers.ResolveEndpoint(target.Endpoint, dialect)
	if err != nil {
		return nil, fmt.Errorf("resolve endpoint: %w", err)
	}

	messages := make([]chat.Message, len(history))
	copy(messages, history)

	var (
		warnings       []string
		totals         providers.ResponseUsage
		citationOffset int
	)

	c.logger.Info("sending message",
		"dialect", dialect.String(),
		"model", target.Model,
		"url", endpoint,
		"streaming", onDelta != nil,
	)

	// First call. Streamed when the caller wants deltas, otherwise a plain
	// request-response round trip.
	var (
		text       string
		calls      []chat.ToolCall
		stopReason string
	)
	if onDelta != nil {
		outcome, err := c.streamOnce(ctx, endpoint, dialect, target, messages, onDelta)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, outcome.warnings...)
		addUsage(&totals, outcome.usage)
		if outcome.interrupted {
			final := c.finalize(target, messages, chat.Message{
				Role:  chat.RoleAssistant,
				Parts: []chat.ContentPart{chat.TextPart(outcome.text)},
			}, totals, warnings, "end_turn")
			final.Interrupted = true
			return final, nil
		}
		text, calls, stopReason = outcome.text, outcome.calls, outcome.stopReason
	} else {
		resp, ws, err := c.completeOnce(ctx, endpoint, dialect, target, messages)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, ws...)
		addUsage(&totals, resp.Usage)
		text, calls, stopReason = resp.Text, resp.ToolCalls, resp.StopReason
	}

	// Tool loop. Each iteration executes the outstanding calls, appends the
	// assistant turn and its results to the transcript, and asks the model
	// to continue. Bounded so a model that keeps calling tools cannot spin
	// forever.
	for iteration := 0; len(calls) > 0; iteration++ {
		if c.tools == nil {
			warnings = append(warnings, "model requested tools but no tools are available")
			break
		}
		if iteration >= c.maxToolIterations {
			warnings = append(warnings, fmt.Sprintf("tool loop stopped after %d iterations", c.maxToolIterations))
			break
		}

		calls = ensureCallIDs(calls)
		results := c.executeTools(ctx, calls)
		if err := chat.ValidateToolResults(calls, results); err != nil {
			return nil, err
		}

		assistant := chat.Message{Role: chat.RoleAssistant, ToolCalls: calls}
		if text != "" {
			assistant.Parts = []chat.ContentPart{chat.TextPart(text)}
		}
		messages = append(messages, assistant)
		for i := range results {
			content := results[i].Content
			if !results[i].IsError {
				content, citationOffset = numberCitations(content, citationOffset)
			}
			messages = append(messages, chat.Message{
				Role:       chat.RoleTool,
				ToolCallID: results[i].CallID,
				ToolName:   results[i].Name,
				Parts:      []chat.ContentPart{chat.TextPart(content)},
			})
		}

		resp, ws, err := c.completeOnce(ctx, endpoint, dialect, target, messages)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, ws...)
		addUsage(&totals, resp.Usage)
		text, calls, stopReason = resp.Text, resp.ToolCalls, resp.StopReason

		if onDelta != nil && text != "" && len(calls) == 0 {
			onDelta(text)
		}
	}

	final := c.finalize(target, messages, chat.Message{
		Role:  chat.RoleAssistant,
		Parts: []chat.ContentPart{chat.TextPart(text)},
	}, totals, warnings, stopReason)
	return final, nil
}

type streamOutcome struct {
	text        string
	calls       []chat.ToolCall
	stopReason  string
	usage       providers.ResponseUsage
	warnings    []string
	interrupted bool
}

func (c *Client) streamOnce(ctx context.Context, endpoint string, dialect providers.Dialect, target Target, messages []chat.Message, onDelta func(string)) (*streamOutcome, error) {
	body, warnings, err := providers.BuildRequestBody(c.buildRequest(target, messages, true), dialect)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, endpoint, dialect, target.Credential, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader, err := decompressReader(resp)
	if err != nil {
		return nil, fmt.Errorf("decompress response: %w", err)
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(reader)
		return nil, providers.NewTransportError(resp.StatusCode, resp.Status, errBody)
	}

	decoder := stream.NewDecoder(dialect, onDelta, c.logger)
	if err := decoder.Consume(ctx, reader); err != nil {
		return nil, err
	}

	return &streamOutcome{
		text:        decoder.Text(),
		calls:       decoder.ToolCalls(),
		stopReason:  decoder.StopReason(),
		usage:       decoder.Usage(),
		warnings:    warnings,
		interrupted: decoder.Interrupted(),
	}, nil
}

func (c *Client) completeOnce(ctx context.Context, endpoint string, dialect providers.Dialect, target Target, messages []chat.Message) (*providers.Response, []string, error) {
	body, warnings, err := providers.BuildRequestBody(c.buildRequest(target, messages, false), dialect)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.do(ctx, endpoint, dialect, target.Credential, body)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	reader, err := decompressReader(resp)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress response: %w", err)
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	respBody, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, providers.NewTransportError(resp.StatusCode, resp.Status, respBody)
	}

	parsed, err := providers.ParseResponseBody(respBody, dialect)
	if err != nil {
		return nil, nil, err
	}
	return parsed, warnings, nil
}

func (c *Client) buildRequest(target Target, messages []chat.Message, streamed bool) providers.Request {
	req := providers.Request{
		Model:     target.Model,
		Messages:  messages,
		MaxTokens: target.MaxTokens,
		Stream:    streamed,
	}
	if c.tools != nil {
		for _, def := range c.tools.Definitions() {
			req.Tools = append(req.Tools, providers.ToolDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			})
		}
	}
	return req
}

func (c *Client) do(ctx context.Context, endpoint string, dialect providers.Dialect, credential string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")
	for key, value := range providers.AuthHeaders(dialect, credential) {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	return resp, nil
}

// executeTools fans the calls out concurrently and collects results in call
// order, so sibling tools never serialize behind a slow one.
func (c *Client) executeTools(ctx context.Context, calls []chat.ToolCall) []chat.ToolResult {
	results := make([]chat.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.tools.Execute(ctx, calls[i])
		}(i)
	}
	wg.Wait()
	return results
}

// ensureCallIDs fills in ids for providers that omit them, so results can
// still be correlated with their calls.
func ensureCallIDs(calls []chat.ToolCall) []chat.ToolCall {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}
	return calls
}

func (c *Client) finalize(target Target, sent []chat.Message, assistant chat.Message, totals providers.ResponseUsage, warnings []string, stopReason string) *chat.FinalMessage {
	if stopReason == "" {
		stopReason = "end_turn"
	}

	// Prefer provider-reported counts; fall back to the tokenizer when the
	// provider sent nothing.
	input := totals.InputTokens
	if input == 0 {
		for _, msg := range sent {
			input += c.accountant.Count(msg.Text(), target.Model)
		}
	}
	output := totals.OutputTokens
	if output == 0 {
		output = c.accountant.Count(assistant.Text(), target.Model)
	}

	cost := c.cost(target.Model, input, output, totals.CachedTokens, totals.ReasoningTokens)

	c.logger.Info("exchange complete",
		"model", target.Model,
		"input_tokens", input,
		"output_tokens", output,
		"stop_reason", stopReason,
	)

	return &chat.FinalMessage{
		Message: assistant,
		Usage: chat.Usage{
			InputTokens:     input,
			OutputTokens:    output,
			CachedTokens:    totals.CachedTokens,
			ReasoningTokens: totals.ReasoningTokens,
			Cost:            cost,
		},
		Warnings:   warnings,
		StopReason: stopReason,
	}
}

// cost resolves a rate from the live catalog first, then the offline table.
func (c *Client) cost(model string, input, output, cached, reasoning int) float64 {
	if c.catalog != nil {
		if entry, ok := c.catalog.Pricing(model); ok {
			return usage.CostWithEntry(entry, input, output, cached, reasoning)
		}
	}
	return c.accountant.Cost(input, output, cached, reasoning, model)
}

func addUsage(totals *providers.ResponseUsage, u providers.ResponseUsage) {
	totals.InputTokens += u.InputTokens
	totals.OutputTokens += u.OutputTokens
	totals.CachedTokens += u.CachedTokens
	totals.ReasoningTokens += u.ReasoningTokens
}

func decompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	}
	return resp.Body, nil
}
