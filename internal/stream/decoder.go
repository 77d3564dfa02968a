// Package stream turns an incremental provider byte stream into semantic
// deltas. The decoder owns the per-request state for exactly one response
// body: a trailing byte buffer for frames split across reads, the accumulated
// text, and tool-call fragments keyed by call id.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/MikaelWeiss/open-chat-core/internal/chat"
	"github.com/MikaelWeiss/open-chat-core/internal/providers"
)

const doneSentinel = "[DONE]"

type toolFragment struct {
	id        string
	name      string
	arguments strings.Builder
}

// Decoder consumes one streamed response and emits unified deltas. Text
// deltas are forwarded immediately through onText; tool-call fragments are
// accumulated until stream end, since argument strings arrive split across
// frames and are only valid JSON once concatenated per call id.
type Decoder struct {
	dialect providers.Dialect
	onText  func(string)
	logger  *slog.Logger

	buf         []byte
	text        strings.Builder
	frags       []*toolFragment
	fragByID    map[string]*toolFragment
	fragByIndex map[int]*toolFragment
	usage       providers.ResponseUsage
	stopReason  string
	done        bool
	interrupted bool
}

// NewDecoder builds a decoder for one response. onText may be nil when the
// caller does not want incremental delivery.
func NewDecoder(dialect providers.Dialect, onText func(string), logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		dialect:     dialect,
		onText:      onText,
		logger:      logger,
		fragByID:    make(map[string]*toolFragment),
		fragByIndex: make(map[int]*toolFragment),
	}
}

// Consume reads the body to completion, feeding every chunk through the
// decoder. Cancellation is not a failure: the read stops, the body is
// released, and the text accumulated so far stays available to the caller.
func (d *Decoder) Consume(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			d.interrupted = true
			return nil
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.flushRemainder()
				return nil
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				d.interrupted = true
				return nil
			}
			return err
		}
		if d.done {
			return nil
		}
	}
}

// Feed appends a chunk to the byte buffer and processes every complete line.
// The trailing, not-yet-newline-terminated fragment is retained for the next
// call, so the decoder is insensitive to how the stream is chunked.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return
		}
		line := string(bytes.TrimRight(d.buf[:i], "\r"))
		d.buf = d.buf[i+1:]
		d.processLine(line)
	}
}

// flushRemainder handles a final frame that arrived without a trailing
// newline before EOF.
func (d *Decoder) flushRemainder() {
	if len(d.buf) == 0 {
		return
	}
	line := string(bytes.TrimRight(d.buf, "\r\n"))
	d.buf = nil
	if line != "" {
		d.processLine(line)
	}
}

func (d *Decoder) processLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || d.done {
		return
	}

	if d.dialect == providers.LocalGenerate {
		// Local servers emit newline-delimited JSON objects, no event marker.
		d.decodeFrame([]byte(line))
		return
	}

	if strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
		return
	}
	if !strings.HasPrefix(line, "data:") {
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == doneSentinel {
		d.done = true
		return
	}
	d.decodeFrame([]byte(payload))
}

// decodeFrame parses one frame payload. A malformed frame is logged and
// skipped; it must never abort the stream.
func (d *Decoder) decodeFrame(payload []byte) {
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		d.logger.Warn("skipping malformed stream frame", "error", err)
		return
	}

	switch d.dialect {
	case providers.AnthropicNative:
		d.decodeAnthropicFrame(frame)
	case providers.LocalGenerate:
		d.decodeLocalFrame(frame)
	default:
		d.decodeOpenAIFrame(frame)
	}
}

func (d *Decoder) decodeOpenAIFrame(frame map[string]any) {
	if usage, ok := frame["usage"].(map[string]any); ok {
		d.captureOpenAIUsage(usage)
	}

	choices, ok := frame["choices"].([]any)
	if !ok || len(choices) == 0 {
		return
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return
	}

	if reason, ok := choice["finish_reason"].(string); ok && reason != "" {
		d.stopReason = providers.NormalizeStopReason(reason)
	}

	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		return
	}
	if calls, ok := delta["tool_calls"].([]any); ok {
		for _, c := range calls {
			if call, ok := c.(map[string]any); ok {
				d.accumulateOpenAIToolCall(call)
			}
		}
		return
	}
	if text, ok := delta["content"].(string); ok && text != "" {
		d.emitText(text)
	}
}

func (d *Decoder) accumulateOpenAIToolCall(call map[string]any) {
	index := -1
	if f, ok := call["index"].(float64); ok {
		index = int(f)
	}
	id, _ := call["id"].(string)

	frag := d.fragByIndex[index]
	if frag == nil && id != "" {
		frag = d.fragByID[id]
	}
	if frag == nil {
		frag = &toolFragment{}
		d.frags = append(d.frags, frag)
		if index >= 0 {
			d.fragByIndex[index] = frag
		}
	}
	if id != "" {
		frag.id = id
		d.fragByID[id] = frag
	}
	if fn, ok := call["function"].(map[string]any); ok {
		if name, ok := fn["name"].(string); ok && name != "" {
			frag.name = name
		}
		if args, ok := fn["arguments"].(string); ok {
			frag.arguments.WriteString(args)
		}
	}
}

func (d *Decoder) decodeAnthropicFrame(frame map[string]any) {
	frameType, _ := frame["type"].(string)
	switch frameType {
	case "message_start":
		if msg, ok := frame["message"].(map[string]any); ok {
			if usage, ok := msg["usage"].(map[string]any); ok {
				if v, ok := usage["input_tokens"].(float64); ok {
					d.usage.InputTokens = int(v)
				}
				if v, ok := usage["cache_read_input_tokens"].(float64); ok {
					d.usage.CachedTokens = int(v)
				}
			}
		}

	case "content_block_start":
		block, ok := frame["content_block"].(map[string]any)
		if !ok || block["type"] != "tool_use" {
			return
		}
		index := frameIndex(frame)
		frag := &toolFragment{}
		frag.id, _ = block["id"].(string)
		frag.name, _ = block["name"].(string)
		d.frags = append(d.frags, frag)
		d.fragByIndex[index] = frag
		if frag.id != "" {
			d.fragByID[frag.id] = frag
		}

	case "content_block_delta":
		delta, ok := frame["delta"].(map[string]any)
		if !ok {
			return
		}
		switch delta["type"] {
		case "text_delta":
			if text, ok := delta["text"].(string); ok && text != "" {
				d.emitText(text)
			}
		case "input_json_delta":
			if frag := d.fragByIndex[frameIndex(frame)]; frag != nil {
				if partial, ok := delta["partial_json"].(string); ok {
					frag.arguments.WriteString(partial)
				}
			}
		}

	case "message_delta":
		if delta, ok := frame["delta"].(map[string]any); ok {
			if reason, ok := delta["stop_reason"].(string); ok && reason != "" {
				d.stopReason = providers.NormalizeStopReason(reason)
			}
		}
		if usage, ok := frame["usage"].(map[string]any); ok {
			if v, ok := usage["output_tokens"].(float64); ok {
				d.usage.OutputTokens = int(v)
			}
		}

	case "message_stop":
		d.done = true
	}
}

func (d *Decoder) decodeLocalFrame(frame map[string]any) {
	if msg, ok := frame["message"].(map[string]any); ok {
		if text, ok := msg["content"].(string); ok && text != "" {
			d.emitText(text)
		}
	} else if text, ok := frame["response"].(string); ok && text != "" {
		d.emitText(text)
	}
	if done, ok := frame["done"].(bool); ok && done {
		d.done = true
		if v, ok := frame["prompt_eval_count"].(float64); ok {
			d.usage.InputTokens = int(v)
		}
		if v, ok := frame["eval_count"].(float64); ok {
			d.usage.OutputTokens = int(v)
		}
	}
}

func (d *Decoder) captureOpenAIUsage(usage map[string]any) {
	if v, ok := usage["prompt_tokens"].(float64); ok {
		d.usage.InputTokens = int(v)
	}
	if v, ok := usage["completion_tokens"].(float64); ok {
		d.usage.OutputTokens = int(v)
	}
	if details, ok := usage["prompt_tokens_details"].(map[string]any); ok {
		if v, ok := details["cached_tokens"].(float64); ok {
			d.usage.CachedTokens = int(v)
		}
	}
}

func (d *Decoder) emitText(text string) {
	d.text.WriteString(text)
	if d.onText != nil {
		d.onText(text)
	}
}

func frameIndex(frame map[string]any) int {
	if f, ok := frame["index"].(float64); ok {
		return int(f)
	}
	return 0
}

// Text returns the accumulated response text, including partial text from an
// interrupted stream.
func (d *Decoder) Text() string {
	return d.text.String()
}

// ToolCalls assembles the accumulated fragments into complete tool calls.
// A stream interrupted mid-flight discards its in-flight fragments: a
// truncated argument string is not a usable tool request.
func (d *Decoder) ToolCalls() []chat.ToolCall {
	if d.interrupted {
		return nil
	}
	calls := make([]chat.ToolCall, 0, len(d.frags))
	for _, frag := range d.frags {
		args := frag.arguments.String()
		if args == "" {
			args = "{}"
		}
		calls = append(calls, chat.ToolCall{ID: frag.id, Name: frag.name, Arguments: args})
	}
	return calls
}

// Done reports whether the stream reached its terminator.
func (d *Decoder) Done() bool { return d.done }

// Interrupted reports whether consumption stopped on cancellation.
func (d *Decoder) Interrupted() bool { return d.interrupted }

// StopReason returns the normalized stop reason, defaulting to end_turn.
func (d *Decoder) StopReason() string {
	if d.stopReason == "" {
		return "end_turn"
	}
	return d.stopReason
}

// Usage returns whatever token accounting the stream carried.
func (d *Decoder) Usage() providers.ResponseUsage { return d.usage }
