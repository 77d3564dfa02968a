// Package tools is the tool-execution collaborator surface: a registry of
// callable tools and the built-in implementations the chat core ships with.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/MikaelWeiss/open-chat-core/internal/chat"
)

var (
	ErrEmptyName     = errors.New("tool name must not be empty")
	ErrAlreadyExists = errors.New("tool already registered")
)

// Definition describes one callable tool as advertised to the model.
type Definition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object for the tool arguments.
	Parameters map[string]any
}

// Handler executes one tool invocation. Arguments arrive as the JSON-encoded
// string the model produced.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Executor is what the orchestration loop needs from a tool runner.
type Executor interface {
	Definitions() []Definition
	Execute(ctx context.Context, call chat.ToolCall) chat.ToolResult
}

type entry struct {
	def     Definition
	handler Handler
}

// Registry is a thread-safe tool registry implementing Executor.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, def.Name)
	}
	r.entries[def.Name] = entry{def: def, handler: handler}
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions lists registered tools in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].def)
	}
	return defs
}

// Execute runs one tool call. Failures never propagate as Go errors: an
// unknown tool or a failing handler produces a tool result carrying a
// structured error payload, so the model can react while sibling calls and
// the orchestration loop continue.
func (r *Registry) Execute(ctx context.Context, call chat.ToolCall) chat.ToolResult {
	r.mu.RLock()
	e, ok := r.entries[call.Name]
	r.mu.RUnlock()

	if !ok {
		return errorResult(call, fmt.Sprintf("unknown tool %q", call.Name))
	}

	content, err := e.handler(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		return errorResult(call, err.Error())
	}
	return chat.ToolResult{CallID: call.ID, Name: call.Name, Content: content}
}

func errorResult(call chat.ToolCall, msg string) chat.ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return chat.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: string(payload),
		IsError: true,
	}
}
