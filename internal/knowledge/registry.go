package knowledge

import (
	"context"
	"sort"
	"sync"

	"github.com/synthloom/core/internal/domain"
)

// ToolRegistry is the runtime-populated, closed tool catalog (design
// notes: "the tool surface is polymorphic over {name, parameters,
// execute}; represent as a tagged variant or an interface, not a class
// hierarchy"). It satisfies both the worker's ToolCatalog lookup and
// the curator's ToolSchemaRegistry promotion target, so error hints
// learned by the curator are visible to the next worker prompt built
// from the same registry.
type ToolRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*domain.ToolSchema
}

// NewToolRegistry seeds the registry with the fixed executor-backed
// tool set (spec §4 Executor collaborator).
func NewToolRegistry() *ToolRegistry {
	r := &ToolRegistry{schemas: make(map[string]*domain.ToolSchema)}
	for _, schema := range defaultToolSchemas() {
		r.schemas[schema.Name] = schema
	}
	return r
}

func defaultToolSchemas() []*domain.ToolSchema {
	return []*domain.ToolSchema{
		domain.NewToolSchema("python_exec", "Execute a Python snippet and capture stdout/stderr.", "code_exec",
			[]domain.ToolParameter{{Name: "code", Type: "string", Required: true}}),
		domain.NewToolSchema("write_file", "Write content to a path under the workspace root.", "file_create",
			[]domain.ToolParameter{{Name: "path", Type: "string", Required: true}, {Name: "content", Type: "string", Required: true}}),
		domain.NewToolSchema("read_file", "Read a file's contents from under the workspace root.", "file_read",
			[]domain.ToolParameter{{Name: "path", Type: "string", Required: true}}),
		domain.NewToolSchema("list_dir", "List entries of a directory under the workspace root.", "file_list",
			[]domain.ToolParameter{{Name: "path", Type: "string", Required: true}}),
		domain.NewToolSchema("run_command", "Run a shell command with its working directory pinned to the workspace root.", "code_exec",
			[]domain.ToolParameter{{Name: "command", Type: "string", Required: true}}),
		domain.NewToolSchema("search_files", "Search files under the workspace root for a query, optionally filtered by extension.", "analysis",
			[]domain.ToolParameter{{Name: "query", Type: "string", Required: true}, {Name: "path", Type: "string", Required: false}, {Name: "extensions", Type: "list", Required: false}}),
		domain.NewToolSchema("replace_in_file", "Replace a target substring with a replacement in a file under the workspace root.", "file_create",
			[]domain.ToolParameter{{Name: "path", Type: "string", Required: true}, {Name: "target", Type: "string", Required: true}, {Name: "replacement", Type: "string", Required: true}}),
	}
}

// Schema implements Worker's ToolCatalog (spec §4.5 step 1).
func (r *ToolRegistry) Schema(name string) (*domain.ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.schemas[name]
	return schema, ok
}

// AllNames implements Worker's ToolCatalog.
func (r *ToolRegistry) AllNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetToolSchema implements the curator's ToolSchemaRegistry.
func (r *ToolRegistry) GetToolSchema(_ context.Context, name string) (*domain.ToolSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.schemas[name]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "tool schema not found: "+name, nil)
	}
	return schema, nil
}

// SaveToolSchema implements the curator's ToolSchemaRegistry; it also
// registers a never-seen tool name; the curator only ever calls this
// with a schema it already read.
func (r *ToolRegistry) SaveToolSchema(_ context.Context, schema *domain.ToolSchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[schema.Name] = schema
	return nil
}
