package domain

import "time"

// ToolSchema describes one entry in the closed, runtime-populated tool
// registry (design notes: "the tool surface is polymorphic over
// {name, parameters, execute}; represent as a tagged variant or an
// interface, not a class hierarchy"). Schemas are serialized to JSON so the
// Curator can rewrite ErrorHints without touching code.
type ToolSchema struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  []ToolParameter   `json:"parameters"`
	ErrorHints  map[string]string `json:"error_hints"`
	Category    string            `json:"category"`
	Version     int               `json:"version"`
	LastUpdated time.Time         `json:"last_updated"`
}

// ToolParameter describes a single named parameter of a tool.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// NewToolSchema creates a new ToolSchema with an empty error-hint table.
func NewToolSchema(name, description, category string, params []ToolParameter) *ToolSchema {
	return &ToolSchema{
		Name:        name,
		Description: description,
		Category:    category,
		Parameters:  params,
		ErrorHints:  make(map[string]string),
		Version:     1,
		LastUpdated: time.Now(),
	}
}

// OneLineCatalog renders the schema as a terse single line. Tools not among
// a task's suggested set are shown in this form rather than in full.
func (t *ToolSchema) OneLineCatalog() string {
	line := t.Name + ": " + t.Description
	if len(t.ErrorHints) > 0 {
		line += " (known pitfalls tracked)"
	}
	return line
}

// SetErrorHint records a learned lesson for an error type, bumping the
// schema version. Called only by the Curator's error-hint promotion pass.
func (t *ToolSchema) SetErrorHint(errorType, lesson string) {
	if _, exists := t.ErrorHints[errorType]; exists {
		return
	}
	t.ErrorHints[errorType] = lesson
	t.Version++
	t.LastUpdated = time.Now()
}
