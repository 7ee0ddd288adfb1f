package synth

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
)

// TemplateProcessor renders a worker prompt template by substituting
// {{variable}} references and ${expression} expr-lang snippets before a
// prompt is sent to the inference backend (spec §4.5: task description,
// test-case block, harvested-skill catalog, and retrieved lessons are
// all spliced into one prompt template).
type TemplateProcessor struct {
	evaluator *ConditionEvaluator
	mu        sync.RWMutex
	debug     bool

	simpleVarPattern *regexp.Regexp // {{variable}}
	exprPattern      *regexp.Regexp // ${expression}
}

// TemplateConfig controls strictness of substitution.
type TemplateConfig struct {
	StrictMode bool     // true = fail on missing vars, false = leave placeholder
	Fields     []string // specific map fields to template (empty = all strings)
}

// NewTemplateProcessor creates a TemplateProcessor holding evaluator.
// ${expression} snippets are compiled on every call; they do not use
// evaluator's compiled-program cache.
func NewTemplateProcessor(evaluator *ConditionEvaluator) *TemplateProcessor {
	return &TemplateProcessor{
		evaluator:        evaluator,
		simpleVarPattern: regexp.MustCompile(`\{\{([^}]+)\}\}`),
		exprPattern:      regexp.MustCompile(`\$\{([^}]+)\}`),
	}
}

// SetDebug toggles verbose stdout tracing of substitution misses.
func (tp *TemplateProcessor) SetDebug(debug bool) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.debug = debug
}

// Process templates value recursively: strings are substituted, maps and
// slices recurse, everything else passes through unchanged.
func (tp *TemplateProcessor) Process(value any, variables map[string]any, config TemplateConfig) (any, error) {
	switch v := value.(type) {
	case string:
		return tp.processString(v, variables, config)
	case map[string]any:
		return tp.processMap(v, variables, config)
	case []any:
		return tp.processSlice(v, variables, config)
	default:
		return value, nil
	}
}

// ProcessMap templates a field map, optionally limited to config.Fields.
func (tp *TemplateProcessor) ProcessMap(m map[string]any, variables map[string]any, config TemplateConfig) (map[string]any, error) {
	result := make(map[string]any, len(m))

	for key, value := range m {
		if len(config.Fields) > 0 && !containsString(config.Fields, key) {
			result[key] = value
			continue
		}
		processed, err := tp.Process(value, variables, config)
		if err != nil {
			return nil, fmt.Errorf("failed to process field %q: %w", key, err)
		}
		result[key] = processed
	}

	return result, nil
}

func (tp *TemplateProcessor) processString(s string, vars map[string]any, cfg TemplateConfig) (string, error) {
	if !strings.Contains(s, "{{") && !strings.Contains(s, "${") {
		return s, nil
	}

	result := s

	for _, match := range tp.exprPattern.FindAllStringSubmatch(result, -1) {
		if len(match) < 2 {
			continue
		}
		placeholder, expression := match[0], match[1]
		value, err := tp.evaluateExpression(expression, vars)
		if err != nil {
			if cfg.StrictMode {
				return "", fmt.Errorf("expression '${%s}' failed: %w", expression, err)
			}
			if tp.debug {
				fmt.Printf("[TemplateProcessor] expression evaluation failed (lenient mode): ${%s}: %v\n", expression, err)
			}
			continue
		}
		result = strings.ReplaceAll(result, placeholder, fmt.Sprint(value))
	}

	for _, match := range tp.simpleVarPattern.FindAllStringSubmatch(result, -1) {
		if len(match) < 2 {
			continue
		}
		placeholder := match[0]
		varPath := strings.TrimSpace(match[1])
		value := getNestedValue(vars, varPath)
		if value == nil {
			if cfg.StrictMode {
				return "", fmt.Errorf("variable '{{%s}}' not found", varPath)
			}
			if tp.debug {
				fmt.Printf("[TemplateProcessor] variable not found (lenient mode): {{%s}}\n", varPath)
			}
			continue
		}
		result = strings.ReplaceAll(result, placeholder, fmt.Sprint(value))
	}

	return result, nil
}

func (tp *TemplateProcessor) processMap(m map[string]any, vars map[string]any, cfg TemplateConfig) (map[string]any, error) {
	result := make(map[string]any, len(m))
	for key, value := range m {
		processed, err := tp.Process(value, vars, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to process map key %q: %w", key, err)
		}
		result[key] = processed
	}
	return result, nil
}

func (tp *TemplateProcessor) processSlice(slice []any, vars map[string]any, cfg TemplateConfig) ([]any, error) {
	result := make([]any, len(slice))
	for i, value := range slice {
		processed, err := tp.Process(value, vars, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to process slice index %d: %w", i, err)
		}
		result[i] = processed
	}
	return result, nil
}

func (tp *TemplateProcessor) evaluateExpression(expression string, vars map[string]any) (any, error) {
	normalizedVars := normalizeVariables(vars)

	program, err := expr.Compile(expression, expr.Env(normalizedVars), expr.AsAny())
	if err != nil {
		program, err = expr.Compile(expression, expr.AsAny())
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression: %w", err)
		}
	}

	result, err := expr.Run(program, normalizedVars)
	if err != nil {
		return nil, fmt.Errorf("failed to execute expression: %w", err)
	}

	return result, nil
}

func containsString(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}

// getNestedValue retrieves a value from a nested map using dot notation
// (e.g. "task.category").
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")

	var current any = data
	for _, part := range parts {
		if m, ok := current.(map[string]any); ok {
			current = m[part]
		} else {
			return nil
		}
	}
	return current
}
