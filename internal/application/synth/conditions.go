package synth

import (
	"fmt"
	"strings"
	"sync"

	synthErrors "github.com/synthloom/core/internal/domain/errors"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionEvaluator compiles and runs boolean expr-lang expressions
// against a variable bag, with a compiled-program cache keyed by
// expression text. Used by the refiner's configurable stop conditions
// (spec §4.8), which are expressed as short boolean expressions rather
// than Go code so they can be tuned without a rebuild.
type ConditionEvaluator struct {
	mu sync.RWMutex

	compiledCache map[string]*vm.Program
	resultCache   map[string]bool
	enableCache   bool
	debug         bool
}

// NewConditionEvaluator creates a ConditionEvaluator.
func NewConditionEvaluator(enableCache bool) *ConditionEvaluator {
	return &ConditionEvaluator{
		compiledCache: make(map[string]*vm.Program),
		resultCache:   make(map[string]bool),
		enableCache:   enableCache,
	}
}

// SetDebug toggles verbose stdout tracing of evaluation misses.
func (ce *ConditionEvaluator) SetDebug(debug bool) { ce.debug = debug }

// ClearResultCache drops the per-run result cache; call between tasks
// since variable values are task-scoped.
func (ce *ConditionEvaluator) ClearResultCache() {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.resultCache = make(map[string]bool)
}

// Evaluate runs condition against variables and returns its boolean result.
func (ce *ConditionEvaluator) Evaluate(condition string, variables map[string]any) (bool, error) {
	if condition == "" {
		return false, synthErrors.NewToolError("condition_evaluator", "empty_condition", "condition cannot be empty", false)
	}

	if ce.enableCache {
		cacheKey := ce.makeResultCacheKey(condition, variables)
		ce.mu.RLock()
		result, cached := ce.resultCache[cacheKey]
		ce.mu.RUnlock()
		if cached {
			return result, nil
		}
	}

	normalizedVars := normalizeVariables(variables)

	program, err := ce.getCompiledProgram(condition)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(program, normalizedVars)
	if err != nil {
		return ce.handleEvaluationError(condition, normalizedVars, err)
	}

	resultBool, ok := result.(bool)
	if !ok {
		return false, synthErrors.NewToolError("condition_evaluator", "non_boolean_result",
			fmt.Sprintf("condition %q did not return boolean, got %T", condition, result), false)
	}

	if ce.enableCache {
		cacheKey := ce.makeResultCacheKey(condition, variables)
		ce.mu.Lock()
		ce.resultCache[cacheKey] = resultBool
		ce.mu.Unlock()
	}

	return resultBool, nil
}

func (ce *ConditionEvaluator) getCompiledProgram(condition string) (*vm.Program, error) {
	ce.mu.RLock()
	program, cached := ce.compiledCache[condition]
	ce.mu.RUnlock()
	if cached {
		return program, nil
	}

	envType := map[string]any{}
	compiledProgram, err := expr.Compile(condition, expr.Env(envType), expr.AsBool())
	if err != nil {
		compiledProgram, err = expr.Compile(condition, expr.AsBool())
		if err != nil {
			return nil, synthErrors.NewToolError("condition_evaluator", "compile_failed",
				fmt.Sprintf("failed to compile condition %q: %v", condition, err), false)
		}
	}

	ce.mu.Lock()
	ce.compiledCache[condition] = compiledProgram
	ce.mu.Unlock()

	return compiledProgram, nil
}

func (ce *ConditionEvaluator) handleEvaluationError(condition string, variables map[string]any, err error) (bool, error) {
	errMsg := err.Error()

	if ce.isVariableNotFoundError(errMsg) {
		if ce.debug {
			fmt.Printf("[ConditionEvaluator] variable not yet available for condition %q: %v\n", condition, err)
		}
		return false, nil
	}

	varInfo := ce.formatVariablesForError(variables)
	return false, synthErrors.NewToolError("condition_evaluator", "evaluation_failed",
		fmt.Sprintf("failed to evaluate condition %q%s: %v", condition, varInfo, err), false)
}

func (ce *ConditionEvaluator) isVariableNotFoundError(errMsg string) bool {
	patterns := []string{"cannot fetch", "undefined", "unknown name", "nil pointer", "not found"}
	lower := strings.ToLower(errMsg)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func (ce *ConditionEvaluator) formatVariablesForError(variables map[string]any) string {
	if len(variables) == 0 {
		return " (no variables available)"
	}

	var varInfo []string
	for k, v := range variables {
		if strVal, ok := v.(string); ok && len(strVal) < 100 {
			varInfo = append(varInfo, fmt.Sprintf("%s=%q", k, strVal))
		} else {
			varInfo = append(varInfo, fmt.Sprintf("%s=<%T>", k, v))
		}
		if len(varInfo) >= 10 {
			varInfo = append(varInfo, "...")
			break
		}
	}

	if len(varInfo) > 0 {
		return fmt.Sprintf(" with variables [%s]", strings.Join(varInfo, ", "))
	}
	return ""
}

func (ce *ConditionEvaluator) makeResultCacheKey(condition string, variables map[string]any) string {
	parts := []string{condition}
	for k, v := range variables {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, "|")
}

func normalizeVariables(variables map[string]any) map[string]any {
	normalized := make(map[string]any, len(variables))
	for k, v := range variables {
		normalized[k] = normalizeValue(v)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		normalized := make(map[string]any, len(v))
		for k, val := range v {
			normalized[k] = normalizeValue(val)
		}
		return normalized
	case []any:
		normalized := make([]any, len(v))
		for i, val := range v {
			normalized[i] = normalizeValue(val)
		}
		return normalized
	default:
		return v
	}
}

// BatchEvaluate evaluates several named conditions against one variable
// bag in one call.
func (ce *ConditionEvaluator) BatchEvaluate(conditions map[string]string, variables map[string]any) (map[string]bool, error) {
	results := make(map[string]bool, len(conditions))
	for key, condition := range conditions {
		result, err := ce.Evaluate(condition, variables)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate condition for key %q: %w", key, err)
		}
		results[key] = result
	}
	return results, nil
}

// GetCacheStats reports compiled/result cache sizes.
func (ce *ConditionEvaluator) GetCacheStats() map[string]int {
	ce.mu.RLock()
	defer ce.mu.RUnlock()
	return map[string]int{
		"compiled_cache_size": len(ce.compiledCache),
		"result_cache_size":   len(ce.resultCache),
	}
}
