package domain

import "fmt"

// VariableType classifies a Go value for the limited purposes of literal
// parsing and assertion-injection repr formatting (spec §6: string,
// signed integer, float, boolean, None, list, tuple, dict).
type VariableType string

const (
	VariableTypeString VariableType = "string"
	VariableTypeInt     VariableType = "int"
	VariableTypeFloat   VariableType = "float"
	VariableTypeBool    VariableType = "bool"
	VariableTypeList    VariableType = "list"
	VariableTypeTuple   VariableType = "tuple"
	VariableTypeDict    VariableType = "dict"
	VariableTypeNone    VariableType = "none"
	VariableTypeUnknown VariableType = "unknown"
)

// InferType infers the VariableType from a decoded Go value.
func InferType(v any) VariableType {
	switch val := v.(type) {
	case nil:
		return VariableTypeNone
	case string:
		return VariableTypeString
	case bool:
		return VariableTypeBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return VariableTypeInt
	case float32, float64:
		return VariableTypeFloat
	case Tuple:
		return VariableTypeTuple
	case []any:
		return VariableTypeList
	case map[string]any:
		return VariableTypeDict
	default:
		_ = val
		return VariableTypeUnknown
	}
}

// DomainError is a domain-specific error carrying a closed error code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Common domain error codes.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeInvariantViolated = "INVARIANT_VIOLATED"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeInvalidType       = "INVALID_TYPE"
)

// NewDomainError creates a new domain error.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}
