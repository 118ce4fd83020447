package util

import "fmt"

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateRequired rejects an empty value.
func ValidateRequired(field, value string) *ValidationError {
	if value == "" {
		return invalid(field, "%s is required", field)
	}
	return nil
}

// ValidateRange rejects an integer outside [minVal, maxVal].
func ValidateRange(field string, value, minVal, maxVal int) *ValidationError {
	if value < minVal || value > maxVal {
		return invalid(field, "%s must be between %d and %d, got %d", field, minVal, maxVal, value)
	}
	return nil
}

// ValidateMaxLength rejects a value longer than maxLen bytes.
func ValidateMaxLength(field, value string, maxLen int) *ValidationError {
	if len(value) > maxLen {
		return invalid(field, "%s too long (max %d chars)", field, maxLen)
	}
	return nil
}

// IsConfigured returns true if all provided values are non-empty.
func IsConfigured(values ...string) bool {
	for _, v := range values {
		if v == "" {
			return false
		}
	}
	return true
}
