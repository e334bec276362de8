// Package validation checks the keys supplied in request query parameters.
// Keys are only checked for presence; the optional caps exist for operators
// who want to bound request size and are off unless configured.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/medpricing/medical-data-service/interfaces"
)

// KeySeparator separates keys in list parameters
const KeySeparator = ","

// ErrInvalidInput is matched by every ValidationError
var ErrInvalidInput = errors.New("invalid input")

// ValidationError describes a rejected request parameter
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Param, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) hold
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Limits bounds list parameters. Zero values disable a limit.
type Limits struct {
	MaxKeyLength      int // runes per key
	MaxKeysPerRequest int
}

// Compile-time check to ensure Validator implements InputValidator
var _ interfaces.InputValidator = (*Validator)(nil)

// Validator implements interfaces.InputValidator
type Validator struct {
	limits Limits
}

// NewValidator creates a validator that only checks presence
func NewValidator() *Validator {
	return &Validator{}
}

// NewValidatorWithLimits creates a validator enforcing the given caps
func NewValidatorWithLimits(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// ValidateInput checks that a single key is present
func (v *Validator) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return &ValidationError{Reason: "input cannot be empty"}
	}

	if limit := v.limits.MaxKeyLength; limit > 0 && utf8.RuneCountInString(input) > limit {
		return &ValidationError{Reason: fmt.Sprintf("input too long: maximum %d characters", limit)}
	}

	return nil
}

// ParseKeyList splits a comma separated parameter value into keys.
// Tokens are trimmed, empty tokens dropped and duplicates removed keeping
// the first occurrence. The result holds at least one key.
func (v *Validator) ParseKeyList(param, raw string) ([]string, error) {
	tokens := strings.Split(raw, KeySeparator)
	keys := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))

	for _, token := range tokens {
		key := strings.TrimSpace(token)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		if err := v.ValidateInput(key); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return nil, &ValidationError{Param: param, Reason: ve.Reason}
			}
			return nil, err
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil, &ValidationError{Param: param, Reason: "parameter is required"}
	}
	if limit := v.limits.MaxKeysPerRequest; limit > 0 && len(keys) > limit {
		return nil, &ValidationError{Param: param, Reason: fmt.Sprintf("too many values: maximum %d", limit)}
	}

	return keys, nil
}
