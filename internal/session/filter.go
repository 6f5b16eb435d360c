package session

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Topic filter wildcards.
const (
	// WildcardAll is the multi-level wildcard. On its own it matches every
	// topic not starting with '$'.
	WildcardAll = "#"

	// WildcardLevel is the single-level wildcard.
	WildcardLevel = "+"

	// maxTopicLength is the longest UTF-8 string MQTT can encode.
	maxTopicLength = 65535

	// MaxQoS is the highest delivery guarantee.
	MaxQoS = 2
)

// ValidateFilter checks a subscription filter against the MQTT rules:
// non-empty valid UTF-8 without NUL, '#' only as the whole last level,
// '+' only as a whole level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFilter)
	}
	if len(filter) > maxTopicLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidFilter, len(filter), maxTopicLength)
	}
	if !utf8.ValidString(filter) || strings.ContainsRune(filter, 0) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidFilter)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, WildcardAll) {
			if level != WildcardAll || i != len(levels)-1 {
				return fmt.Errorf("%w: %q: '#' must be the last level on its own", ErrInvalidFilter, filter)
			}
		}
		if strings.Contains(level, WildcardLevel) && level != WildcardLevel {
			return fmt.Errorf("%w: %q: '+' must occupy a whole level", ErrInvalidFilter, filter)
		}
	}
	return nil
}

// ValidateQoS checks that qos is 0, 1 or 2.
func ValidateQoS(qos byte) error {
	if qos > MaxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	return nil
}
