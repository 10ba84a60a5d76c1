package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDimension indicates a non-positive length, window or step, a
	// negative border, or per-axis settings whose arity does not match the
	// spatial shape.
	ErrInvalidDimension = errors.New("invalid dimension")

	// ErrInvalidBorderWeight indicates a border weight outside [0, 1].
	ErrInvalidBorderWeight = errors.New("invalid border weight")

	// ErrBorderTooWide indicates 2*border >= window.
	ErrBorderTooWide = errors.New("border too wide")

	// ErrWindowExceedsLength indicates a window larger than its axis while
	// truncation is disabled.
	ErrWindowExceedsLength = errors.New("window exceeds length")
)

// ConfigError reports an invalid tiling configuration. Kind is one of the
// sentinel errors above and is matched by errors.Is.
type ConfigError struct {
	Kind error
	// Axis is the spatial axis at fault, or -1 when no single axis is.
	Axis   int
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Axis < 0 {
		return fmt.Sprintf("tiling config: %v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("tiling config: axis %d: %v: %s", e.Axis, e.Kind, e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Kind }

func configErrorf(kind error, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, Axis: -1, Detail: fmt.Sprintf(format, args...)}
}
