package backend

import (
	"fmt"
	"strings"
)

// FallbackMode decides what a failed backend call turns into.
type FallbackMode string

const (
	// FallbackMock answers with locally built data.
	FallbackMock FallbackMode = "mock"
	// FallbackError surfaces the classified backend error.
	FallbackError FallbackMode = "error"
)

// ParseFallbackMode validates a configured mode. Empty means mock.
func ParseFallbackMode(raw string) (FallbackMode, error) {
	switch FallbackMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FallbackMock:
		return FallbackMock, nil
	case FallbackError:
		return FallbackError, nil
	}
	return "", fmt.Errorf("unknown fallback mode %q", raw)
}
