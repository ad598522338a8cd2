package source

import (
	"fmt"

	"github.com/elonfeng/rankradar/pkg/rank"
)

// NetworkError reports a failed fetch: DNS, connect, timeout or a non-2xx
// status. StatusCode is zero when no response was received.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError reports markup that lacks the expected ranking structure.
// An empty ranking is not a ParseError.
type ParseError struct {
	Kind     rank.Kind
	Selector string
	// Section is the label that was also missing, if one was looked for.
	Section string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("parse %s rankings: %v", e.Kind, e.Err)
	case e.Section != "":
		return fmt.Sprintf("parse %s rankings: nothing matches %s and no %q section on the page", e.Kind, e.Selector, e.Section)
	}
	return fmt.Sprintf("parse %s rankings: %s not found", e.Kind, e.Selector)
}

func (e *ParseError) Unwrap() error { return e.Err }
