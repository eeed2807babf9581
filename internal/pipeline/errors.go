package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedInput = errors.New("malformed input")
	ErrEmptyResult    = errors.New("no proxies found")
)

// MalformedInputError lists the lines of a proxy file that are not
// `<protocol>://<ip>:<port>`.
type MalformedInputError struct {
	Lines []string
}

func (e *MalformedInputError) Error() string {
	const shown = 3
	sample := e.Lines
	if len(sample) > shown {
		sample = sample[:shown]
	}
	return fmt.Sprintf("malformed input: %d invalid line(s): %s", len(e.Lines), strings.Join(sample, ", "))
}

func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}
