package elephant

import (
	"errors"
	"fmt"
)

// ErrMemoryNotFound is returned when a genome is not remembered.
var ErrMemoryNotFound = errors.New("memory not found")

// ConfigurationError reports an absent optional collaborator. The engine
// skips the dependent step instead of failing the call.
type ConfigurationError struct {
	Collaborator string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s not configured", e.Collaborator)
}

// ErrNoRecordSink marks ingests that were not forwarded to an indexed store.
var ErrNoRecordSink = &ConfigurationError{Collaborator: "indexed store"}
