package genome

import "fmt"

// SerializationError reports content that cannot be put in canonical form,
// for example a map holding a channel, a function or a NaN float.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("canonical serialization: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }
