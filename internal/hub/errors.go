package hub

import "fmt"

// ValidationError rejects an event at the boundary. Nothing was mutated.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("hub: %s is required", e.Field)
}
