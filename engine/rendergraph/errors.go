package rendergraph

import "fmt"

// GraphValidationError reports a structural problem in a graph declaration,
// such as a dangling edge or a pass with no attachments. These are programmer
// errors and should be treated as fatal at startup.
type GraphValidationError struct {
	// Reason describes what is wrong with the declaration.
	Reason string
}

func (e *GraphValidationError) Error() string {
	return fmt.Sprintf("invalid render graph declaration: %s", e.Reason)
}

// UnknownPassError reports a lookup for a pass name that was never declared.
type UnknownPassError struct {
	// Name is the pass name that missed.
	Name string
}

func (e *UnknownPassError) Error() string {
	return fmt.Sprintf("render graph has no pass named %q", e.Name)
}

// UnknownNodeError reports a lookup for a node name that was never declared.
type UnknownNodeError struct {
	// Name is the node name that missed.
	Name string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("render graph has no node named %q", e.Name)
}
