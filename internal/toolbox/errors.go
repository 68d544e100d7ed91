package toolbox

import "fmt"

// ToolNotFoundError is returned for an unregistered tool name.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// ToolError wraps a tool that executed and failed. It stays inside the
// loop as data for the model; it never crosses the transport boundary.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// AccessError marks a filesystem path outside the sandbox.
type AccessError struct {
	Path string
	Root string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("path %q is outside workspace %q", e.Path, e.Root)
}
