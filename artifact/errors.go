package artifact

import "fmt"

var (
	// ErrNotFound is returned when an artifact for the given run / name pair
	// does not exist in the underlying store.
	ErrNotFound = fmt.Errorf("artifact not found")

	// ErrUnknownRun is returned when writing a record for a run that was
	// never begun.
	ErrUnknownRun = fmt.Errorf("run not begun")

	// ErrMissingFrontMatter is returned when parsing an artifact without a
	// YAML header.
	ErrMissingFrontMatter = fmt.Errorf("artifact has no front matter")
)
