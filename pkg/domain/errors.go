package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	// ErrInvalidFragmentName marks a filename that does not match the
	// name@version.yaml pattern. Discovery skips such files.
	ErrInvalidFragmentName = errors.New("invalid fragment filename")

	// ErrMalformedFragment marks a fragment that failed to parse, parsed
	// to an empty document, or is missing the GovernanceFragment kind
	// marker. Discovery skips these; explicit single-file loads fail.
	ErrMalformedFragment = errors.New("malformed fragment")

	// ErrFragmentNotFound marks a manifest reference that the catalog
	// cannot satisfy. Always propagated: the merge pipeline must not run
	// with a missing fragment.
	ErrFragmentNotFound = errors.New("fragment not found")

	// ErrManifestNotFound marks a missing codex.manifest.yaml.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrSchemaUnavailable marks a missing codex.schema.json. Callers
	// treat this as "default merge strategy everywhere", not a failure.
	ErrSchemaUnavailable = errors.New("schema unavailable")
)

// NotFoundError reports a fragment reference the catalog could not resolve.
// The message always names the missing name@version so manifest authors can
// see exactly which reference is broken.
type NotFoundError struct {
	Name    string
	Version string // empty when any version was acceptable
}

func (e *NotFoundError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("fragment not found: %s", e.Name)
	}
	return fmt.Sprintf("fragment not found: %s@%s", e.Name, e.Version)
}

func (e *NotFoundError) Unwrap() error {
	return ErrFragmentNotFound
}

// FragmentError wraps a per-fragment load failure with the offending
// filename. It unwraps to one of the sentinel errors above.
type FragmentError struct {
	Filename string
	Err      error
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

func (e *FragmentError) Unwrap() error {
	return e.Err
}
