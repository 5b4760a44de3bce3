// Package domain defines the core types and error taxonomy for the
// governance toolchain.
//
// This package contains pure domain logic with ZERO external dependencies
// outside the Go standard library. Other packages (catalog, merge, render,
// validate) depend on these types; the dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
