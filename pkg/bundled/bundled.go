// Package bundled ships the default governance fragments and standard
// templates inside the binary. They form the bundled tier of the catalog;
// local files with the same (name, version) shadow them.
package bundled

import (
	"embed"
	"io/fs"
)

//go:embed fragments/*.yaml
var fragmentFS embed.FS

//go:embed standards/*.md
var standardsFS embed.FS

//go:embed codex.schema.json
var schemaFS embed.FS

// Fragments returns the embedded default fragment files.
func Fragments() fs.FS {
	return fragmentFS
}

// FragmentsRoot is the directory inside Fragments() holding the files.
const FragmentsRoot = "fragments"

// Standards returns the embedded standard templates.
func Standards() fs.FS {
	return standardsFS
}

// StandardsRoot is the directory inside Standards() holding the files.
const StandardsRoot = "standards"

// DefaultSchema returns the bundled codex.schema.json bytes.
func DefaultSchema() ([]byte, error) {
	return fs.ReadFile(schemaFS, "codex.schema.json")
}

// FragmentFiles lists the bundled fragment filenames in manifest order.
var FragmentFiles = []string{
	"base@1.0.0.yaml",
	"architecture-core@1.0.0.yaml",
	"stack-core@1.0.0.yaml",
	"process-core@1.0.0.yaml",
	"security-core@1.0.0.yaml",
}

// StandardFiles lists the bundled standard template filenames.
var StandardFiles = []string{
	"architecture.md",
	"process.md",
	"security.md",
	"agents.md",
}
