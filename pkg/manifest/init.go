package manifest

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/codexweaver/codex/pkg/bundled"
)

// InitOptions controls workspace initialization.
type InitOptions struct {
	// SkipAgents suppresses creation of AGENTS.md and the copilot
	// instruction file.
	SkipAgents bool
}

// Initialize creates the .codex workspace structure: directories, the
// default manifest, bundled standards and fragments, the default merge
// schema, and the agent instruction files. Existing files are always left
// untouched so local customization survives re-init. It returns the paths
// it created.
func Initialize(root string, opts InitOptions, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, dir := range []string{CodexDir, FragmentsDir, StandardsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	var created []string

	manifestPath := Path(root)
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		if err := Default().Save(root); err != nil {
			return nil, err
		}
		created = append(created, manifestPath)
		logger.Debug("created manifest", "path", manifestPath)
	} else {
		logger.Debug("manifest already exists", "path", manifestPath)
	}

	made, err := materialize(bundled.Standards(), bundled.StandardsRoot,
		bundled.StandardFiles, filepath.Join(root, StandardsDir), logger)
	if err != nil {
		return nil, err
	}
	created = append(created, made...)

	made, err = materialize(bundled.Fragments(), bundled.FragmentsRoot,
		bundled.FragmentFiles, filepath.Join(root, FragmentsDir), logger)
	if err != nil {
		return nil, err
	}
	created = append(created, made...)

	schemaPath := filepath.Join(root, SchemaFile)
	if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
		data, err := bundled.DefaultSchema()
		if err != nil {
			return nil, fmt.Errorf("reading bundled schema: %w", err)
		}
		if err := os.WriteFile(schemaPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", SchemaFile, err)
		}
		created = append(created, schemaPath)
	}

	if !opts.SkipAgents {
		made, err = initializeAgentFiles(root, logger)
		if err != nil {
			return nil, err
		}
		created = append(created, made...)
	} else {
		logger.Debug("skipping agent instruction files")
	}

	return created, nil
}

// materialize copies bundled files into a workspace directory, preserving
// any that already exist.
func materialize(fsys fs.FS, fsRoot string, names []string, targetDir string, logger *slog.Logger) ([]string, error) {
	var created []string
	for _, name := range names {
		target := filepath.Join(targetDir, name)
		if _, err := os.Stat(target); err == nil {
			logger.Debug("already exists, keeping local copy", "path", target)
			continue
		}

		data, err := fs.ReadFile(fsys, fsRoot+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("bundled file %s: %w", name, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", target, err)
		}
		created = append(created, target)
		logger.Debug("materialized bundled file", "path", target)
	}
	return created, nil
}

// initializeAgentFiles creates AGENTS.md (from the standards template) and
// .github/copilot-instructions.md when missing.
func initializeAgentFiles(root string, logger *slog.Logger) ([]string, error) {
	var created []string

	agentsPath := filepath.Join(root, AgentsFile)
	if _, err := os.Stat(agentsPath); os.IsNotExist(err) {
		template := filepath.Join(root, StandardsDir, "agents.md")
		data, err := os.ReadFile(template) // #nosec G304 -- fixed workspace-relative path
		if err != nil {
			// Fall back to the bundled template when the standards copy
			// was removed by the user.
			data, err = fs.ReadFile(bundled.Standards(), bundled.StandardsRoot+"/agents.md")
			if err != nil {
				return nil, fmt.Errorf("agents template: %w", err)
			}
		}
		if err := os.WriteFile(agentsPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", AgentsFile, err)
		}
		created = append(created, agentsPath)
		logger.Debug("created agents file", "path", agentsPath)
	}

	copilotPath := filepath.Join(root, CopilotFile)
	if _, err := os.Stat(copilotPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(copilotPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating .github: %w", err)
		}
		if err := os.WriteFile(copilotPath, []byte(copilotInstructions), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", CopilotFile, err)
		}
		created = append(created, copilotPath)
		logger.Debug("created copilot instructions", "path", copilotPath)
	}

	return created, nil
}

const copilotInstructions = `# GitHub Copilot Instructions

This repository uses **CODEX** for governance-as-code.

**Primary reference:** See [AGENTS.md](../AGENTS.md) for complete AI agent instructions.

## Quick Rules

1. Run ` + "`codex validate`" + ` before submitting code
2. Follow stack requirements in ` + "`.codex/stack.yaml`" + `
3. Never import banned libraries (see ` + "`.codex/security.md`" + `)
4. All code must pass ` + "`go test ./...`" + `

For detailed governance, security controls, and process guidelines,
refer to the AGENTS.md file at the repository root.
`
