// Package main is the entry point for the codex binary.
// It provides a CLI for managing governance-as-code workspaces:
// initializing them, curating the fragment manifest, weaving the merged
// governance artifacts, and validating source trees against them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codexweaver/codex/pkg/domain"
	"github.com/codexweaver/codex/pkg/logging"
	"github.com/codexweaver/codex/pkg/manifest"
	"github.com/codexweaver/codex/pkg/render"
	"github.com/codexweaver/codex/pkg/schema"
	"github.com/codexweaver/codex/pkg/validate"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootFlags holds the persistent flags shared by every subcommand.
type rootFlags struct {
	root      string
	logLevel  string
	logFormat string
	verbose   bool
}

func (f *rootFlags) logger() *slog.Logger {
	level := f.logLevel
	if f.verbose {
		level = "debug"
	}
	return logging.New(logging.Config{Level: level, Format: f.logFormat})
}

// newRootCmd creates the root command for codex
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "codex",
		Short: "Governance as code for software projects",
		Long: `Codex manages project governance the way Go manages dependencies:
declared in a manifest, resolved from a versioned catalog, and woven into
deterministic artifacts under .codex/.

Example:
  codex init
  codex add team-stack@1.2.0
  codex weave
  codex validate`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.root, "root", "r", ".", "Workspace root directory")
	pf.StringVarP(&flags.logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format (text, json)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Shorthand for --log-level debug")

	rootCmd.AddCommand(
		newInitCmd(flags),
		newAddCmd(flags),
		newRemoveCmd(flags),
		newListCmd(flags),
		newWeaveCmd(flags),
		newValidateCmd(flags),
		newDiffCmd(flags),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("codex version %s\n", version)
		},
	}
}

func newInitCmd(flags *rootFlags) *cobra.Command {
	var skipAgents bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a governance workspace",
		Long: `Creates .codex/ with the default manifest, bundled standards and
fragments, the merge schema, and agent instruction files. Existing files
are never overwritten; init is safe to re-run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := manifest.Initialize(flags.root, manifest.InitOptions{
				SkipAgents: skipAgents,
			}, flags.logger())
			if err != nil {
				return err
			}
			for _, path := range created {
				fmt.Printf("created %s\n", path)
			}
			if len(created) == 0 {
				fmt.Println("workspace already initialized, nothing to do")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipAgents, "skip-agents", false, "Do not create AGENTS.md or copilot instructions")
	return cmd
}

func newAddCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <fragment[@version]>...",
		Short: "Add fragments to the manifest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := flags.logger()
			weaver := render.NewWeaver(flags.root, logger)

			sch, err := schema.Load(flags.root)
			if err != nil && !errors.Is(err, domain.ErrSchemaUnavailable) {
				return err
			}

			// Resolve before touching the manifest so a typo does
			// not leave a dangling reference behind.
			for _, ref := range args {
				frag, err := weaver.Catalog().ResolveRef(ref)
				if err != nil {
					return err
				}
				if sch == nil {
					continue
				}
				problems, err := sch.ValidateFragment(frag.Content)
				if err != nil {
					return err
				}
				for _, p := range problems {
					fmt.Fprintf(os.Stderr, "warning: %s: %s\n", frag.FullName(), p)
				}
			}

			m, err := manifest.Load(flags.root)
			if err != nil {
				return err
			}
			added := m.Add(args...)
			if len(added) == 0 {
				fmt.Println("all fragments already in manifest")
				return nil
			}
			if err := m.Save(flags.root); err != nil {
				return err
			}
			for _, ref := range added {
				fmt.Printf("added %s\n", ref)
			}
			fmt.Println("run 'codex weave' to regenerate artifacts")
			return nil
		},
	}
}

func newRemoveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <fragment[@version]>",
		Short: "Remove a fragment from the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(flags.root)
			if err != nil {
				return err
			}
			if err := m.Remove(args[0]); err != nil {
				return err
			}
			if err := m.Save(flags.root); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", args[0])
			fmt.Println("run 'codex weave' to regenerate artifacts")
			return nil
		},
	}
}

func newListCmd(flags *rootFlags) *cobra.Command {
	var all, installed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fragments",
		Long: `Lists the fragments declared in the manifest. With --all, lists every
fragment version visible in the catalog instead, local definitions
shadowing bundled ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && installed {
				return fmt.Errorf("--all and --installed are mutually exclusive")
			}
			weaver := render.NewWeaver(flags.root, flags.logger())

			if all {
				fragments, err := weaver.Catalog().All()
				if err != nil {
					return err
				}
				for _, frag := range fragments {
					line := fmt.Sprintf("%s\t%s", frag.FullName(), frag.Domain)
					if frag.Deprecated() {
						line += "\t(deprecated)"
					}
					fmt.Println(line)
				}
				return nil
			}

			m, err := manifest.Load(flags.root)
			if err != nil {
				return err
			}
			for _, ref := range m.Fragments {
				fmt.Println(ref)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "List every catalog fragment instead of the manifest")
	cmd.Flags().BoolVarP(&installed, "installed", "i", false, "List manifest fragments (the default)")
	return cmd
}

func newWeaveCmd(flags *rootFlags) *cobra.Command {
	var opts render.WeaveOptions
	var watch bool

	cmd := &cobra.Command{
		Use:   "weave",
		Short: "Merge fragments and regenerate governance artifacts",
		Long: `Resolves the manifest against the catalog, merges the fragments with
security fragments applied last, and writes the artifacts under .codex/
plus the lock file. Check mode compares the current resolution against
the lock file without writing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := flags.logger()
			weaver := render.NewWeaver(flags.root, logger)

			if watch {
				return runWatch(cmd.Context(), flags.root, weaver, opts, logger)
			}

			result, err := weaver.Weave(opts)
			if err != nil {
				return err
			}
			return printWeaveResult(result, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report what would be generated without writing")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "Verify the lock file still matches the catalog")
	cmd.Flags().BoolVar(&opts.SkipAgents, "skip-agents", false, "Leave AGENTS.md untouched")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-weave whenever the manifest or fragments change")
	return cmd
}

func printWeaveResult(result *render.WeaveResult, opts render.WeaveOptions) error {
	switch {
	case opts.Check:
		if !result.Matches {
			for _, d := range result.Drift {
				fmt.Printf("drift: %s\n", d)
			}
			return fmt.Errorf("lock file out of date, run 'codex weave'")
		}
		fmt.Println("lock file up to date")
	case opts.DryRun:
		for _, name := range result.WouldGenerate {
			fmt.Printf("would generate %s\n", name)
		}
	default:
		for _, path := range result.Generated {
			fmt.Printf("generated %s\n", path)
		}
	}
	return nil
}

// runWatch weaves once, then re-weaves on every debounced change until
// interrupted.
func runWatch(ctx context.Context, root string, weaver *render.Weaver, opts render.WeaveOptions, logger *slog.Logger) error {
	reweave := func() error {
		result, err := weaver.Weave(opts)
		if err != nil {
			logger.Error("weave failed", "error", err)
			return err
		}
		logger.Info("artifacts regenerated", "count", len(result.Generated))
		return nil
	}

	if err := reweave(); err != nil {
		return err
	}

	watcher, err := render.NewWatcher(root, reweave, logger)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := watcher.Start(ctx); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}
	return watcher.Stop()
}

func newValidateCmd(flags *rootFlags) *cobra.Command {
	var (
		structuralOnly bool
		stackOnly      bool
		exclude        []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check Go sources against the woven governance rules",
		Long: `Runs the structural checker (file size, naming conventions) and the
stack checker (imports against .codex/stack.yaml, dangerous calls) over
the workspace. Violations fail the command; warnings do not.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if structuralOnly && stackOnly {
				return fmt.Errorf("--structural and --stack are mutually exclusive")
			}

			runner := validate.NewRunner(flags.root, validate.Options{
				Exclude:        exclude,
				SkipStack:      structuralOnly,
				SkipStructural: stackOnly,
			}, flags.logger())

			result, err := runner.Run()
			if err != nil {
				return err
			}

			for _, w := range result.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
			for _, v := range result.Violations {
				fmt.Printf("violation: %s\n", v)
			}
			fmt.Printf("%d files checked, %d violations, %d warnings\n",
				result.FilesChecked, len(result.Violations), len(result.Warnings))

			if !result.Passed() {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&structuralOnly, "structural", false, "Run only the structural checker")
	cmd.Flags().BoolVar(&stackOnly, "stack", false, "Run only the stack checker")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Glob patterns to exclude (repeatable)")
	return cmd
}

func newDiffCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show artifacts that would change on the next weave",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			weaver := render.NewWeaver(flags.root, flags.logger())
			changed, err := weaver.Diff()
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				fmt.Println("artifacts up to date")
				return nil
			}
			sort.Strings(changed)
			for _, name := range changed {
				fmt.Printf("changed: %s\n", name)
			}
			return nil
		},
	}
}
