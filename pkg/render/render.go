// Package render turns the merged policy tree into workspace artifacts:
// the .codex standards documents, stack.yaml, AGENTS.md sections, and the
// lock file pinning the woven fragment set.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codexweaver/codex/pkg/merge"
)

// anchorPattern matches one BEGIN/END anchor pair for the named section.
// Anchors keep user-authored text outside the markers intact across weaves.
func anchorPattern(anchor string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)(<!--\s*BEGIN_` + anchor + `\s*-->).*?(<!--\s*END_` + anchor + `\s*-->)`)
}

// Inject replaces the content between the anchor's BEGIN/END markers.
// Templates without the anchor pass through unchanged.
func Inject(template, anchor, content string) string {
	return anchorPattern(anchor).ReplaceAllString(template, "${1}\n"+content+"\n${2}")
}

// InjectAll applies an anchor→structural-key mapping against a template.
// Empty structural values leave their anchor untouched.
func InjectAll(template string, structural merge.Document, mapping map[string]string) string {
	for anchor, key := range mapping {
		content, _ := structural[key].(string)
		if content == "" {
			continue
		}
		template = Inject(template, anchor, strings.TrimRight(content, "\n"))
	}
	return template
}

// StackYAML renders rules.material.stack as the stand-alone stack.yaml
// artifact consumed by the stack validator. Map keys emit sorted, so the
// output is deterministic for a given merged tree.
func StackYAML(material merge.Document) (string, error) {
	stack, _ := material["stack"].(merge.Document)
	if stack == nil {
		stack = merge.Document{}
	}
	data, err := yaml.Marshal(stack)
	if err != nil {
		return "", fmt.Errorf("encoding stack.yaml: %w", err)
	}
	return string(data), nil
}

// StackSummary renders the markdown stack section for AGENTS.md.
func StackSummary(material merge.Document) string {
	stack, _ := material["stack"].(merge.Document)
	if len(stack) == 0 {
		return "*No stack requirements defined.*"
	}

	var lines []string
	if v, ok := stack["go_version"].(string); ok {
		lines = append(lines, fmt.Sprintf("- **Go Version:** %s", v))
	}
	if libs := stringList(stack["allowed_libraries"]); len(libs) > 0 {
		shown := libs
		more := ""
		if len(libs) > 10 {
			shown = libs[:10]
			more = fmt.Sprintf(" (+%d more)", len(libs)-10)
		}
		lines = append(lines, fmt.Sprintf("- **Allowed Libraries:** %s%s", codeJoin(shown), more))
	}
	if banned := stringList(stack["banned_libraries"]); len(banned) > 0 {
		lines = append(lines, fmt.Sprintf("- **Banned Libraries:** %s", codeJoin(banned)))
	}
	if tools := stringList(stack["required_tools"]); len(tools) > 0 {
		lines = append(lines, fmt.Sprintf("- **Required Tools:** %s", codeJoin(tools)))
	}

	if len(lines) == 0 {
		return "*No stack requirements defined.*"
	}
	return strings.Join(lines, "\n")
}

// SecuritySummary renders the markdown security section for AGENTS.md.
func SecuritySummary(material merge.Document) string {
	security, _ := material["security"].(merge.Document)
	stack, _ := material["stack"].(merge.Document)

	var lines []string
	if banned := stringList(stack["banned_libraries"]); len(banned) > 0 {
		lines = append(lines, fmt.Sprintf("- **Banned Libraries:** %s", codeJoin(banned)))
	}
	if patterns := stringList(security["forbidden_patterns"]); len(patterns) > 0 {
		lines = append(lines, fmt.Sprintf("- **Forbidden Patterns:** %s", codeJoin(patterns)))
	}
	if scan, _ := security["scan_dependencies"].(bool); scan {
		lines = append(lines, "- **Dependency Scanning:** Required")
	}
	if signed, _ := security["require_signed_commits"].(bool); signed {
		lines = append(lines, "- **Signed Commits:** Required")
	}

	if len(lines) == 0 {
		return "*No security rules defined.*"
	}
	return strings.Join(lines, "\n")
}

// ProcessSummary renders the markdown process section for AGENTS.md.
func ProcessSummary(material merge.Document) string {
	process, _ := material["process"].(merge.Document)
	if len(process) == 0 {
		return "*No process rules defined.*"
	}

	var lines []string
	if v, ok := process["branching_model"].(string); ok {
		lines = append(lines, fmt.Sprintf("- **Branching Model:** %s", v))
	}
	if v, ok := process["minimum_reviewers"]; ok {
		lines = append(lines, fmt.Sprintf("- **Minimum Reviewers:** %v", v))
	}
	if checks := stringList(process["required_status_checks"]); len(checks) > 0 {
		lines = append(lines, fmt.Sprintf("- **Required Checks:** %s", codeJoin(checks)))
	}
	if v, ok := process["release_cadence"].(string); ok {
		lines = append(lines, fmt.Sprintf("- **Release Cadence:** %s", v))
	}

	if len(lines) == 0 {
		return "*No process rules defined.*"
	}
	return strings.Join(lines, "\n")
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func codeJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "`" + item + "`"
	}
	return strings.Join(quoted, ", ")
}
