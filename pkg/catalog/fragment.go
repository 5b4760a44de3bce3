package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/codexweaver/codex/pkg/domain"
	"github.com/codexweaver/codex/pkg/merge"
)

// KindGovernanceFragment is the required kind marker for fragment documents.
const KindGovernanceFragment = "GovernanceFragment"

// fragmentPattern gates discovery: lowercase alphanumeric-and-hyphen name,
// @, strict MAJOR.MINOR.PATCH, .yaml. Anything else is not a fragment.
var fragmentPattern = regexp.MustCompile(`^([a-z0-9-]+)@(\d+\.\d+\.\d+)\.yaml$`)

// Fragment is an immutable, content-addressed unit of governance policy.
// (Name, Version) is its identity; Content is never modified after load.
type Fragment struct {
	Name    string
	Version string
	Domain  string
	Path    string
	Content merge.Document
	SHA256  string

	semver *semver.Version
}

// FullName returns the canonical name@version display form.
func (f *Fragment) FullName() string {
	return f.Name + "@" + f.Version
}

// Deprecated reports whether the fragment's metadata marks it deprecated.
func (f *Fragment) Deprecated() bool {
	metadata, _ := f.Content["metadata"].(merge.Document)
	deprecated, _ := metadata["deprecated"].(bool)
	return deprecated
}

// ParseFilename splits a fragment filename into name and version. It
// returns ErrInvalidFragmentName when the filename does not match the
// naming pattern.
func ParseFilename(filename string) (name, version string, err error) {
	m := fragmentPattern.FindStringSubmatch(filename)
	if m == nil {
		return "", "", &domain.FragmentError{Filename: filename, Err: domain.ErrInvalidFragmentName}
	}
	return m[1], m[2], nil
}

// ParseRef splits a manifest reference of the form "name" or
// "name@version".
func ParseRef(ref string) (name, version string) {
	if i := strings.IndexByte(ref, '@'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// LoadFragment constructs a Fragment from raw file bytes. The digest is
// computed over the raw bytes, so byte-identical files pin identically in
// the lock file. Documents that fail to parse, parse empty, or lack the
// GovernanceFragment kind marker are rejected.
func LoadFragment(filename, path string, data []byte) (*Fragment, error) {
	name, version, err := ParseFilename(filename)
	if err != nil {
		return nil, err
	}

	sv, err := semver.StrictNewVersion(version)
	if err != nil {
		return nil, &domain.FragmentError{Filename: filename, Err: fmt.Errorf("%w: bad version %q: %v", domain.ErrInvalidFragmentName, version, err)}
	}

	digest := sha256.Sum256(data)

	var content merge.Document
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, &domain.FragmentError{Filename: filename, Err: fmt.Errorf("%w: %v", domain.ErrMalformedFragment, err)}
	}
	if len(content) == 0 {
		return nil, &domain.FragmentError{Filename: filename, Err: fmt.Errorf("%w: empty document", domain.ErrMalformedFragment)}
	}
	if kind, _ := content["kind"].(string); kind != KindGovernanceFragment {
		return nil, &domain.FragmentError{Filename: filename, Err: fmt.Errorf("%w: missing kind marker", domain.ErrMalformedFragment)}
	}

	metadata, _ := content["metadata"].(merge.Document)
	fragDomain, _ := metadata["domain"].(string)
	if fragDomain == "" {
		fragDomain = "unknown"
	}

	return &Fragment{
		Name:    name,
		Version: version,
		Domain:  fragDomain,
		Path:    path,
		Content: content,
		SHA256:  hex.EncodeToString(digest[:]),
		semver:  sv,
	}, nil
}
