// Package catalog discovers, indexes and resolves governance fragments
// from bundled and local sources.
package catalog

import (
	"log/slog"
	"sort"

	"github.com/codexweaver/codex/pkg/domain"
)

// Catalog aggregates fragments from two provenance tiers. Bundled entries
// load first; local entries shadow bundled ones with the same
// (name, version). Discovery re-reads the sources on every query rather
// than caching: fragment sets are tens of files, and never caching means
// never invalidating.
type Catalog struct {
	sources []Source
	logger  *slog.Logger
}

// New builds a catalog over the given sources, applied in order with
// later sources shadowing earlier ones. Typical usage passes the bundled
// source first and the local fragments directory second.
func New(logger *slog.Logger, sources ...Source) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{sources: sources, logger: logger}
}

// Discover loads every fragment from every source, deduplicates by exact
// (name, version) with later sources winning, and returns the index with
// each name's versions sorted newest first by numeric semver comparison.
// Malformed files are skipped with a diagnostic, never fatal.
func (c *Catalog) Discover() (map[string][]*Fragment, error) {
	byKey := make(map[string]*Fragment)
	order := make(map[string][]string) // name -> version keys, insertion order

	for _, source := range c.sources {
		files, err := source.Files()
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			frag, err := LoadFragment(file.Name, file.Path, file.Data)
			if err != nil {
				c.logger.Debug("skipping invalid fragment",
					"source", source.Label(), "file", file.Name, "error", err)
				continue
			}
			key := frag.FullName()
			if _, seen := byKey[key]; !seen {
				order[frag.Name] = append(order[frag.Name], key)
			}
			byKey[key] = frag
			c.logger.Debug("discovered fragment",
				"source", source.Label(), "fragment", key, "domain", frag.Domain)
		}
	}

	index := make(map[string][]*Fragment, len(order))
	for name, keys := range order {
		fragments := make([]*Fragment, 0, len(keys))
		for _, key := range keys {
			fragments = append(fragments, byKey[key])
		}
		sort.SliceStable(fragments, func(i, j int) bool {
			return fragments[i].semver.GreaterThan(fragments[j].semver)
		})
		index[name] = fragments
	}
	return index, nil
}

// Resolve returns the fragment for name at the given version, or the
// highest version when version is empty. A missing name or version is
// always an error naming the reference, never swallowed: a manifest
// pointing at a missing fragment must stop the pipeline.
func (c *Catalog) Resolve(name, version string) (*Fragment, error) {
	index, err := c.Discover()
	if err != nil {
		return nil, err
	}

	fragments, ok := index[name]
	if !ok || len(fragments) == 0 {
		return nil, &domain.NotFoundError{Name: name, Version: version}
	}

	if version == "" {
		return fragments[0], nil
	}
	for _, frag := range fragments {
		if frag.Version == version {
			return frag, nil
		}
	}
	return nil, &domain.NotFoundError{Name: name, Version: version}
}

// ResolveRef resolves a manifest reference of the form "name" or
// "name@version".
func (c *Catalog) ResolveRef(ref string) (*Fragment, error) {
	name, version := ParseRef(ref)
	return c.Resolve(name, version)
}

// Latest returns the newest version of every known fragment, sorted by
// name for stable listings.
func (c *Catalog) Latest() ([]*Fragment, error) {
	index, err := c.Discover()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	sort.Strings(names)

	latest := make([]*Fragment, 0, len(names))
	for _, name := range names {
		latest = append(latest, index[name][0])
	}
	return latest, nil
}

// All returns every known fragment version, sorted by name then newest
// version first.
func (c *Catalog) All() ([]*Fragment, error) {
	index, err := c.Discover()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	sort.Strings(names)

	var all []*Fragment
	for _, name := range names {
		all = append(all, index[name]...)
	}
	return all, nil
}
