package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
)

const logPrefix = "catalog:loader"

// EnvFile names the environment variable holding the catalogue path.
const EnvFile = "OPERATIONS_CATALOG_FILE"

// DefaultPath is tried after any explicit path and EnvFile.
const DefaultPath = "config/operations.json"

// LoadCatalog loads the first catalogue file that exists. Paths passed in are tried first,
// then OPERATIONS_CATALOG_FILE, then DefaultPath. A missing file is skipped; a file that
// exists but does not parse or validate is an error. It returns nil when no file is found.
func LoadCatalog(paths ...string) (*Catalog, string, error) {
	all := make([]string, 0, len(paths)+2)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, DefaultPath)

	for _, p := range all {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, p, fmt.Errorf("%s - failed to read %s: %w", logPrefix, p, err)
		}

		cat, err := Parse(data)
		if err != nil {
			return nil, p, fmt.Errorf("%s - %s: %w", logPrefix, p, err)
		}
		slog.Info(fmt.Sprintf("%s - Loaded %d operations and %d aliases from %s", logPrefix, len(cat.Operations), len(cat.Aliases), p))
		return cat, p, nil
	}

	slog.Debug(fmt.Sprintf("%s - No operations catalogue found, using built-in operations", logPrefix))
	return nil, "", nil
}

// Parse decodes and validates a catalogue.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("invalid catalogue JSON: %w", err)
	}
	seen := make(map[string]bool, len(cat.Operations))
	for i, op := range cat.Operations {
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("operation %d (%q): %w", i, op.Name, err)
		}
		if seen[op.Name] {
			return nil, fmt.Errorf("operation %q declared twice", op.Name)
		}
		seen[op.Name] = true
	}
	for alias, target := range cat.Aliases {
		if alias == "" || target == "" {
			return nil, fmt.Errorf("alias %q -> %q is incomplete", alias, target)
		}
		if seen[alias] {
			return nil, fmt.Errorf("alias %q shadows a declared operation", alias)
		}
	}
	return &cat, nil
}

// Apply registers the catalogue's operations, then its aliases. It returns the number
// of names registered.
func Apply(cat *Catalog, reg Registerer) (int, error) {
	if cat == nil {
		return 0, nil
	}
	count := 0
	for _, op := range cat.Operations {
		if _, exists := reg.Operation(op.Name); exists {
			slog.Info(fmt.Sprintf("%s - Overriding built-in operation %s", logPrefix, op.Name))
		}
		if err := reg.Register(op); err != nil {
			return count, fmt.Errorf("%s - failed to register %s: %w", logPrefix, op.Name, err)
		}
		count++
	}

	aliases := make([]string, 0, len(cat.Aliases))
	for alias := range cat.Aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		target := cat.Aliases[alias]
		op, ok := reg.Operation(target)
		if !ok {
			return count, fmt.Errorf("%s - alias %s points at unknown operation %s", logPrefix, alias, target)
		}
		op.Name = alias
		if op.Call == "" {
			op.Call = target
		}
		if err := reg.Register(op); err != nil {
			return count, fmt.Errorf("%s - failed to register alias %s: %w", logPrefix, alias, err)
		}
		count++
	}
	return count, nil
}
