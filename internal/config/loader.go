package config

import "fmt"

// Load parses argv into a validated Invocation with module search
// paths resolved from the environment, mirroring the precedence the
// teacher's own Load() documented (defaults, then environment, then
// flags) even though here "flags" means a hand-parsed argv rather than
// the standard flag package.
func Load(argv []string) (*Invocation, ModulePaths, error) {
	paths := LoadModulePaths()

	inv, err := ParseArgs(argv)
	if err != nil {
		return nil, paths, fmt.Errorf("invalid arguments: %w", err)
	}

	if err := inv.Validate(len(inv.Filters)); err != nil {
		return nil, paths, fmt.Errorf("invalid invocation: %w", err)
	}

	return inv, paths, nil
}
