package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseArgs hand-walks argv into an Invocation. This is deliberately
// not built on the standard flag package: the CLI surface has shapes
// flag can't express directly — `-c`/`-p` each take one multi-token
// argument, `-f`/`--controller` group trailing module arguments inside
// `{ … }`, and long options accept both `--name VAL` and `--name=VAL`
// while short options never take an attached value. The walk decides
// per-token what it means, one register/apply pair per option, the way
// a hand-rolled flag parser for an unusual grammar normally does.
func ParseArgs(argv []string) (*Invocation, error) {
	inv := NewInvocation()

	i := 0
	next := func(flagName string) (string, error) {
		i++
		if i >= len(argv) {
			return "", fmt.Errorf("%s: missing argument", flagName)
		}
		return argv[i], nil
	}

	for ; i < len(argv); i++ {
		arg := argv[i]
		name, inlineVal, hasInline := splitLongOpt(arg)

		switch name {
		case "--filter", "-f":
			val := inlineVal
			var err error
			if !hasInline {
				val, err = next(name)
				if err != nil {
					return nil, err
				}
			}
			fl := FilterLoad{Path: val}
			moduleArgs, consumed, err := maybeConsumeBraceGroup(argv, i+1)
			if err != nil {
				return nil, err
			}
			if consumed > 0 {
				i += consumed
				fl.Args = moduleArgs
				fl.Name = extractName(moduleArgs)
			}
			if fl.Name == "" {
				fl.Name = deriveName(fl.Path)
			}
			inv.Filters = append(inv.Filters, fl)

		case "--filter-help", "-F":
			val := inlineVal
			var err error
			if !hasInline {
				val, err = next(name)
				if err != nil {
					return nil, err
				}
			}
			inv.FilterHelp = val

		case "--controller":
			val := inlineVal
			var err error
			if !hasInline {
				val, err = next(name)
				if err != nil {
					return nil, err
				}
			}
			cl := ControllerLoad{Path: val}
			moduleArgs, consumed, err := maybeConsumeBraceGroup(argv, i+1)
			if err != nil {
				return nil, err
			}
			if consumed > 0 {
				i += consumed
				cl.Args = moduleArgs
				cl.Name = extractName(moduleArgs)
			}
			if cl.Name == "" {
				cl.Name = deriveName(cl.Path)
			}
			inv.Controllers = append(inv.Controllers, cl)

		case "--connect", "-c":
			val := inlineVal
			var err error
			if !hasInline {
				val, err = next(name)
				if err != nil {
					return nil, err
				}
			}
			spec, err := parseConnectSpec(val)
			if err != nil {
				return nil, err
			}
			inv.Connects = append(inv.Connects, spec)

		case "--plug", "-p":
			val := inlineVal
			var err error
			if !hasInline {
				val, err = next(name)
				if err != nil {
					return nil, err
				}
			}
			plug, err := parsePlugSpec(val)
			if err != nil {
				return nil, err
			}
			inv.Plugs = append(inv.Plugs, plug)

		case "--threads", "-t":
			val := inlineVal
			var err error
			if !hasInline {
				val, err = next(name)
				if err != nil {
					return nil, err
				}
			}
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("--threads: invalid value %q", val)
			}
			inv.Threads = n

		case "--ready", "-R":
			inv.Ready = true
		case "--run", "-r":
			inv.Run = true
		case "--display", "-d":
			inv.Display = true
		case "--display-wait", "-D":
			inv.Display = true
			inv.DisplayWait = true
		case "--dot", "-g":
			inv.Dot = true
		case "--verbose", "-v":
			inv.Verbose++
		case "--no-verbose", "-n":
			inv.Verbose--
		case "--help", "-h":
			inv.Help = true
		case "--version", "-V":
			inv.Version = true

		default:
			return nil, fmt.Errorf("unknown option %q", arg)
		}
	}

	return inv, nil
}

// splitLongOpt splits a `--name=value` token into name and value. Short
// options and bare long options are returned unchanged with hasInline
// false.
func splitLongOpt(arg string) (name, val string, hasInline bool) {
	if strings.HasPrefix(arg, "--") {
		if idx := strings.IndexByte(arg, '='); idx >= 0 {
			return arg[:idx], arg[idx+1:], true
		}
	}
	return arg, "", false
}

// maybeConsumeBraceGroup consumes a `{ tok tok … }` group starting at
// argv[from], if argv[from] is exactly "{". Returns the tokens inside
// (not including the braces) and how many argv entries were consumed.
func maybeConsumeBraceGroup(argv []string, from int) ([]string, int, error) {
	if from >= len(argv) || argv[from] != "{" {
		return nil, 0, nil
	}
	var toks []string
	j := from + 1
	for ; j < len(argv); j++ {
		if argv[j] == "}" {
			return toks, j - from + 1, nil
		}
		toks = append(toks, argv[j])
	}
	return nil, 0, fmt.Errorf("unterminated module-argument group starting at argument %d", from)
}

// extractName looks for a `--name VAL` or `--name=VAL` pair inside a
// module-argument group and returns VAL, or "" if absent.
func extractName(moduleArgs []string) string {
	for i := 0; i < len(moduleArgs); i++ {
		name, val, hasInline := splitLongOpt(moduleArgs[i])
		if name != "--name" {
			continue
		}
		if hasInline {
			return val
		}
		if i+1 < len(moduleArgs) {
			return moduleArgs[i+1]
		}
	}
	return ""
}

// deriveName strips a directory prefix and a trailing ".so" suffix
// from path, the default filter name when no explicit name is given.
func deriveName(path string) string {
	name := path
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSuffix(name, ".so")
	return name
}

func parseConnectSpec(val string) (ConnectSpec, error) {
	fields := strings.Fields(val)
	if len(fields)%2 != 0 {
		return ConnectSpec{}, fmt.Errorf("--connect: odd number of indices in %q", val)
	}
	spec := ConnectSpec{}
	for i := 0; i < len(fields); i += 2 {
		from, err := strconv.Atoi(fields[i])
		if err != nil {
			return ConnectSpec{}, fmt.Errorf("--connect: invalid index %q", fields[i])
		}
		to, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return ConnectSpec{}, fmt.Errorf("--connect: invalid index %q", fields[i+1])
		}
		spec.Pairs = append(spec.Pairs, [2]int{from, to})
	}
	return spec, nil
}

func parsePlugSpec(val string) (PlugSpec, error) {
	fields := strings.Fields(val)
	if len(fields) != 4 {
		return PlugSpec{}, fmt.Errorf("--plug: expected 4 fields \"from to fromPort toPort\", got %q", val)
	}
	nums := make([]int, 4)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return PlugSpec{}, fmt.Errorf("--plug: invalid field %q", f)
		}
		nums[i] = n
	}
	return PlugSpec{From: nums[0], To: nums[1], FromPort: nums[2], ToPort: nums[3]}, nil
}
