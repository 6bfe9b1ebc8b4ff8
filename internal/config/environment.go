package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ModulePaths holds the colon-separated search lists the plugin loader
// consults, one per environment variable it reads.
type ModulePaths struct {
	Module     []string // QS_MODULE_PATH: searched for both filters and controllers
	Filter     []string // QS_FILTER_PATH
	Controller []string // QS_CONTROLLER_PATH
	Run        []string // QS_RUN_PATH
}

// LoadModulePaths reads the four QS_*_PATH environment variables and
// falls back to the running executable's own directory when none are
// set, the direct Go equivalent of the original's
// /proc/self/exe-relative fallback.
func LoadModulePaths() ModulePaths {
	mp := ModulePaths{
		Module:     splitPath(os.Getenv("QS_MODULE_PATH")),
		Filter:     splitPath(os.Getenv("QS_FILTER_PATH")),
		Controller: splitPath(os.Getenv("QS_CONTROLLER_PATH")),
		Run:        splitPath(os.Getenv("QS_RUN_PATH")),
	}
	if fallback, ok := exeDirFallback(); ok {
		if len(mp.Module) == 0 {
			mp.Module = []string{fallback}
		}
		if len(mp.Filter) == 0 {
			mp.Filter = []string{fallback}
		}
		if len(mp.Controller) == 0 {
			mp.Controller = []string{fallback}
		}
		if len(mp.Run) == 0 {
			mp.Run = []string{fallback}
		}
	}
	return mp
}

func splitPath(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func exeDirFallback() (string, bool) {
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	return filepath.Dir(exe), true
}
