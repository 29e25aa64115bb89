// Package procutil wraps the process-boundary operations compassh needs:
// locating external tools, spawning detached children, signalling and
// replacing the current process.
package procutil

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// ErrToolNotFound means a required external command could not be located.
var ErrToolNotFound = errors.New("required tool not found")

// Tools maps a tool name (nc, ssh, lsof) to its resolved absolute path.
type Tools map[string]string

// ResolveTools locates every named tool once. Overrides map a tool name to
// an explicit path; all other names are looked up in PATH.
func ResolveTools(overrides map[string]string, names ...string) (Tools, error) {
	tools := make(Tools, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		candidate := name
		if p, ok := overrides[name]; ok && p != "" {
			candidate = p
		}
		path, err := lookPath(candidate)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrToolNotFound, name, err)
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		tools[name] = path
	}
	return tools, nil
}

// lookPath searches PATH, then the platform's extra tool directories.
// A name containing a slash is only checked as given.
func lookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err == nil || strings.Contains(name, "/") {
		return path, err
	}
	for _, dir := range extraToolDirs {
		if p, lerr := exec.LookPath(filepath.Join(dir, name)); lerr == nil {
			return p, nil
		}
	}
	return "", err
}

// Path returns the resolved path of name, or "" when it was not requested.
func (t Tools) Path(name string) string {
	return t[name]
}

// Names returns the resolved tool names in lexical order.
func (t Tools) Names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
