package config

import (
	"os"
	"path/filepath"
)

// NullProfile is used when no SSH profile file exists.
const NullProfile = "/dev/null"

// GetConfigPath returns the configuration path: $COMPASSH_CONFIG when set,
// otherwise ~/.compassh.conf.
func GetConfigPath() string {
	if p := os.Getenv("COMPASSH_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".compassh.conf"
	}
	return filepath.Join(home, ".compassh.conf")
}

// DedicatedProfilePath returns <home>/.ssh/config.<tunnel>, whether or not it exists.
func DedicatedProfilePath(home, tunnel string) string {
	return filepath.Join(home, ".ssh", "config."+tunnel)
}

// ProfilePath selects the SSH client configuration for a tunnel: the
// dedicated profile, then the shared ~/.ssh/config, then NullProfile.
func ProfilePath(home, tunnel string) string {
	candidates := []string{
		DedicatedProfilePath(home, tunnel),
		filepath.Join(home, ".ssh", "config"),
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p
		}
	}
	return NullProfile
}
