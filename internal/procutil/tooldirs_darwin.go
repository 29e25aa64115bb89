//go:build darwin

package procutil

// When launched from Finder, launchd or a GUI ssh client the PATH is
// minimal (/usr/bin:/bin:/usr/sbin:/sbin) and misses Homebrew and MacPorts.
var extraToolDirs = []string{
	"/opt/homebrew/bin", // Homebrew on Apple Silicon
	"/usr/local/bin",    // Homebrew on Intel
	"/opt/local/bin",    // MacPorts
}
