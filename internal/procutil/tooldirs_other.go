//go:build !darwin

package procutil

var extraToolDirs = []string{"/usr/local/bin"}
