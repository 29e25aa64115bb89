package procutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveTools(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "my-nc")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	tools, err := ResolveTools(map[string]string{"nc": fake}, "nc", "")
	if err != nil {
		t.Fatalf("ResolveTools: %v", err)
	}
	if got := tools.Path("nc"); got != fake {
		t.Errorf("nc = %q, want %q", got, fake)
	}
	if got := tools.Path("ssh"); got != "" {
		t.Errorf("ssh was not requested but resolved to %q", got)
	}
}

func TestResolveToolsMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := ResolveTools(nil, "definitely-not-a-tool")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("error = %v, want ErrToolNotFound", err)
	}
}

func TestResolveToolsSearchesExtraDirs(t *testing.T) {
	extra := t.TempDir()
	if err := os.WriteFile(filepath.Join(extra, "lsof"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", t.TempDir())

	saved := extraToolDirs
	extraToolDirs = []string{extra}
	t.Cleanup(func() { extraToolDirs = saved })

	tools, err := ResolveTools(nil, "lsof")
	if err != nil {
		t.Fatalf("ResolveTools: %v", err)
	}
	if got, want := tools.Path("lsof"), filepath.Join(extra, "lsof"); got != want {
		t.Errorf("lsof = %q, want %q", got, want)
	}
}
