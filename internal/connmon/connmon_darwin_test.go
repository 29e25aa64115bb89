//go:build darwin

package connmon

import (
	"strings"
	"testing"
)

func TestParseLsof(t *testing.T) {
	out := "p4242\nn*:1080\nn[::1]:1080\np5000\nn127.0.0.1:1090\n"
	ls, err := parseLsof(strings.NewReader(out), 1080)
	if err != nil {
		t.Fatalf("parseLsof: %v", err)
	}
	if len(ls) != 2 {
		t.Fatalf("got %d listeners, want 2: %+v", len(ls), ls)
	}
	for _, l := range ls {
		if l.PID != 4242 {
			t.Errorf("listener %s has pid %d, want 4242", l.LocalAddr, l.PID)
		}
	}
	if pids := distinctPIDs(ls); len(pids) != 1 {
		t.Errorf("distinctPIDs = %v, want one pid", pids)
	}
}
