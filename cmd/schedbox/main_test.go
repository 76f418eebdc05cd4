package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const report = `cpus=1
          worker-42    [000]  1000.000100: sched_switch: prev_comm=worker prev_pid=42 prev_prio=120 prev_state=S ==> next_comm=other next_pid=50 next_prio=120
           other-50    [000]  1000.000900: sched_switch: prev_comm=other prev_pid=50 prev_prio=120 prev_state=S ==> next_comm=worker next_pid=42 next_prio=120
          worker-42    [000]  1000.001000: sched_wakeup: comm=other pid=50 prio=120 success=1 target_cpu=000
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBoxesCommand(t *testing.T) {
	path := writeFile(t, "trace.txt", report)
	out, err := run(t, "boxes", "--trace", path, "--pid", "42", "--bins", "10")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"task 42 (worker): 1 boxes, 10 bins of 90,000 ns", "linux", "switch", "bins 0-8", "linux/switch"} {
		if !strings.Contains(out, want) {
			t.Errorf("output doesn't contain %q:\n%s", want, out)
		}
	}
}

func TestBoxesCommandRange(t *testing.T) {
	path := writeFile(t, "trace.txt", report)
	out, err := run(t, "boxes", "--trace", path, "--pid", "42", "--bins", "7")
	if err != nil {
		t.Fatal(err)
	}
	if want := "7 bins of 128,572 ns from 1,000,000,100,000 ns"; !strings.Contains(out, want) {
		t.Errorf("output doesn't contain %q:\n%s", want, out)
	}
}

func TestBoxesCommandConfig(t *testing.T) {
	path := writeFile(t, "trace.txt", report)
	cfg := writeFile(t, "schedbox.yaml", "bins: 10\nvariants:\n  - name: linux\n    disabled: true\n")
	out, err := run(t, "--config", cfg, "boxes", "--trace", path, "--pid", "42")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "task 42 (worker): 0 boxes, 10 bins") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestTasksCommand(t *testing.T) {
	path := writeFile(t, "trace.txt", report)
	out, err := run(t, "tasks", "--trace", path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "42  worker") || !strings.HasSuffix(lines[1], "50  other") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCommandErrors(t *testing.T) {
	path := writeFile(t, "trace.txt", report)
	for _, args := range [][]string{
		{"boxes", "--pid", "42"},
		{"boxes", "--trace", filepath.Join(t.TempDir(), "missing"), "--pid", "42"},
		{"boxes", "--trace", path, "--pid", "42", "--bins", "10", "--min", "20", "--max", "10"},
		{"boxes", "--trace", path, "--pid", "42", "--bins", "2000000000"},
		{"boxes", "--trace", path, "--pid", "42", "--bins", "-3"},
		{"--events-dir", t.TempDir(), "boxes", "--trace", path, "--pid", "42"},
	} {
		if _, err := run(t, args...); err == nil {
			t.Errorf("%v succeeded", args)
		}
	}
}
