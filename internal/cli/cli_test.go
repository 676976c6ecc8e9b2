package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRootCmd_hasSubcommands(t *testing.T) {
	root := NewRootCmd("test")
	if root == nil {
		t.Fatal("NewRootCmd returned nil")
	}
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status", "doctor", "daemon"} {
		if !names[want] {
			t.Errorf("expected subcommand %q", want)
		}
	}
}

func TestNewRootCmd_daemonIsHidden(t *testing.T) {
	root := NewRootCmd("")
	for _, c := range root.Commands() {
		if c.Name() == "daemon" && !c.Hidden {
			t.Error("daemon subcommand should be hidden")
		}
	}
}

func TestNewRootCmd_versionFlag(t *testing.T) {
	root := NewRootCmd("1.2.3")
	if root.Version != "1.2.3" {
		t.Errorf("Version: got %q", root.Version)
	}
	if NewRootCmd("").Version != "dev" {
		t.Error("empty version should default to dev")
	}
}

func TestNewRootCmd_hasDirFlags(t *testing.T) {
	root := NewRootCmd("")
	for _, name := range []string{"agent-dir", "plan-dir"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected --%s persistent flag", name)
		}
	}
}

func TestDoctor_healthy(t *testing.T) {
	agentDir := t.TempDir()
	planDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(planDir, "queue.md"), []byte("- [a] task\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := NewRootCmd("")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"doctor", "--agent-dir", agentDir, "--plan-dir", planDir})
	if err := root.Execute(); err != nil {
		t.Fatalf("doctor: %v\nstderr: %s", err, errOut.String())
	}
}

func TestDoctor_missingQueue(t *testing.T) {
	root := NewRootCmd("")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"doctor", "--agent-dir", t.TempDir(), "--plan-dir", t.TempDir()})
	if err := root.Execute(); err == nil {
		t.Fatal("doctor should fail when the plan dir has no queue.md")
	}
	if !strings.Contains(errOut.String(), "queue.md") {
		t.Errorf("stderr should name the missing file; got:\n%s", errOut.String())
	}
}

func TestDoctor_noPlanDirIsInformational(t *testing.T) {
	t.Setenv("PLANDASH_PLAN_DIR", "")
	wd := t.TempDir() // no .plandash inside
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(wd); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })

	root := NewRootCmd("")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"doctor", "--agent-dir", t.TempDir()})
	if err := root.Execute(); err != nil {
		t.Fatalf("doctor without plan dir should pass: %v\nstderr: %s", err, errOut.String())
	}
	if !strings.Contains(out.String(), "no plan dir configured") {
		t.Errorf("stdout should mention the missing plan dir; got:\n%s", out.String())
	}
}
