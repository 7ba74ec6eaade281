package cli

import (
	"bytes"
	"strings"
	"testing"
)

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

// resetRootFlags clears the root's local flags, which keep their values
// between executions of the shared command tree.
func resetRootFlags() {
	_ = rootCmd.Flags().Set("help", "false")
	_ = rootCmd.Flags().Set("version", "false")
}

func TestRootCommand_Help(t *testing.T) {
	rootCmd.SetArgs([]string{"--help"})
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)
	defer resetRootFlags()

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"worldsync", "Hosting", "host", "unlock"} {
		if !contains(output, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestRootCommand_Version(t *testing.T) {
	SetVersion("1.2.3")
	defer SetVersion("dev")
	defer resetRootFlags()

	for _, args := range [][]string{{"--version"}, {"version"}} {
		rootCmd.SetArgs(args)
		var buf bytes.Buffer
		rootCmd.SetOut(&buf)

		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("%v: Execute() error = %v", args, err)
		}
		if !contains(buf.String(), "1.2.3") {
			t.Errorf("%v printed %q, want the version", args, buf.String())
		}
		resetRootFlags()
	}
	rootCmd.SetOut(nil)
}

func TestRootCommand_InvalidCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"invalid-command"})
	var buf bytes.Buffer
	rootCmd.SetErr(&buf)
	defer rootCmd.SetErr(nil)

	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error for invalid command")
	}
}

func TestSetVersion_IgnoresEmpty(t *testing.T) {
	SetVersion("2.0.0")
	SetVersion("")
	if rootCmd.Version != "2.0.0" {
		t.Errorf("Version = %q after SetVersion(\"\"), want 2.0.0", rootCmd.Version)
	}
	SetVersion("dev")
}

func TestRootCommand_Subcommands(t *testing.T) {
	tests := []struct {
		name  string
		group string
	}{
		{"host", "hosting"},
		{"play", "hosting"},
		{"status", "hosting"},
		{"unlock", "maintenance"},
		{"backups", "maintenance"},
		{"version", "cli-tooling"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subCmd, _, err := rootCmd.Find([]string{tt.name})
			if err != nil || subCmd == nil || subCmd == rootCmd {
				t.Fatalf("Find(%q) = %v, %v", tt.name, subCmd, err)
			}
			if subCmd.GroupID != tt.group {
				t.Errorf("%s is in group %q, want %q", tt.name, subCmd.GroupID, tt.group)
			}
		})
	}
}

func TestRootCommand_FlagsMapToConfigKeys(t *testing.T) {
	for flag := range flagKeys {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("flag --%s is bound to config but not defined", flag)
		}
	}
}
