package safety

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"lia/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustClassifier(t *testing.T, cfg Config) *Classifier {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	c, err := NewClassifier(cfg)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

// --- Validate: blocked ---

func TestValidate_BlockedCommands(t *testing.T) {
	c := mustClassifier(t, Config{})

	for _, cmd := range []string{
		"rm -rf /",
		"rm -rf /*",
		"rm -rf ~",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"chmod -R 777 /",
	} {
		a := c.Validate(cmd)
		if a.Level != domain.RiskBlocked {
			t.Errorf("%q: expected BLOCKED, got %s", cmd, a.Level)
		}
		if a.AllowExecution {
			t.Errorf("%q: blocked command must not allow execution", cmd)
		}
		if a.Reason == "" {
			t.Errorf("%q: blocked assessment needs a reason", cmd)
		}
	}
}

func TestValidate_CaseInsensitive(t *testing.T) {
	c := mustClassifier(t, Config{})

	a := c.Validate("DROP TABLE users;")
	if a.Level != domain.RiskHigh {
		t.Fatalf("expected HIGH_RISK for uppercase SQL, got %s", a.Level)
	}
	a = c.Validate("drop table users;")
	if a.Level != domain.RiskHigh {
		t.Fatalf("expected HIGH_RISK for lowercase SQL, got %s", a.Level)
	}
}

// --- Validate: ordering ---

// "rm -rf /" matches both a blocked and a high-risk pattern; blocked rules
// are checked first and win.
func TestValidate_BlockedBeforeHighRisk(t *testing.T) {
	c := mustClassifier(t, Config{})

	a := c.Validate("rm -rf /")
	if a.Level != domain.RiskBlocked {
		t.Fatalf("expected BLOCKED to win over HIGH_RISK, got %s", a.Level)
	}
}

func TestValidate_HighRisk(t *testing.T) {
	c := mustClassifier(t, Config{})

	a := c.Validate("rm -rf ./build")
	if a.Level != domain.RiskHigh {
		t.Fatalf("expected HIGH_RISK, got %s", a.Level)
	}
	if !a.AllowExecution {
		t.Fatal("high-risk commands stay executable")
	}
}

// --- Validate: default verdict ---

func TestValidate_UnmatchedDefaultsSafe(t *testing.T) {
	c := mustClassifier(t, Config{})

	a := c.Validate("ls -la /tmp")
	if a.Level != domain.RiskSafe {
		t.Fatalf("expected SAFE, got %s", a.Level)
	}
	if !a.AllowExecution {
		t.Fatal("safe command must allow execution")
	}
}

func TestValidate_FailClosedVerdict(t *testing.T) {
	c := mustClassifier(t, Config{DefaultVerdict: domain.RiskBlocked})

	a := c.Validate("ls -la /tmp")
	if a.Level != domain.RiskBlocked {
		t.Fatalf("fail-closed: expected BLOCKED for unmatched command, got %s", a.Level)
	}
	// Explicit rules still classify as usual.
	if got := c.Validate("rm -rf ./build").Level; got != domain.RiskHigh {
		t.Fatalf("expected HIGH_RISK, got %s", got)
	}
}

// --- DryRun ---

func TestDryRun_Rewrites(t *testing.T) {
	c := mustClassifier(t, Config{})

	cases := []struct {
		in   string
		want string
	}{
		{"rsync -a src/ dst/", "rsync --dry-run -a src/ dst/"},
		{"apt install curl", "apt --simulate install curl"},
		{"git push origin main", "git push --dry-run origin main"},
		{"git clean -fd", "git clean --dry-run -fd"},
		{"ls -la", ""},                                 // no dry-run support
		{"rsync --dry-run -a src/ dst/", ""},           // flag already present
		{"git status", ""},                             // prefix is "git push", not "git"
	}
	for _, tc := range cases {
		if got := c.DryRun(tc.in); got != tc.want {
			t.Errorf("DryRun(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidate_HighRiskCarriesDryRun(t *testing.T) {
	c := mustClassifier(t, Config{})

	a := c.Validate("pip uninstall requests")
	if a.Level != domain.RiskHigh {
		t.Fatalf("expected HIGH_RISK, got %s", a.Level)
	}
	if a.DryRunCommand != "pip --dry-run uninstall requests" {
		t.Fatalf("unexpected dry-run rewrite: %q", a.DryRunCommand)
	}
}

// --- Rules file ---

func TestReload_CustomRulesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "safety.yaml")
	rules := `rules:
  blocked:
    - pattern: 'forbidden-tool'
      message: "banned by policy"
  high_risk:
    - pattern: 'scary-tool'
      message: "scary"
`
	if err := os.WriteFile(path, []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}

	c := mustClassifier(t, Config{RulesPath: path})

	if got := c.Validate("forbidden-tool --go").Level; got != domain.RiskBlocked {
		t.Fatalf("custom blocked rule: got %s", got)
	}
	if got := c.Validate("scary-tool").Level; got != domain.RiskHigh {
		t.Fatalf("custom high-risk rule: got %s", got)
	}
	// Dry-run section was omitted, so defaults still apply.
	if got := c.DryRun("rsync -a a b"); got == "" {
		t.Fatal("default dry-run table should survive a partial rules file")
	}
}

func TestReload_BadPatternKeepsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "safety.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  blocked:\n    - pattern: '['\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewClassifier(Config{RulesPath: path, Logger: testLogger()}); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
