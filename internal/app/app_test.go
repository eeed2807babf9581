package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"proxycrawler/internal/config"
	"proxycrawler/internal/export"
	"proxycrawler/internal/pipeline"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	orig := config.GetConfig()
	t.Cleanup(func() { config.SetConfig(orig) })
	t.Setenv("PROXYCRAWLER_HOME", t.TempDir())

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if !strings.HasPrefix(out, "proxycrawler dev") {
		t.Fatalf("version printed %q", out)
	}
}

func TestScrapeRejectsMissingOutputDirectory(t *testing.T) {
	output := filepath.Join(t.TempDir(), "missing", "out.txt")

	_, err := executeCommand(t, "scrape", "--output-file-path", output)
	if !errors.Is(err, export.ErrInvalidOutputPath) {
		t.Fatalf("expected ErrInvalidOutputPath, got %v", err)
	}
}

func TestExportRejectsNegativeCount(t *testing.T) {
	if _, err := executeCommand(t, "export-db", "--proxies-count", "-1"); err == nil {
		t.Fatal("expected error for a negative proxies count")
	}
}

func TestExportUsesDatabaseURLFlag(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://nobody@127.0.0.1:1/unreachable")
	t.Setenv("REDIS_URL", "")
	output := filepath.Join(t.TempDir(), "export.txt")

	_, err := executeCommand(t, "export-db",
		"--database-url", "file:app_export_flag?mode=memory&cache=shared",
		"--output-file-path", output)
	if !errors.Is(err, pipeline.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult from the flag database, got %v", err)
	}
}

func TestValidateRequiresTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.csv")
	if err := os.WriteFile(path, []byte("http://1.2.3.4:80\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}

	_, err := executeCommand(t, "validate", "--proxy-file", path)
	if !errors.Is(err, export.ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
}

func TestValidateRejectsUnknownProtocol(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(path, []byte("http://1.2.3.4:80\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}

	_, err := executeCommand(t, "validate", "--proxy-file", path, "--protocol", "ftp")
	if err == nil || !strings.Contains(err.Error(), "unsupported protocol") {
		t.Fatalf("expected unsupported protocol error, got %v", err)
	}
}

func TestValidateProtocolFlagsAreExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(path, []byte("http://1.2.3.4:80\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}

	if _, err := executeCommand(t, "validate", "--proxy-file", path, "--protocol", "http", "--test-all-protocols"); err == nil {
		t.Fatal("expected error when --protocol and --test-all-protocols are combined")
	}
}

func TestResolveOutputPathFallsBack(t *testing.T) {
	orig := config.GetConfig()
	t.Cleanup(func() { config.SetConfig(orig) })

	cfg := orig
	cfg.Output.DefaultPath = ""
	config.SetConfig(cfg)

	if got := resolveOutputPath(""); got != export.DefaultOutputPath {
		t.Fatalf("resolveOutputPath returned %s", got)
	}
	if got := resolveOutputPath("/tmp/x.txt"); got != "/tmp/x.txt" {
		t.Fatalf("resolveOutputPath returned %s", got)
	}
}
