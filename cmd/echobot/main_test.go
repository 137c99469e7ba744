package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `{
	"token": "abcd1234efgh5678",
	"redirects": [
		{"sources": ["111"], "destinations": ["222", "333"]}
	]
}`

func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	configPath = ""
	t.Cleanup(func() { configPath = "" })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateCmd(t *testing.T) {
	path := writeTestConfig(t, testConfig)
	out, err := executeCmd(t, "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "1 redirect(s)") || !strings.Contains(out, "[111] -> [222 333]") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestValidateCmd_Invalid(t *testing.T) {
	path := writeTestConfig(t, `{"token": "x", "redirects": [{"sources": ["1"], "destinations": ["1"]}]}`)
	if _, err := executeCmd(t, "validate", "--config", path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConfigGet_MasksToken(t *testing.T) {
	path := writeTestConfig(t, testConfig)
	out, err := executeCmd(t, "config", "get", "token", "--config", path)
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.Contains(out, "abcd1234efgh5678") {
		t.Errorf("token leaked: %s", out)
	}
}

func TestConfigShow(t *testing.T) {
	path := writeTestConfig(t, testConfig)
	out, err := executeCmd(t, "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, `"222"`) {
		t.Errorf("expected destinations in output:\n%s", out)
	}
}

func TestConfigPath_SearchesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ECHOBOT_CONFIG_JSON", "")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("token: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := executeCmd(t, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != "config.yaml" {
		t.Errorf("expected config.yaml, got %q", out)
	}
}

func TestConfigPath_NoConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ECHOBOT_CONFIG_JSON", "")
	if _, err := executeCmd(t, "config", "path"); err == nil {
		t.Fatal("expected error without any configuration")
	}
}

func TestDoctor_Offline(t *testing.T) {
	path := writeTestConfig(t, testConfig)
	out, err := executeCmd(t, "doctor", "--offline", "--config", path)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[PASS] Configuration") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestDoctor_BadConfig(t *testing.T) {
	path := writeTestConfig(t, `{"redirects": []}`)
	out, err := executeCmd(t, "doctor", "--offline", "--config", path)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out, "[FAIL] Configuration") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "echobot.log")
	log, closeLog, err := newLogger("debug", path)
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("hello from test")
	if err := closeLog(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing record: %s", data)
	}
}

func TestRenderSystemd(t *testing.T) {
	unit := renderSystemd("/usr/local/bin/echobot", "/etc/echobot/config.json")
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/echobot run --config /etc/echobot/config.json") {
		t.Errorf("unexpected unit:\n%s", unit)
	}

	unit = renderSystemd("/usr/local/bin/echobot", "")
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/echobot run\n") {
		t.Errorf("unexpected unit without config:\n%s", unit)
	}
}

func TestRenderLaunchd(t *testing.T) {
	plist := renderLaunchd("/bin/echobot", "/tmp/c.json", "/tmp/logs")
	for _, want := range []string{
		"<string>" + launchdLabel + "</string>",
		"<string>/bin/echobot</string>",
		"<string>run</string>",
		"<string>/tmp/c.json</string>",
		"/tmp/logs/echobot.log",
	} {
		if !strings.Contains(plist, want) {
			t.Errorf("plist missing %q", want)
		}
	}
}
