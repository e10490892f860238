package gossip

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// lineFormat is what the offline analysis expects:
// HH:MM:SS.mmm [port] [epoch_ms] message
var lineFormat = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3} \[8000\] \[\d{13}\] `)

func TestLineFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(8000, &buf)

	log.Infof("GOSSIP new   msg_id=%s  data=%s", "4fa2c81b", "hello")

	line := buf.String()
	if !lineFormat.MatchString(line) {
		t.Errorf("line %q does not match the log format", line)
	}
	if !strings.Contains(line, "GOSSIP new   msg_id=4fa2c81b  data=hello") {
		t.Errorf("line %q lost the message", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("line not newline terminated")
	}
}

func TestConsoleLevelFiltersDebug(t *testing.T) {
	var console bytes.Buffer
	log := &Logger{port: 8000, consoleLevel: LevelInfo, console: &console}

	log.Debugf("SENT PING -> 127.0.0.1:8001")
	if console.Len() != 0 {
		t.Errorf("debug line reached the console: %q", console.String())
	}

	log.Infof("peer added   127.0.0.1:8001 (?)")
	if !strings.Contains(console.String(), "peer added   127.0.0.1:8001") {
		t.Errorf("info line missing from console: %q", console.String())
	}
}

func TestFileSinkKeepsDebug(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(8000, dir)
	if err != nil {
		t.Fatal(err)
	}
	log.console = nil // keep the test output quiet

	log.Debugf("SENT PING -> 127.0.0.1:8001")
	log.Infof("HELLO from 127.0.0.1:8001 (4fa2c81b)")
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "node_8000.log"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "SENT PING -> 127.0.0.1:8001") {
		t.Error("debug line missing from the file sink")
	}
	if !strings.Contains(content, "HELLO from 127.0.0.1:8001") {
		t.Error("info line missing from the file sink")
	}
}

func TestMirrorSeesEveryLine(t *testing.T) {
	var buf, mirror bytes.Buffer
	log := NewLoggerTo(8000, &buf)
	log.SetMirror(&mirror)

	log.Debugf("SENT PING -> 127.0.0.1:8001")
	log.Infof("peer added   127.0.0.1:8001 (?)")

	if got := strings.Count(mirror.String(), "\n"); got != 2 {
		t.Errorf("mirror saw %d lines, want 2", got)
	}
}

func TestCloseTwiceIsSafe(t *testing.T) {
	log, err := NewLogger(8000, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
