package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugSuppressedUnlessEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := &StderrLogger{w: &buf, debug: false}
	l.Debug("hidden", nil)
	assert.Empty(t, buf.String())

	l.debug = true
	l.Debug("shown", nil)
	assert.Contains(t, buf.String(), "shown")
}

func TestInfoWarnErrorAlwaysLog(t *testing.T) {
	var buf bytes.Buffer
	l := &StderrLogger{w: &buf}
	l.Info("a", nil)
	l.Warn("b", nil)
	l.Error("c", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "INFO")
	assert.Contains(t, lines[1], "WARN")
	assert.Contains(t, lines[2], "ERROR")
}

func TestWithComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	l := &StderrLogger{w: &buf}
	tagged := l.WithComponent("index")
	tagged.Info("hello", nil)
	assert.Contains(t, buf.String(), "[INFO] index:")
}

func TestFieldsAreRendered(t *testing.T) {
	var buf bytes.Buffer
	l := &StderrLogger{w: &buf}
	l.Info("done", map[string]any{"files": 3})
	assert.Contains(t, buf.String(), "files=3")
}

func TestNoopDiscardsEverything(t *testing.T) {
	var n Noop
	n.Debug("x", nil)
	n.Info("x", nil)
	n.Warn("x", nil)
	n.Error("x", nil)
}
