package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateDeviceName(t *testing.T) {
	name := GenerateDeviceName()
	assert.NotEmpty(t, name)
	assert.NotContains(t, name, "_")
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"My Diagram":       "my-diagram",
		"  a.b/c  ":        "a-b-c",
		"flow__chart--v2":  "flow-chart-v2",
		"--already-clean-": "already-clean",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}

func TestPreview(t *testing.T) {
	code := "graph TD\n    A-->B\n    B-->C"
	assert.Equal(t, "graph TD A-->B B-->C", Preview(code, 0))

	short := Preview(code, 10)
	assert.True(t, strings.HasSuffix(short, "…"))
	assert.LessOrEqual(t, len([]rune(short)), 10)
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "never", FormatMillis(0))
	assert.Len(t, FormatMillis(1_700_000_000_000), len("2006-01-02 15:04:05"))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	old := Output
	Output = &buf
	defer func() { Output = old }()

	PrintTable([]string{"ID", "Name"}, nil, TableOptions{EmptyMessage: "No diagrams"})
	assert.Contains(t, buf.String(), "No diagrams")

	buf.Reset()
	PrintTable([]string{"ID", "Name"}, [][]string{{"d1", "Flow"}}, TableOptions{Title: "Diagrams"})
	out := buf.String()
	assert.Contains(t, out, "Diagrams")
	assert.Contains(t, out, "d1")
	assert.Contains(t, out, "Flow")
}
