package main

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kilobytes", 1536, "1.5 KB"},
		{"megabytes", 5242880, "5.0 MB"},
		{"gigabytes", 1610612736, "1.5 GB"},
		{"terabytes", 1099511627776, "1.0 TB"},
		{"beyond terabytes", 1 << 50, "1024.0 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.UTC)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.UTC)

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "2020")
	})

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
	})
}

func TestFormatRFC3339(t *testing.T) {
	assert.Empty(t, formatRFC3339(time.Time{}))

	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("X", 3600))
	assert.Equal(t, "2024-05-06T06:08:09Z", formatRFC3339(ts))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "SIZE"}, [][]string{
		{"file.txt", "1.2 MB"},
		{"a-much-longer-name/", "0 B"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	// The SIZE column starts at the same offset on every line.
	col := strings.Index(lines[0], "SIZE")
	assert.Equal(t, col, strings.Index(lines[1], "1.2 MB"))
	assert.Equal(t, col, strings.Index(lines[2], "0 B"))
	assert.False(t, strings.HasSuffix(lines[1], " "), "last column is not padded")
}

func TestPrintTable_CountsRunes(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "ID"}, [][]string{
		{"café.txt", "300"},
		{"cafe.txt", "301"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	runeIndex := func(s, sub string) int {
		return utf8.RuneCountInString(s[:strings.Index(s, sub)])
	}

	assert.Equal(t, runeIndex(lines[1], "300"), runeIndex(lines[2], "301"))
}

func TestStatusf_Quiet(t *testing.T) {
	var buf bytes.Buffer

	cc := &CLIContext{Err: &buf}
	cc.Statusf("hello %s\n", "world")
	assert.Equal(t, "hello world\n", buf.String())

	buf.Reset()
	cc.Flags.Quiet = true
	cc.Statusf("hidden\n")
	assert.Empty(t, buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
