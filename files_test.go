package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRemotePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"/Docs/", "Docs"},
		{"Docs/a.txt", "Docs/a.txt"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanRemotePath(tt.in), "input %q", tt.in)
	}
}

func TestLs_Root(t *testing.T) {
	fb := newFakeBox(t)

	stdout, _, err := runCLI(t, developerConfig(t, fb), "ls")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "Docs/", "folders sort first")
	assert.Contains(t, lines[2], "report.pdf")
	assert.Contains(t, lines[2], "2.0 KB")
}

func TestLs_JSON(t *testing.T) {
	fb := newFakeBox(t)

	stdout, _, err := runCLI(t, developerConfig(t, fb), "--json", "ls", "/Docs")
	require.NoError(t, err)

	var out []itemJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "300", out[0].ID)
	assert.Equal(t, "file", out[0].Type)
	assert.Equal(t, "100", out[0].ParentID)
}

func TestLs_NotFound(t *testing.T) {
	fb := newFakeBox(t)

	_, _, err := runCLI(t, developerConfig(t, fb), "ls", "/Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `resolving "/Nope"`)
}

func TestResolvePath_NormalizesNames(t *testing.T) {
	fb := newFakeBox(t)

	// Decomposed "e" + combining acute, and different case.
	stdout, _, err := runCLI(t, developerConfig(t, fb), "--json", "stat", "docs/Cafe\u0301.txt")
	require.NoError(t, err)

	var out itemJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "300", out.ID)
}

func TestResolvePath_FileInMiddle(t *testing.T) {
	fb := newFakeBox(t)

	_, _, err := runCLI(t, developerConfig(t, fb), "stat", "report.pdf/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a folder")
}

func TestResolvePath_ByID(t *testing.T) {
	fb := newFakeBox(t)

	stdout, _, err := runCLI(t, developerConfig(t, fb), "--json", "stat", "id:100")
	require.NoError(t, err)

	var out itemJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "folder", out.Type)
	assert.True(t, fb.called("GET /2.0/files/100"), "file lookup tried first")
	assert.True(t, fb.called("GET /2.0/folders/100"))
}

func TestStat_Multiple(t *testing.T) {
	fb := newFakeBox(t)

	stdout, _, err := runCLI(t, developerConfig(t, fb), "--json", "stat", "/report.pdf", "/Docs")
	require.NoError(t, err)

	var out []itemJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "200", out[0].ID, "results keep argument order")
	assert.Equal(t, "100", out[1].ID)
}

func TestStat_Text(t *testing.T) {
	fb := newFakeBox(t)

	stdout, _, err := runCLI(t, developerConfig(t, fb), "stat", "report.pdf")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Name:     report.pdf")
	assert.Contains(t, stdout, "Size:     2.0 KB (2048 bytes)")
	assert.Contains(t, stdout, "Modified: 2024-03-02 10:00:00 UTC")
}

func TestMkdir_CreatesMissingSegments(t *testing.T) {
	fb := newFakeBox(t)

	stdout, _, err := runCLI(t, developerConfig(t, fb), "--json", "mkdir", "/Docs/2024/Q1")
	require.NoError(t, err)

	var out mkdirJSONOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "Docs/2024/Q1", out.Created)
	assert.Equal(t, "1002", out.ID)
	assert.Len(t, fb.callsWithPrefix("POST /2.0/folders"), 2, "existing Docs is reused")
}

func TestMkdir_FileInTheWay(t *testing.T) {
	fb := newFakeBox(t)

	_, _, err := runCLI(t, developerConfig(t, fb), "mkdir", "report.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a folder")
}

func TestMkdir_Root(t *testing.T) {
	fb := newFakeBox(t)

	_, _, err := runCLI(t, developerConfig(t, fb), "mkdir", "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root folder")
}

func TestRm_FolderNeedsRecursive(t *testing.T) {
	fb := newFakeBox(t)

	_, _, err := runCLI(t, developerConfig(t, fb), "rm", "report.pdf", "Docs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--recursive")
	assert.Empty(t, fb.callsWithPrefix("DELETE"), "nothing is deleted when any target is refused")
}

func TestRm_Recursive(t *testing.T) {
	fb := newFakeBox(t)

	_, stderr, err := runCLI(t, developerConfig(t, fb), "rm", "-r", "report.pdf", "Docs")
	require.NoError(t, err)

	assert.True(t, fb.called("DELETE /2.0/files/200"))
	assert.True(t, fb.called("DELETE /2.0/folders/100"))
	assert.Contains(t, stderr, "Deleted report.pdf")
	assert.Contains(t, stderr, "Deleted Docs")
}

func TestRm_RootRefused(t *testing.T) {
	fb := newFakeBox(t)

	_, _, err := runCLI(t, developerConfig(t, fb), "rm", "-r", "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root folder")
}

func TestGet_WritesFileAndVerifiesHash(t *testing.T) {
	fb := newFakeBox(t)
	dir := t.TempDir()

	_, stderr, err := runCLI(t, developerConfig(t, fb), "get", "Docs/café.txt", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "café.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Contains(t, stderr, "Downloaded")

	_, err = os.Stat(filepath.Join(dir, "café.txt.partial"))
	assert.True(t, os.IsNotExist(err), "partial file renamed away")
}

func TestGet_Folder(t *testing.T) {
	fb := newFakeBox(t)

	_, _, err := runCLI(t, developerConfig(t, fb), "get", "Docs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a folder")
}

func TestGet_DownloadFailureLeavesNoPartial(t *testing.T) {
	fb := newFakeBox(t)
	target := filepath.Join(t.TempDir(), "report.pdf")

	// The fake serves content only for file 300.
	_, _, err := runCLI(t, developerConfig(t, fb), "get", "report.pdf", target)
	require.Error(t, err)

	_, statErr := os.Stat(target + ".partial")
	assert.True(t, os.IsNotExist(statErr))
}

func TestPut_Uploads(t *testing.T) {
	fb := newFakeBox(t)

	local := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(local, []byte("some notes"), 0o600))

	stdout, _, err := runCLI(t, developerConfig(t, fb), "--json", "put", local)
	require.NoError(t, err)

	var out itemJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "900", out.ID)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, "some notes", fb.uploaded["notes.txt"])
}

func TestPut_Directory(t *testing.T) {
	fb := newFakeBox(t)

	_, _, err := runCLI(t, developerConfig(t, fb), "put", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestPut_TargetNotFolder(t *testing.T) {
	fb := newFakeBox(t)

	local := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o600))

	_, _, err := runCLI(t, developerConfig(t, fb), "put", local, "report.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a folder")
}
