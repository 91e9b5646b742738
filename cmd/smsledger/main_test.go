package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/smsledger/internal/session"
	"github.com/ArionMiles/smsledger/pkg/api"
)

// setupEnv points every file the commands touch into a temp dir.
func setupEnv(t *testing.T) (configPath, exportPath string) {
	t.Helper()
	dir := t.TempDir()
	exportPath = filepath.Join(dir, "out.json")

	t.Setenv("SMSLEDGER_READER", "sample")
	t.Setenv("SMSLEDGER_WRITER", "json")
	t.Setenv("SMSLEDGER_WRITER_CONFIG", `{"file_path":"`+filepath.ToSlash(exportPath)+`"}`)
	t.Setenv("SMSLEDGER_TIMEZONE", "UTC")
	for _, key := range []string{"SMSLEDGER_SPEECH_COMMAND", "SMSLEDGER_PASSCODE", "SMSLEDGER_PASSCODE_HASH", "SMSLEDGER_METRICS_FILE"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	return filepath.Join(dir, "config.json"), exportPath
}

func TestRun_List(t *testing.T) {
	configPath, _ := setupEnv(t)

	var out bytes.Buffer
	err := run([]string{"-config", configPath, "list", "--passcode", "9398"}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "From: AXISBK\nDate: 2025-11-")
	assert.Contains(t, out.String(), "Amount: 1,234.00 | UTR: ABCD123456 | Your a/c debited")
}

func TestRun_ListJSON(t *testing.T) {
	configPath, _ := setupEnv(t)

	var out bytes.Buffer
	err := run([]string{"-config", configPath, "list", "--passcode", "9398", "--json"}, &out)
	require.NoError(t, err)

	var txns []api.Transaction
	require.NoError(t, json.Unmarshal(out.Bytes(), &txns))
	require.Len(t, txns, 1)
	assert.Equal(t, "From: AXISBK", txns[0].Title)
	require.NotNil(t, txns[0].UTR)
	assert.Equal(t, "ABCD123456", *txns[0].UTR)
}

func TestRun_Export(t *testing.T) {
	configPath, exportPath := setupEnv(t)

	err := run([]string{"-config", configPath, "export", "--passcode", "9398"}, &bytes.Buffer{})
	require.NoError(t, err)

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	var txns []api.Transaction
	require.NoError(t, json.Unmarshal(data, &txns))
	assert.Len(t, txns, 1)
}

func TestRun_WrongPasscode(t *testing.T) {
	configPath, _ := setupEnv(t)

	err := run([]string{"-config", configPath, "list", "--passcode", "0000"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, session.ErrWrongPasscode)

	err = run([]string{"-config", configPath, "list"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "--passcode is required")
}

func TestRun_ConfiguredPasscode(t *testing.T) {
	configPath, _ := setupEnv(t)
	require.NoError(t, os.WriteFile(configPath, []byte(`{"SMSLEDGER_PASSCODE": "2468"}`), 0o600))

	err := run([]string{"-config", configPath, "list", "--passcode", "9398"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, session.ErrWrongPasscode)

	err = run([]string{"-config", configPath, "list", "--passcode", "2468"}, &bytes.Buffer{})
	assert.NoError(t, err)
}

func TestRun_HashPasscode(t *testing.T) {
	configPath, _ := setupEnv(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", configPath, "hash-passcode", "9398"}, &out))
	assert.True(t, strings.HasPrefix(out.String(), "$2"), out.String())

	assert.Error(t, run([]string{"-config", configPath, "hash-passcode"}, &out))
}

func TestRun_Status(t *testing.T) {
	configPath, _ := setupEnv(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", configPath, "status"}, &out))
	assert.Contains(t, out.String(), "Reader plugin (sample): ✓ Registered")
	assert.Contains(t, out.String(), "Writer plugin (json): ✓ Registered")
	assert.Contains(t, out.String(), "Status: ✓ Ready to run")
	assert.Contains(t, out.String(), "backupxml")
}

func TestRun_UnknownCommand(t *testing.T) {
	configPath, _ := setupEnv(t)

	err := run([]string{"-config", configPath, "frobnicate"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, `unknown command "frobnicate"`)
}

func TestRun_UnknownReader(t *testing.T) {
	configPath, _ := setupEnv(t)
	t.Setenv("SMSLEDGER_READER", "sim")

	err := run([]string{"-config", configPath, "list", "--passcode", "9398"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, `reader plugin "sim" not found`)
}
