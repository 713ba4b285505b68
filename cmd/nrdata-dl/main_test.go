package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrioqueiroz/nrdata-dl/internal/config"
	"github.com/mrioqueiroz/nrdata-dl/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// setupRun points the configuration at mock and returns the input and
// output paths plus an empty env file.
func setupRun(t *testing.T, mock *testutil.MockAPI, input string) (string, string, string) {
	t.Helper()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.txt")
	envPath := filepath.Join(dir, "empty.env")
	require.NoError(t, os.WriteFile(inputPath, []byte(input), 0o600))
	require.NoError(t, os.WriteFile(envPath, nil, 0o600))

	t.Setenv(config.KeyAPIURL, mock.URL())
	t.Setenv(config.KeyAPIKey, "test-key")
	t.Setenv(config.KeyLimitPerMinute, "60000")
	t.Setenv(config.KeyInitialBackoff, "0s")
	t.Setenv(config.KeyRequestTimeout, "200ms")
	t.Setenv(config.KeyRedisURL, "")
	t.Setenv(config.KeyLogLevel, "error")

	return inputPath, filepath.Join(dir, "out"), envPath
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "12345678901", "98765432109")
	require.NoError(t, err)
	assert.Equal(t, "12345678901\tvalid\n98765432109\tvalid\n", out)
}

func TestValidateCommand_Invalid(t *testing.T) {
	out, err := execute(t, "validate", "12345678901", "00000000000", "12-3")
	require.Error(t, err)
	assert.Contains(t, out, "00000000000\tinvalid\tchecksum mismatch\n")
	assert.Contains(t, out, "12-3\tinvalid\tmalformed\n")
	assert.Contains(t, err.Error(), "2 of 3")
}

func TestValidateCommand_RequiresArgs(t *testing.T) {
	_, err := execute(t, "validate")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestRunCommand(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("98765432109", testutil.NewNotFoundResponse())

	inputPath, outDir, envPath := setupRun(t, mock, "12345678901\nC2,98765432109\nC2,00000000000\n")

	out, err := execute(t, "run", "--env-file", envPath, "--input", inputPath, "--output", outDir, "--concurrency", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "2 customers, 3 identifiers: 1 valid, 1 invalid, 1 failed")
	assert.Equal(t, "test-key", mock.LastRequestHeader().Get("X-API-Key"))
	assert.FileExists(t, filepath.Join(outDir, "default.csv"))
	assert.FileExists(t, filepath.Join(outDir, "default.tar.zst"))
	assert.FileExists(t, filepath.Join(outDir, "C2.csv"))
	assert.FileExists(t, filepath.Join(outDir, "summary.csv"))
	assert.FileExists(t, filepath.Join(outDir, "nrdata-dl.prom"))
}

func TestRunCommand_UsesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()

	inputPath, outDir, envPath := setupRun(t, mock, "12345678901\n")
	t.Setenv(config.KeyRedisURL, "redis://"+mr.Addr())

	for i := 0; i < 2; i++ {
		_, err := execute(t, "run", "--env-file", envPath, "--input", inputPath, "--output", outDir)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, mock.RequestCount(), "second run is served from the cache")
}

func TestRunCommand_AuthFailure(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.RequireAPIKey("X-API-Key", "right-key")

	inputPath, outDir, envPath := setupRun(t, mock, "12345678901\n")

	_, err := execute(t, "run", "--env-file", envPath, "--input", inputPath, "--output", outDir)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(outDir, "summary.csv"))
}

func TestRunCommand_ConfigErrors(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	inputPath, outDir, envPath := setupRun(t, mock, "12345678901\n")

	_, err := execute(t, "run", "--env-file", envPath, "--input", inputPath, "--output", outDir, "--concurrency", "-1")
	assert.Error(t, err)

	_, err = execute(t, "run", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	_, err = execute(t, "run", "--env-file", envPath, "--input", filepath.Join(t.TempDir(), "none.txt"), "--output", outDir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "open input"))
}
