package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "failed", errors.New("inner")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestExitError_Message(t *testing.T) {
	inner := errors.New("inner")
	err := WrapExitError(ExitCommandError, "failed to load", inner)
	assert.Equal(t, "failed to load: inner", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "just this", NewExitError(ExitFailure, "just this").Error())
}

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"n": 1}))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)

	buf.Reset()
	require.NoError(t, f.Failure([]string{"x"}, ErrCodeTestFailed, "1 failed"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, []any{"x"}, resp.Data)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, f.Error(ErrCodeLoadFailed, "no such file", "details here"))
	assert.Equal(t, "Error [E_LOAD_FAILED]: no such file\nDetails: details here\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed pipe")
}

func TestOutputFormatter_LogsWriteFailures(t *testing.T) {
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := newFormatter(&RootOptions{Format: "json"}, failingWriter{}, logger)

	err := f.Error(ErrCodeLoadFailed, "no such file", nil)
	require.Error(t, err)
	f.logWrite(err)
	assert.Contains(t, logs.String(), "failed to write output")
	assert.Contains(t, logs.String(), "closed pipe")

	logs.Reset()
	f.logWrite(nil)
	assert.Empty(t, logs.String())

	quiet := &OutputFormatter{Format: "json", Writer: failingWriter{}}
	assert.NotPanics(t, func() { quiet.logWrite(quiet.Failure(nil, ErrCodeTestFailed, "x")) })
}
