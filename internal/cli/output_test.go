package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/xqflow/internal/message"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "<ok/>"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "<ok/>"}, resp.Data)
	assert.Contains(t, buf.String(), "<ok/>", "HTML escaping must be off")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(ErrCodeExecution, "query failed", map[string]string{"line": "3"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeExecution, resp.Error.Code)
	assert.Equal(t, "query failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error(ErrCodeNotFound, "missing", "route.xq"))
	assert.Equal(t, "Error [E002]: missing\nDetails: route.xq\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	loud := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	loud.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{"configuration", message.NewError(message.ErrCodeConfiguration, "x"), ErrCodeConfiguration, ExitCommandError},
		{"resource", message.NewError(message.ErrCodeResource, "x"), ErrCodeNotFound, ExitCommandError},
		{"execution", message.NewError(message.ErrCodeExecution, "x"), ErrCodeExecution, ExitFailure},
		{"mapping", message.NewError(message.ErrCodeResultMapping, "x"), ErrCodeResultMapping, ExitFailure},
		{"payload", message.NewError(message.ErrCodePayloadConversion, "x"), ErrCodePayloadConversion, ExitFailure},
		{"store", storeError(errors.New("locked")), ErrCodeStore, ExitCommandError},
		{"wrapped", fmt.Errorf("outer: %w", message.NewError(message.ErrCodeExecution, "x")), ErrCodeExecution, ExitFailure},
		{"plain", errors.New("x"), ErrCodeGeneric, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, errorCode(tt.err))
			assert.Equal(t, tt.exit, exitCodeFor(tt.err))
		})
	}
}

func TestFail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	cause := message.NewError(message.ErrCodeExecution, "no channel")
	err := formatter.Fail("routing failed", cause)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "routing failed: EXECUTION: no channel", err.Error())
	assert.Equal(t, "Error [E004]: EXECUTION: no channel\n", buf.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", WrapExitError(ExitCommandError, "x", errors.New("y")))))
}
