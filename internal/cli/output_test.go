package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"cuelang.org/go/cue/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]string{"result": "ok"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "ok"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error(ErrCodeLoadFailed, "bad catalog", map[string]any{"line": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E004", resp.Error.Code)
	assert.Equal(t, "bad catalog", resp.Error.Message)
	assert.Equal(t, map[string]any{"line": float64(3)}, resp.Error.Details)
}

func TestOutputFormatter_JSONErrorOmitsNilDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error(ErrCodeNotFound, "missing", positionDetails(token.NoPos)))
	assert.NotContains(t, buf.String(), "details")
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success("done"))
	require.NoError(t, f.Error(ErrCodeNotFound, "no such file", map[string]string{"path": "x"}))
	f.Printf("%d passed\n", 2)

	assert.Equal(t, "done\nError [E005]: no such file\n2 passed\n", buf.String())
}

func TestOutputFormatter_TextVerboseDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, f.Error(ErrCodeNotFound, "no such file", "x"))
	assert.Contains(t, buf.String(), "Details: x")
}

func TestOutputFormatter_PrintfSilentInJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	f.Printf("hello\n")
	require.NoError(t, f.Respond(CLIResponse{Status: "ok", RunID: "r1"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "r1", resp.RunID)
}

func TestOutputFormatter_RespondSilentInText(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Respond(CLIResponse{Status: "ok"}))
	assert.Empty(t, buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}
	quiet.VerboseLog("hidden")
	assert.Empty(t, errOut.String())

	loud := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut, Verbose: true}
	loud.VerboseLog("loaded %d", 3)
	assert.Equal(t, "loaded 3\n", errOut.String())
	assert.Empty(t, out.String())

	fallback := &OutputFormatter{Format: "text", Writer: out, Verbose: true}
	fallback.VerboseLog("to stdout")
	assert.Equal(t, "to stdout\n", out.String())
}
