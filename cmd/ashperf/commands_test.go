package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// TestCompressCmd collapses whitespace and renames known keys.
func TestCompressCmd(t *testing.T) {
	out, err := run(t, "", "compress", `{"amount":  1,   "a": "x   y"}`)
	require.NoError(t, err)
	require.Equal(t, `{"amt": 1, "a": "x y"}`+"\n", out)
}

// TestCompressCmd_Stdin reads the payload from stdin at the requested level.
func TestCompressCmd_Stdin(t *testing.T) {
	out, err := run(t, "  a     b  ", "compress", "--level", "medium")
	require.NoError(t, err)
	require.Equal(t, "a  b\n", out)
}

// TestCompressCmd_File reads the payload from a file.
func TestCompressCmd_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timestamp": 1}`), 0o644))

	out, err := run(t, "", "compress", "-f", path, "-l", "high")
	require.NoError(t, err)
	require.Equal(t, `{"ts": 1}`+"\n", out)
}

// TestCompressCmd_BadLevel rejects unknown levels.
func TestCompressCmd_BadLevel(t *testing.T) {
	_, err := run(t, "", "compress", "--level", "ultra", "x")
	require.ErrorContains(t, err, "unknown compression level")
}

// TestProbeCmd prints the speed class of a local server.
func TestProbeCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	out, err := run(t, "", "probe", "--url", srv.URL)
	require.NoError(t, err)
	require.Equal(t, "fast\n", out)
}

// TestProbeCmd_NoURL requires a probe url.
func TestProbeCmd_NoURL(t *testing.T) {
	_, err := run(t, "", "probe")
	require.ErrorContains(t, err, "probe url is required")
}

// TestStatusCmd prints the derived settings as json.
func TestStatusCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network:\n  effective_type: 2g\n"), 0o644))

	out, err := run(t, "", "status", "--config", path)
	require.NoError(t, err)

	var got struct {
		Status   map[string]any `json:"status"`
		Settings map[string]any `json:"settings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, true, got.Status["isOptimized"])
	require.Equal(t, "maximum", got.Settings["compressionLevel"])
	require.Equal(t, 0.5, got.Settings["imageQuality"])
}
