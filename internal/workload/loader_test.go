package workload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmkeep/wasmkeep/internal/descriptors"
)

func TestLoadMissingModuleIsFatal(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadFallsBackToDefaultManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ModuleFileName), []byte("\x00asm"), 0644))

	pkg, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, pkg.Config.Steward)
	require.Len(t, pkg.Config.Files, 3)
	assert.Equal(t, descriptors.KindStdin, pkg.Config.Files[0].Kind)
}

func TestLoadParsesConfigJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ModuleFileName), []byte("\x00asm"), 0644))

	config := `{
		"steward": "https://steward.example/issue",
		"args": ["--verbose"],
		"env": [{"Name": "FOO", "Value": "bar"}],
		"files": [
			{"name": "stdin", "kind": "stdin"},
			{"name": "peer", "kind": "connect", "addr": "10.0.0.1:443", "tls": true}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(config), 0644))

	pkg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, pkg.Config.Steward)
	assert.Equal(t, "steward.example", pkg.Config.Steward.Host)
	assert.Equal(t, []string{"--verbose"}, pkg.Config.Args)
	require.Len(t, pkg.Config.Files, 2)
	assert.Equal(t, descriptors.KindConnect, pkg.Config.Files[1].Kind)
	assert.True(t, pkg.Config.Files[1].TLS)
}

func TestLoadRejectsUnknownSlotKind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ModuleFileName), []byte("\x00asm"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`{"files":[{"name":"x","kind":"bogus"}]}`), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}
