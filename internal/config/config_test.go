package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[bitbake]
working_directory = "yocto"
command_wrapper = "docker run --rm -v /w:/w img"

[scan]
deep_examine = true
parse_hook = "hooks/parse.risor"

[docs]
dir = "/usr/share/bbls/docs"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, filepath.Join(dir, "yocto"), cfg.BitBake.WorkingDirectory)
	assert.Equal(t, "build", cfg.BitBake.BuildFolder, "unset keys keep defaults")
	assert.Equal(t, "docker run --rm -v /w:/w img", cfg.BitBake.CommandWrapper)
	assert.True(t, cfg.Scan.DeepExamine)
	assert.False(t, cfg.Scan.ESDKMode)
	assert.Equal(t, filepath.Join(dir, "hooks/parse.risor"), cfg.Scan.ParseHook)
	assert.Equal(t, "/usr/share/bbls/docs", cfg.Docs.Dir)

	d := cfg.Driver()
	assert.Equal(t, cfg.BitBake.WorkingDirectory, d.WorkingDirectory)
	assert.Equal(t, "sources/poky/oe-init-build-env", d.EnvScript)
	assert.Equal(t, "bash", d.Shell)
}

func TestLoad_DefaultHookIsKept(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), "[scan]\nparse_hook = \"default\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultHook, cfg.Scan.ParseHook)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	_, err := Load(writeConfig(t, t.TempDir(), "[bitbake\n"))
	assert.ErrorContains(t, err, "failed to parse TOML")

	_, err = Load(writeConfig(t, t.TempDir(), "[scan]\nesdk = true\n"))
	assert.ErrorContains(t, err, "unknown key")
}

func TestFindWalksUp(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := writeConfig(t, root, "")
	nested := filepath.Join(root, "build", "tmp")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, ok, err := Find(nested)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, path, got)

	cfg, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.BitBake.WorkingDirectory)
}

func TestDiscover_NoFile(t *testing.T) {
	t.Parallel()
	// Walking up from a temp dir may still reach a bbls.toml on the host.
	dir := t.TempDir()
	if _, ok, _ := Find(dir); ok {
		t.Skip("bbls.toml above the temp directory")
	}
	cfg, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Default().Validate())

	cfg := Default()
	cfg.BitBake.WorkingDirectory = " "
	assert.ErrorContains(t, cfg.Validate(), "working_directory")

	cfg = Default()
	cfg.BitBake.EnvScript = ""
	assert.ErrorContains(t, cfg.Validate(), "env_script")
}
