package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTempConfig(t, `
cec_device = "/dev/cec1"
cec_osd_name = "MyAmp"
cec_vendor_compat = "samsung"

[target]
ip = "192.168.1.50"
port = 8080
base_path = "ipcontrol"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "192.168.1.50", cfg.Target.IP)
	require.Equal(t, 8080, cfg.Target.Port)
	require.Equal(t, "/ipcontrol", cfg.Target.BasePath)
	require.Equal(t, "/dev/cec1", cfg.CECDevice)
	require.Equal(t, "MyAmp", cfg.CECOSDName)
	require.Equal(t, VendorCompatSamsung, cfg.CECVendorCompat)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeTempConfig(t, "")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 80, cfg.Target.Port)
	require.Equal(t, "/ipcontrol/v1", cfg.Target.BasePath)
	require.Equal(t, 3.0, cfg.Target.DiscoverTimeout)
	require.Equal(t, "/dev/cec0", cfg.CECDevice)
	require.Equal(t, "Audio", cfg.CECOSDName)
	require.Equal(t, VendorCompatNone, cfg.CECVendorCompat)
	require.Equal(t, 2.0, cfg.ReconnectDelayS)
	require.Equal(t, "info", cfg.LogLevel)
	require.InDelta(t, 0.080, cfg.DedupeWindowS, 1e-9)
	require.InDelta(t, 0.120, cfg.MinIntervalS, 1e-9)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, "/dev/cec0", cfg.CECDevice)
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	path := writeTempConfig(t, `this is not [ valid toml`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
[target]
ip = "10.0.0.1"
`)
	t.Setenv("CECBRIDGE_IP", "10.0.0.99")
	t.Setenv("CECBRIDGE_PORT", "9090")
	t.Setenv("CECBRIDGE_CEC_VENDOR_COMPAT", "samsung")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.99", cfg.Target.IP)
	require.Equal(t, 9090, cfg.Target.Port)
	require.Equal(t, VendorCompatSamsung, cfg.CECVendorCompat)
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":              "/ipcontrol/v1",
		"/":             "/ipcontrol/v1",
		"foo":           "/foo",
		"/foo/":         "/foo",
		"/foo/bar/":     "/foo/bar",
		"  /spaced  ":   "/spaced",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeBasePath(in), "input %q", in)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Target:          Target{Port: 80},
		CECVendorCompat: VendorCompatNone,
		ReconnectDelayS: 2.0,
		CECOSDName:      "Audio",
	}
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.CECVendorCompat = "bogus"
	require.Error(t, bad.Validate())

	bad2 := *cfg
	bad2.Target.Port = 0
	require.Error(t, bad2.Validate())

	bad3 := *cfg
	bad3.CECOSDName = ""
	require.Error(t, bad3.Validate())

	bad4 := *cfg
	bad4.CECOSDName = "012345678901234567"
	require.Error(t, bad4.Validate())
}
