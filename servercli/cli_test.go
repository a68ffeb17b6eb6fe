package servercli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdt3213/redict/config"
)

func parseFlags(t *testing.T, args ...string) (overrides, *pflag.FlagSet) {
	var o overrides
	flags := newFlagSet(&o)
	require.NoError(t, flags.Parse(args))
	return o, flags
}

func TestLoadPropertiesDefaults(t *testing.T) {
	t.Setenv("CONFIG", "")
	o, flags := parseFlags(t)
	props, err := loadProperties(o, flags)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), props)
}

func TestLoadPropertiesOverrides(t *testing.T) {
	dir := t.TempDir()
	cf := filepath.Join(dir, "redict.conf")
	require.NoError(t, os.WriteFile(cf, []byte("port 7000\nhz 20\nbind 127.0.0.1\n"), 0644))
	t.Setenv("CONFIG", "")

	o, flags := parseFlags(t, "--config", cf, "--port", "7001", "--transport", "gnet")
	props, err := loadProperties(o, flags)
	require.NoError(t, err)
	assert.Equal(t, 7001, props.Port)
	assert.Equal(t, 20, props.Hz)
	assert.Equal(t, "127.0.0.1", props.Bind)
	assert.Equal(t, config.TransportGnet, props.Transport)
	assert.Equal(t, cf, props.CfPath)

	// CONFIG takes precedence over --config
	env := filepath.Join(dir, "env.conf")
	require.NoError(t, os.WriteFile(env, []byte("port 7002\n"), 0644))
	t.Setenv("CONFIG", env)
	o, flags = parseFlags(t, "--config", cf)
	props, err = loadProperties(o, flags)
	require.NoError(t, err)
	assert.Equal(t, 7002, props.Port)
}

func TestLoadPropertiesErrors(t *testing.T) {
	t.Setenv("CONFIG", "")
	o, flags := parseFlags(t, "--transport", "epoll")
	_, err := loadProperties(o, flags)
	assert.EqualError(t, err, `unknown transport "epoll"`)

	o, flags = parseFlags(t, "--port", "80")
	_, err = loadProperties(o, flags)
	assert.Error(t, err)

	o, flags = parseFlags(t, "--config", filepath.Join(t.TempDir(), "missing.conf"))
	_, err = loadProperties(o, flags)
	assert.Error(t, err)
}

func TestIsNum(t *testing.T) {
	n, err := IsNum("6399")
	require.NoError(t, err)
	assert.Equal(t, uint64(6399), n)
	for _, s := range []string{"80", "70000", "abc", "-1"} {
		_, err := IsNum(s)
		assert.Error(t, err, s)
	}
}
