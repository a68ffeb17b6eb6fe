package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	src := "bind 127.0.0.1\n" +
		"# comment\n" +
		"port 6400\n" +
		"activerehashing no\n" +
		"hz 20\n" +
		"dbfilename snap.rdb"
	p := parse(strings.NewReader(src))
	if p == nil {
		t.Error("cannot get result")
		return
	}
	if p.Bind != "127.0.0.1" {
		t.Error("string parse failed")
	}
	if p.Port != 6400 || p.Hz != 20 {
		t.Error("int parse failed")
	}
	if p.ActiveRehashing {
		t.Error("bool parse failed")
	}
	if p.Databases != 16 || p.Transport != TransportAe {
		t.Error("defaults should be kept for missing keys")
	}
	if p.RDBPath() != filepath.Join(".", "snap.rdb") {
		t.Error("unexpected rdb path " + p.RDBPath())
	}
}

func TestLoadJSONC(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "redict.jsonc")
	src := `{
	// listen on loopback only
	"bind": "127.0.0.1",
	"port": 7000,
	"activerehashing": false,
	"transport": "gnet", // trailing comma below
}`
	require.NoError(t, os.WriteFile(file, []byte(src), 0o644))
	p, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", p.Bind)
	assert.Equal(t, 7000, p.Port)
	assert.False(t, p.ActiveRehashing)
	assert.Equal(t, TransportGnet, p.Transport)
	assert.Equal(t, 10, p.Hz)
	assert.True(t, filepath.IsAbs(p.CfPath))

	_, err = Load(filepath.Join(dir, "missing.conf"))
	assert.Error(t, err)
}
