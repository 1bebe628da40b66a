package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peerprobe.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	c.Hostfile = "hosts.txt"
	require.NoError(t, c.Validate())
	assert.Equal(t, 8888, c.Port)
	assert.Equal(t, time.Second, c.ReceiveTimeout.Duration)
	assert.Equal(t, 100*time.Millisecond, c.RoundInterval.Duration)
	assert.False(t, c.ExitOnReady)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
name = "peer1"
hostfile = "/etc/peerprobe/hosts"
port = 9999
receive_timeout = "250ms"
exit_on_ready = true

[log]
level = "debug"

[http]
addr = ":9090"

[etcd]
endpoints = ["http://etcd:2379"]
ttl = 30
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "peer1", c.Name)
	assert.Equal(t, 9999, c.Port)
	assert.Equal(t, 250*time.Millisecond, c.ReceiveTimeout.Duration)
	assert.Equal(t, 100*time.Millisecond, c.RoundInterval.Duration, "unset keys keep defaults")
	assert.True(t, c.ExitOnReady)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, ":9090", c.HTTP.Addr)
	assert.Equal(t, []string{"http://etcd:2379"}, c.Etcd.Endpoints)
	assert.Equal(t, int64(30), c.Etcd.TTL)
	assert.Equal(t, "/peerprobe/nodes/", c.Etcd.Prefix)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeFile(t, `prot = 1`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prot")

	_, err = Load(writeFile(t, `receive_timeout = "soon"`))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "etcd only", mutate: func(c *Config) { c.Hostfile = ""; c.Etcd.Endpoints = []string{"e:2379"} }},
		{name: "no peer source", mutate: func(c *Config) { c.Hostfile = "" }, wantErr: true},
		{name: "port zero", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "port too big", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.ReceiveTimeout.Duration = 0 }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.RoundInterval.Duration = 0 }},
		{name: "negative interval", mutate: func(c *Config) { c.RoundInterval.Duration = -1 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.StartupDelay.Duration = -1 }, wantErr: true},
		{name: "colon in name", mutate: func(c *Config) { c.Name = "a:b" }, wantErr: true},
		{name: "bad ttl", mutate: func(c *Config) { c.Etcd.Endpoints = []string{"e"}; c.Etcd.TTL = 0 }, wantErr: true},
		{name: "bad prefix", mutate: func(c *Config) { c.Etcd.Endpoints = []string{"e"}; c.Etcd.Prefix = "/x" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Hostfile = "hosts"
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestResolveName(t *testing.T) {
	c := Default()
	c.Name = "fixed"
	require.NoError(t, c.ResolveName())
	require.Equal(t, "fixed", c.Name)

	c.Name = ""
	require.NoError(t, c.ResolveName())
	want, err := os.Hostname()
	require.NoError(t, err)
	require.Equal(t, want, c.Name)
}

func TestParseEndpoints(t *testing.T) {
	assert.Nil(t, ParseEndpoints(""))
	assert.Equal(t, []string{"a:1", "b:2"}, ParseEndpoints(" a:1 , ,b:2"))
}
