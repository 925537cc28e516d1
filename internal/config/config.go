package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/appvisor/internal/history"
	"github.com/loykin/appvisor/internal/logger"
	"github.com/loykin/appvisor/internal/supervisor"
)

// FileConfig is the top-level TOML structure for the appvisor daemon:
//
//	env = ["MODE=prod"]
//	use_os_env = true
//
//	[server]
//	listen = "127.0.0.1:8900"
//	base_path = "/api"
//
//	[registry]
//	path = "./appvisor.db"
//
//	[supervisor]
//	launcher = "python3 -m uvicorn"
//	stop_wait = "3s"
//
//	[log]
//	level = "info"
//	file = "/var/log/appvisor/appvisor.log"
//
//	[history]
//	type = "sqlite"
//	dsn = "./history.db"
type FileConfig struct {
	Env        []string          `toml:"env" mapstructure:"env"`
	EnvFiles   []string          `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv   bool              `toml:"use_os_env" mapstructure:"use_os_env"`
	Server     ServerConfig      `toml:"server" mapstructure:"server"`
	Registry   RegistryConfig    `toml:"registry" mapstructure:"registry"`
	Supervisor supervisor.Config `toml:"supervisor" mapstructure:"supervisor"`
	Log        *logger.Config    `toml:"log" mapstructure:"log"`
	History    *history.Config   `toml:"history" mapstructure:"history"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type RegistryConfig struct {
	Path string `toml:"path" mapstructure:"path"`
}

// Load reads and validates the daemon configuration at path, applying
// defaults for anything omitted.
func Load(path string) (FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, fmt.Errorf("read config: %w", err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = "127.0.0.1:8900"
	}
	if fc.Server.BasePath == "" {
		fc.Server.BasePath = "/api"
	}
	if fc.Registry.Path == "" {
		fc.Registry.Path = "./appvisor.db"
	}
	return fc, nil
}

// GlobalEnv merges the daemon's global environment for spawned apps.
// Precedence: OS env (when use_os_env) as base, then env_files in order,
// then the top-level env list last.
func (fc FileConfig) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	order := make([]string, 0)
	set := func(k, val string) {
		if _, seen := m[k]; !seen {
			order = append(order, k)
		}
		m[k] = val
	}
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i > 0 {
				set(kv[:i], kv[i+1:])
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for _, kv := range pairs {
			if i := strings.IndexByte(kv, '='); i > 0 {
				set(kv[:i], kv[i+1:])
			}
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			set(kv[:i], kv[i+1:])
		}
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// loadEnvFile reads KEY=VALUE lines; blank lines and #-comments are
// skipped. Values may be single or double quoted.
func loadEnvFile(path string) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-provided path
	if err != nil {
		return nil, fmt.Errorf("env file %s: %w", path, err)
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		out = append(out, k+"="+val)
	}
	return out, nil
}
