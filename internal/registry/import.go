package registry

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// importEntry mirrors one app block in an apps.yaml file:
//
//	apps:
//	  billing:
//	    path: /srv/billing
//	    entry: main:app
//	    default_port: 9001
//	    host: 127.0.0.1
//	    args: "--workers 2"
//	    enabled: true
type importEntry struct {
	Path        string `mapstructure:"path"`
	Entry       string `mapstructure:"entry"`
	DefaultPort int    `mapstructure:"default_port"`
	Host        string `mapstructure:"host"`
	Args        string `mapstructure:"args"`
	Enabled     *bool  `mapstructure:"enabled"`
}

type importFile struct {
	Apps map[string]importEntry `mapstructure:"apps"`
}

// ImportYAML upserts every app from a YAML file into the store, keyed by
// name. It never starts anything. Returns imported names in file order is
// not guaranteed; callers get the names that were written.
func ImportYAML(ctx context.Context, s *Store, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("yaml not found: %s", path)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var f importFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, err
	}

	imported := make([]string, 0, len(f.Apps))
	for name, e := range f.Apps {
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		d := Definition{
			Name:    name,
			Path:    e.Path,
			Entry:   e.Entry,
			Host:    e.Host,
			Port:    e.DefaultPort,
			Args:    e.Args,
			Enabled: enabled,
		}
		if _, err := s.UpsertByName(ctx, d); err != nil {
			return imported, fmt.Errorf("import %q: %w", name, err)
		}
		imported = append(imported, name)
	}
	return imported, nil
}
