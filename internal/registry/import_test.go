package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeAppsYAML(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestImportYAML(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	yaml := fmt.Sprintf(`apps:
  billing:
    path: %s
    entry: billing.main:app
    default_port: 9001
    args: "--workers 2"
  reports:
    path: %s
    entry: reports.main:app
    default_port: 9002
    host: 0.0.0.0
    enabled: false
`, dir, dir)

	names, err := ImportYAML(context.Background(), s, writeAppsYAML(t, yaml))
	require.NoError(t, err)
	sort.Strings(names)
	require.Equal(t, []string{"billing", "reports"}, names)

	billing, err := s.GetByName(context.Background(), "billing")
	require.NoError(t, err)
	require.Equal(t, 9001, billing.Port)
	require.Equal(t, "127.0.0.1", billing.Host) // defaulted
	require.True(t, billing.Enabled)            // defaulted

	reports, err := s.GetByName(context.Background(), "reports")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", reports.Host)
	require.False(t, reports.Enabled)
}

func TestImportYAMLUpsertsExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, sampleDef(t, "billing", 9001))
	require.NoError(t, err)

	yaml := fmt.Sprintf(`apps:
  billing:
    path: %s
    entry: billing.main:app
    default_port: 9050
`, t.TempDir())
	_, err = ImportYAML(ctx, s, writeAppsYAML(t, yaml))
	require.NoError(t, err)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, 9050, got.Port)
}

func TestImportYAMLMissingFile(t *testing.T) {
	s := openTestStore(t)
	_, err := ImportYAML(context.Background(), s, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestImportYAMLInvalidDefinition(t *testing.T) {
	s := openTestStore(t)
	yaml := `apps:
  broken:
    path: /nonexistent/appvisor
    entry: main:app
    default_port: 9001
`
	_, err := ImportYAML(context.Background(), s, writeAppsYAML(t, yaml))
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
}
