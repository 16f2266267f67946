package migrate

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_Embedded(t *testing.T) {
	all, err := List(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "0001_user_sessions", all[0].Version)

	body, err := migrationsFS.ReadFile("migrations/" + all[0].File)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "user_sessions_app_sid_key"),
		"session repo relies on the (app_discriminator, session_id) constraint name")
}

func TestList_OrdersAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b.sql":   {Data: []byte("select 2")},
		"migrations/0001_a.sql":   {Data: []byte("select 1")},
		"migrations/README.md":    {Data: []byte("docs")},
		"migrations/0010_c.sql":   {Data: []byte("select 10")},
		"migrations/sub/0003.sql": {Data: []byte("nested")},
	}

	all, err := List(fsys)
	require.NoError(t, err)

	versions := make([]string, 0, len(all))
	for _, m := range all {
		versions = append(versions, m.Version)
	}
	assert.Equal(t, []string{"0001_a", "0002_b", "0010_c"}, versions)
}

func TestList_MissingDir(t *testing.T) {
	_, err := List(fstest.MapFS{})
	require.Error(t, err)
}

func TestRun_NilDB(t *testing.T) {
	require.Error(t, Run(context.Background(), nil))
}
