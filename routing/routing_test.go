package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostname(t *testing.T) {
	t.Run("bare wildcard", func(t *testing.T) {
		key, err := ParseHostname("*")
		require.NoError(t, err)
		assert.Equal(t, HostnameKey{Wildcard: true}, key)
	})

	t.Run("exact hostname reverses labels", func(t *testing.T) {
		key, err := ParseHostname("a.example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"com", "example", "a"}, key.Labels)
		assert.False(t, key.Wildcard)
	})

	t.Run("front wildcard", func(t *testing.T) {
		key, err := ParseHostname("*.example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"com", "example"}, key.Labels)
		assert.True(t, key.Wildcard)
	})

	t.Run("rejects label starting with dash", func(t *testing.T) {
		_, err := ParseHostname("-bad.example.com")
		assert.Error(t, err)
	})

	t.Run("rejects empty label", func(t *testing.T) {
		_, err := ParseHostname("a..example.com")
		assert.Error(t, err)
	})

	t.Run("round trips", func(t *testing.T) {
		for _, pattern := range []string{"*", "example.com", "*.example.com", "a.example.com"} {
			key, err := ParseHostname(pattern)
			require.NoError(t, err)
			assert.Equal(t, pattern, key.String())
		}
	})
}

func TestParseMount(t *testing.T) {
	t.Run("normalizes to always-wildcarded path", func(t *testing.T) {
		m, err := ParseMount("//example.com/foo/bar/")
		require.NoError(t, err)
		assert.Equal(t, "//example.com/foo/bar/*", m.String())
	})

	t.Run("empty path under host", func(t *testing.T) {
		m, err := ParseMount("//example.com/")
		require.NoError(t, err)
		assert.Equal(t, []string(nil), m.Path.Components)
		assert.Equal(t, "//example.com/*", m.String())
	})

	t.Run("requires double slash prefix", func(t *testing.T) {
		_, err := ParseMount("example.com/foo")
		assert.Error(t, err)
	})

	t.Run("rejects invalid mount path characters", func(t *testing.T) {
		_, err := ParseMount("//example.com/foo bar/")
		assert.Error(t, err)
	})
}

func newStringTable(t *testing.T) *RoutingTable[string] {
	t.Helper()
	return NewRoutingTable[string]()
}

func mustInsert(t *testing.T, table *RoutingTable[string], host, path, app string) {
	t.Helper()
	hostKey, err := ParseHostname(host)
	require.NoError(t, err)
	pathKey, err := ParseMountPath(path)
	require.NoError(t, err)
	require.NoError(t, table.Insert(hostKey, pathKey, app))
}

func TestRoutingTableHostPrecedence(t *testing.T) {
	table := newStringTable(t)
	mustInsert(t, table, "*", "/", "catch-all")
	mustInsert(t, table, "*.b", "/", "wildcard-b")
	mustInsert(t, table, "*.a.b", "/", "wildcard-a-b")
	mustInsert(t, table, "x.a.b", "/", "exact")
	table.Start()

	t.Run("exact beats every wildcard", func(t *testing.T) {
		matches, err := table.Find("x.a.b", "/")
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "exact", matches[0].App)
	})

	t.Run("longer wildcard beats shorter wildcard", func(t *testing.T) {
		matches, err := table.Find("y.a.b", "/")
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "wildcard-a-b", matches[0].App)
	})

	t.Run("falls back to shallower wildcard", func(t *testing.T) {
		matches, err := table.Find("y.z.b", "/")
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "wildcard-b", matches[0].App)
	})

	t.Run("falls back to catch-all", func(t *testing.T) {
		matches, err := table.Find("totally.unrelated.tld", "/")
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "catch-all", matches[0].App)
	})
}

func TestRoutingTablePathFallthrough(t *testing.T) {
	table := newStringTable(t)
	mustInsert(t, table, "example.com", "/", "root")
	mustInsert(t, table, "example.com", "/foo", "foo")
	mustInsert(t, table, "example.com", "/foo/bar", "foo-bar")
	table.Start()

	t.Run("yields most to least specific", func(t *testing.T) {
		matches, err := table.Find("example.com", "/foo/bar/baz")
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "foo-bar", matches[0].App)
		assert.Equal(t, Dispatch{Base: "/foo/bar/", Extra: "/baz"}, matches[0].Dispatch)
		assert.Equal(t, "foo", matches[1].App)
		assert.Equal(t, "root", matches[2].App)
	})

	t.Run("unmatched deeper path still yields shallower mounts", func(t *testing.T) {
		matches, err := table.Find("example.com", "/foo/elsewhere")
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "foo", matches[0].App)
		assert.Equal(t, Dispatch{Base: "/foo/", Extra: "/elsewhere"}, matches[0].Dispatch)
	})

	t.Run("no host match returns no matches", func(t *testing.T) {
		matches, err := table.Find("other.com", "/foo")
		require.NoError(t, err)
		assert.Nil(t, matches)
	})
}

func TestRoutingTableRejectsDuplicateInsert(t *testing.T) {
	table := newStringTable(t)
	mustInsert(t, table, "example.com", "/foo", "one")

	hostKey, err := ParseHostname("example.com")
	require.NoError(t, err)
	pathKey, err := ParseMountPath("/foo")
	require.NoError(t, err)
	err = table.Insert(hostKey, pathKey, "two")
	assert.Error(t, err)
}

func TestRoutingTableImmutableAfterStart(t *testing.T) {
	table := newStringTable(t)
	table.Start()

	hostKey, err := ParseHostname("example.com")
	require.NoError(t, err)
	pathKey, err := ParseMountPath("/foo")
	require.NoError(t, err)
	err = table.Insert(hostKey, pathKey, "late")
	assert.Error(t, err)
}
