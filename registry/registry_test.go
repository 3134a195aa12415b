package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/registry"
)

func TestNewRegistersCore(t *testing.T) {
	r := registry.New()

	for _, name := range []string{"stop", "keep", "discard", "redirect", "require"} {
		_, ok := r.Command(name)
		assert.Truef(t, ok, "expected core command %q", name)
	}
	for _, name := range []string{"true", "false", "not", "anyof", "allof", "exists", "header", "address", "envelope", "size"} {
		_, ok := r.Test(name)
		assert.Truef(t, ok, "expected core test %q", name)
	}

	_, ok := r.Comparator("i;ascii-casemap")
	assert.True(t, ok)
	_, ok = r.MatchType("matches")
	assert.True(t, ok)
	_, ok = r.AddressPart("domain")
	assert.True(t, ok)

	_, ok = r.Command("fileinto")
	assert.False(t, ok, "fileinto is extension-provided, not core")
}

func TestRegisterExtensionAssignsID(t *testing.T) {
	r := registry.New()
	loaded := false
	ext := &registry.Extension{
		Name:    "fileinto",
		Version: "1.0.0",
		Load: func(reg *registry.Registry) error {
			loaded = true
			reg.AddCommand(&registry.CommandDef{Name: "fileinto"})
			return nil
		},
	}
	require.NoError(t, r.RegisterExtension(ext))
	assert.True(t, loaded)
	assert.Equal(t, 1, ext.ID)

	_, ok := r.Command("fileinto")
	assert.True(t, ok)

	got, ok := r.Extension("fileinto")
	require.True(t, ok)
	assert.Same(t, ext, got)

	byID, ok := r.ExtensionByID(1)
	require.True(t, ok)
	assert.Equal(t, "fileinto", byID.Name)
}

func TestRegisterExtensionRejectsDuplicateName(t *testing.T) {
	r := registry.New()
	ext := &registry.Extension{Name: "fileinto"}
	require.NoError(t, r.RegisterExtension(ext))
	err := r.RegisterExtension(&registry.Extension{Name: "fileinto"})
	assert.Error(t, err)
}

func TestRequireTracksDeclaredExtensions(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterExtension(&registry.Extension{Name: "variables"}))

	assert.False(t, r.Require("nonexistent"))
	assert.True(t, r.Require("variables"))
	assert.True(t, r.RequireExtension("variables"))
	assert.False(t, r.RequireExtension("fileinto"))
}

func TestAddCommandTagOnUnknownCommandErrors(t *testing.T) {
	r := registry.New()
	err := r.AddCommandTag("nosuchcommand", registry.TagShape{Name: "flags", TakesParam: true})
	assert.Error(t, err)

	require.NoError(t, r.AddCommandTag("keep", registry.TagShape{Name: "flags", TakesParam: true}))
	def, ok := r.Command("keep")
	require.True(t, ok)
	found := false
	for _, tag := range def.Tags {
		if tag.Name == "flags" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExtensionsSortedByID(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterExtension(&registry.Extension{Name: "b"}))
	require.NoError(t, r.RegisterExtension(&registry.Extension{Name: "a"}))

	exts := r.Extensions()
	require.Len(t, exts, 2)
	assert.Equal(t, "b", exts[0].Name)
	assert.Equal(t, "a", exts[1].Name)
	assert.Less(t, exts[0].ID, exts[1].ID)
}
