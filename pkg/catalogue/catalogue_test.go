package catalogue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevaulthq/iam-core/pkg/catalogue"
)

func TestBuild_ImplicitLeaves(t *testing.T) {
	c, err := catalogue.Build(sampleSpecs())
	require.NoError(t, err)

	t.Run("internal node gets implicit read/write leaves", func(t *testing.T) {
		read, err := c.Lookup("api:user:_read")
		require.NoError(t, err)
		assert.Equal(t, catalogue.AccessRead, read.Access())
		assert.True(t, read.IsImplicitLeaf())

		write, err := c.Lookup("api:user:_write")
		require.NoError(t, err)
		assert.Equal(t, catalogue.AccessWrite, write.Access())
	})

	t.Run("explicit leaf keeps declared access", func(t *testing.T) {
		leaf, err := c.Lookup("api:user:profile:read")
		require.NoError(t, err)
		assert.Equal(t, catalogue.AccessRead, leaf.Access())
		assert.True(t, leaf.IsLeaf())
		assert.False(t, leaf.IsImplicitLeaf())
	})
}

func TestBuild_DuplicateSiblingRejected(t *testing.T) {
	specs := []catalogue.NodeSpec{
		{Identifier: "api", Children: []catalogue.NodeSpec{
			{Identifier: "x", Access: catalogue.AccessRead},
			{Identifier: "x", Access: catalogue.AccessWrite},
		}},
	}
	_, err := catalogue.Build(specs)
	assert.ErrorIs(t, err, catalogue.ErrDuplicateIdentifier)
}

func TestBuild_LeafWithoutAccessRejected(t *testing.T) {
	specs := []catalogue.NodeSpec{
		{Identifier: "api", Children: []catalogue.NodeSpec{
			{Identifier: "bare"},
		}},
	}
	_, err := catalogue.Build(specs)
	assert.ErrorIs(t, err, catalogue.ErrInvalidSpec)
}

func TestBuild_ReservedIdentifierRejected(t *testing.T) {
	specs := []catalogue.NodeSpec{
		{Identifier: "_read", Access: catalogue.AccessRead},
	}
	_, err := catalogue.Build(specs)
	assert.ErrorIs(t, err, catalogue.ErrInvalidSpec)
}

func TestLookup_NotFound(t *testing.T) {
	c, err := catalogue.Build(sampleSpecs())
	require.NoError(t, err)

	_, err = c.Lookup("api:user:nonexistent")
	assert.ErrorIs(t, err, catalogue.ErrNotFound)
}

func TestParameterHierarchy(t *testing.T) {
	c, err := catalogue.Build(sampleSpecs())
	require.NoError(t, err)

	leaf, err := c.Lookup("api:portfolio:positions:read")
	require.NoError(t, err)

	assert.Equal(t, []string{"portfolioId"}, catalogue.ParameterHierarchy(leaf))
}

func TestParameterHierarchy_DedupOrderPreserving(t *testing.T) {
	specs := []catalogue.NodeSpec{
		{
			Identifier: "api",
			Parameters: []string{"tenantId"},
			Children: []catalogue.NodeSpec{
				{
					Identifier: "widget",
					Parameters: []string{"tenantId", "widgetId"},
					Children: []catalogue.NodeSpec{
						{Identifier: "read", Access: catalogue.AccessRead},
					},
				},
			},
		},
	}
	c, err := catalogue.Build(specs)
	require.NoError(t, err)

	leaf, err := c.Lookup("api:widget:read")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenantId", "widgetId"}, catalogue.ParameterHierarchy(leaf))
}

func TestTraverse_IncludesImplicitLeaves(t *testing.T) {
	c, err := catalogue.Build(sampleSpecs())
	require.NoError(t, err)

	paths := make(map[string]bool)
	for _, n := range c.Traverse() {
		paths[n.Path()] = true
	}
	assert.True(t, paths["api:_read"])
	assert.True(t, paths["api:_write"])
	assert.True(t, paths["api:user:profile:read"])
}

func TestParseAndNormalize_RoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		identifier string
		wantPath   string
		wantParams map[string]string
	}{
		{"bare path", "api:user:profile:read", "api:user:profile:read", map[string]string{}},
		{"trims segment whitespace", " api : user : profile : read ", "api:user:profile:read", map[string]string{}},
		{"with params", "api:user:profile:read;userId=U-1", "api:user:profile:read", map[string]string{"userId": "U-1"}},
		{"duplicate param last wins", "api:x;a=1;a=2", "api:x", map[string]string{"a": "2"}},
		{"trims around = and ;", "api:x ; userId = U-1 ", "api:x", map[string]string{"userId": "U-1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := catalogue.Parse(tc.identifier)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPath, parsed.Path)
			assert.Equal(t, tc.wantParams, parsed.Parameters)

			normalized, err := catalogue.Normalize(tc.identifier)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPath, normalized)
		})
	}
}

func TestParse_FormatErrors(t *testing.T) {
	cases := []string{
		"",
		"::",
		"api::profile",
		"api:user;",
		"api:user;=value",
		"api:user;key=",
		"api:user;keyonly",
	}
	for _, identifier := range cases {
		t.Run(identifier, func(t *testing.T) {
			_, err := catalogue.Parse(identifier)
			assert.ErrorIs(t, err, catalogue.ErrFormat)
		})
	}
}
