package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevaulthq/iam-core/pkg/catalogue"
	"github.com/corevaulthq/iam-core/pkg/directive"
	"github.com/corevaulthq/iam-core/pkg/policy"
)

func testCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()
	c, err := catalogue.Build([]catalogue.NodeSpec{
		{
			Identifier: "api",
			Children: []catalogue.NodeSpec{
				{
					Identifier: "user",
					Parameters: []string{"userId"},
					Children: []catalogue.NodeSpec{
						{
							Identifier: "profile",
							Children: []catalogue.NodeSpec{
								{Identifier: "read", Access: catalogue.AccessRead},
								{Identifier: "update", Access: catalogue.AccessWrite},
							},
						},
						{
							Identifier: "security",
							Children: []catalogue.NodeSpec{
								{Identifier: "activity", Access: catalogue.AccessRead},
							},
						},
					},
				},
				{
					Identifier: "portfolio",
					Parameters: []string{"portfolioId", "userId"},
					Children: []catalogue.NodeSpec{
						{
							Identifier: "positions",
							Children: []catalogue.NodeSpec{
								{Identifier: "read", Access: catalogue.AccessRead},
							},
						},
						{
							Identifier: "accounts",
							Children: []catalogue.NodeSpec{
								{Identifier: "update", Access: catalogue.AccessWrite},
							},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	return c
}

func mustParse(t *testing.T, s string) directive.Directive {
	t.Helper()
	d, err := directive.Parse(s)
	require.NoError(t, err)
	return d
}

// Scenario 1: user-scoped read grant (spec §8.3.1)
func TestEvaluate_UserScopedReadGrant(t *testing.T) {
	cat := testCatalogue(t)
	e := policy.New(cat)
	scope := []directive.Directive{mustParse(t, "allow;_read;userId=U")}

	granted, err := e.Evaluate(scope, policy.Request{
		Path:       "api:user:profile:read",
		Parameters: map[string]string{"userId": "U"},
	})
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = e.Evaluate(scope, policy.Request{
		Path:       "api:user:profile:read",
		Parameters: map[string]string{"userId": "V"},
	})
	require.NoError(t, err)
	assert.False(t, granted)

	granted, err = e.Evaluate(scope, policy.Request{
		Path:       "api:user:profile:read",
		Parameters: map[string]string{},
	})
	require.NoError(t, err)
	assert.False(t, granted)

	granted, err = e.Evaluate(scope, policy.Request{
		Path:       "api:user:profile:update",
		Parameters: map[string]string{"userId": "U"},
	})
	require.NoError(t, err)
	assert.False(t, granted)
}

// Scenario 2: deny wins (spec §8.3.2)
func TestEvaluate_DenyWins(t *testing.T) {
	cat := testCatalogue(t)
	e := policy.New(cat)
	scope := []directive.Directive{
		mustParse(t, "allow;_read"),
		mustParse(t, "deny;api:user:security:activity"),
	}

	granted, err := e.Evaluate(scope, policy.Request{Path: "api:user:profile:read"})
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = e.Evaluate(scope, policy.Request{Path: "api:user:security:activity"})
	require.NoError(t, err)
	assert.False(t, granted)
}

// Scenario 3: root write grant (spec §8.3.3)
func TestEvaluate_RootWriteGrant(t *testing.T) {
	cat := testCatalogue(t)
	e := policy.New(cat)
	scope := []directive.Directive{mustParse(t, "allow;_write;userId=U")}

	granted, err := e.Evaluate(scope, policy.Request{
		Path:       "api:portfolio:accounts:update",
		Parameters: map[string]string{"userId": "U"},
	})
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = e.Evaluate(scope, policy.Request{
		Path:       "api:portfolio:accounts:update",
		Parameters: map[string]string{"userId": "V"},
	})
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestEvaluate_EmptyScopeDeniesEverything(t *testing.T) {
	cat := testCatalogue(t)
	e := policy.New(cat)

	granted, err := e.Evaluate(nil, policy.Request{Path: "api:user:profile:read"})
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestEvaluate_DenyDominatesRegardlessOfOrder(t *testing.T) {
	cat := testCatalogue(t)
	e := policy.New(cat)

	forward := []directive.Directive{
		mustParse(t, "allow;api:user:profile:read"),
		mustParse(t, "deny;api:user:profile:read"),
	}
	reversed := []directive.Directive{
		mustParse(t, "deny;api:user:profile:read"),
		mustParse(t, "allow;api:user:profile:read"),
	}

	g1, err := e.Evaluate(forward, policy.Request{Path: "api:user:profile:read"})
	require.NoError(t, err)
	g2, err := e.Evaluate(reversed, policy.Request{Path: "api:user:profile:read"})
	require.NoError(t, err)

	assert.False(t, g1)
	assert.False(t, g2)
}

func TestEvaluate_UnknownPermission(t *testing.T) {
	cat := testCatalogue(t)
	e := policy.New(cat)

	_, err := e.Evaluate(nil, policy.Request{Path: "api:does:not:exist"})
	assert.ErrorIs(t, err, policy.ErrUnknownPermission)
}

func TestEvaluate_RequestMustBeLeaf(t *testing.T) {
	cat := testCatalogue(t)
	e := policy.New(cat)

	_, err := e.Evaluate(nil, policy.Request{Path: "api:user"})
	assert.ErrorIs(t, err, policy.ErrNotALeaf)
}

func TestEvaluate_DirectiveParametersBroaderThanRequestIgnored(t *testing.T) {
	cat := testCatalogue(t)
	e := policy.New(cat)
	scope := []directive.Directive{mustParse(t, "allow;api:user:profile:read")}

	granted, err := e.Evaluate(scope, policy.Request{
		Path:       "api:user:profile:read",
		Parameters: map[string]string{"anything": "x"},
	})
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestEvaluate_Purity(t *testing.T) {
	cat := testCatalogue(t)
	e := policy.New(cat)
	scope := []directive.Directive{mustParse(t, "allow;_read;userId=U")}
	req := policy.Request{Path: "api:user:profile:read", Parameters: map[string]string{"userId": "U"}}

	g1, err1 := e.Evaluate(scope, req)
	g2, err2 := e.Evaluate(scope, req)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, g1, g2)
}
