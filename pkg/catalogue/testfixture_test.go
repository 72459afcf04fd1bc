package catalogue_test

import "github.com/corevaulthq/iam-core/pkg/catalogue"

// sampleSpecs mirrors the shape used in spec examples: a user subtree with
// a nested profile leaf pair and a security-activity leaf, plus a
// portfolio subtree parameterized by portfolioId.
func sampleSpecs() []catalogue.NodeSpec {
	return []catalogue.NodeSpec{
		{
			Identifier:  "api",
			Description: "API-guarded operations",
			Children: []catalogue.NodeSpec{
				{
					Identifier:  "user",
					Description: "user-scoped operations",
					Parameters:  []string{"userId"},
					Children: []catalogue.NodeSpec{
						{
							Identifier:  "profile",
							Description: "profile read/write",
							Children: []catalogue.NodeSpec{
								{Identifier: "read", Access: catalogue.AccessRead},
								{Identifier: "update", Access: catalogue.AccessWrite},
							},
						},
						{
							Identifier:  "security",
							Description: "security-sensitive operations",
							Children: []catalogue.NodeSpec{
								{Identifier: "activity", Access: catalogue.AccessRead},
							},
						},
					},
				},
				{
					Identifier:  "portfolio",
					Description: "portfolio operations",
					Parameters:  []string{"portfolioId"},
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
	}
}
