package postgres

import (
	"github.com/corevaulthq/iam-core/pkg/accesstoken"
	"github.com/corevaulthq/iam-core/pkg/apikey"
	"github.com/corevaulthq/iam-core/pkg/identity"
	"github.com/corevaulthq/iam-core/pkg/rbacrole"
)

// Compile-time checks that this package's domain stores satisfy the
// contracts their owning packages define.
var (
	_ identity.UserStore              = (*Users)(nil)
	_ rbacrole.Store                  = (*Roles)(nil)
	_ accesstoken.SessionStore        = (*Sessions)(nil)
	_ identity.PasswordResetStore     = (*PasswordResets)(nil)
	_ identity.PasskeyCredentialStore = (*Passkeys)(nil)
	_ apikey.Store                    = (*APIKeys)(nil)
)
