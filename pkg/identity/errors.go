package identity

import "errors"

// Domain errors specific to credential verification and passkey challenges.
// AuthenticationFailed-shaped failures (bad password, locked out, no local
// credential) surface as *accesstoken.AuthError with Kind BadCredential so
// callers branch on a single taxonomy end to end.
var (
	ErrChallengeNotFound          = errors.New("identity: passkey challenge not found")
	ErrChallengeExpired           = errors.New("identity: passkey challenge expired")
	ErrChallengeAlreadyConsumed   = errors.New("identity: passkey challenge already consumed")
	ErrIdentityLinkNotFound       = errors.New("identity: identity link not found")
	ErrUnknownUser                = errors.New("identity: user not found")
	ErrResetTokenInvalidOrExpired = errors.New("identity: password reset token invalid or expired")
	ErrPasskeyNotFound            = errors.New("identity: passkey credential not found")
)
