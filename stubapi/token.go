package stubapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/docker/libtrust"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jonboulle/clockwork"
)

// ErrTokenExpired is returned by Verify when a token's lifetime has passed.
var ErrTokenExpired = errors.New("token expired")

// TokenIssuer mints and verifies the short-lived access tokens the stub API
// hands out. Tokens are ordinary signed JWTs, but the client under test
// treats them as opaque strings.
type TokenIssuer struct {
	issuer     string
	signingKey libtrust.PrivateKey
	expiration time.Duration

	clock clockwork.Clock
}

// NewTokenIssuer returns a new TokenIssuer.
func NewTokenIssuer(issuer string, signingKey libtrust.PrivateKey, expiration time.Duration, clock clockwork.Clock) TokenIssuer {
	return TokenIssuer{
		issuer:     issuer,
		signingKey: signingKey,
		expiration: expiration,

		clock: clock,
	}
}

// Issue mints a new access token for subject.
func (i TokenIssuer) Issue(subject string) (string, error) {
	alg, err := detectSigningMethod(i.signingKey)
	if err != nil {
		return "", err
	}

	now := i.clock.Now()

	claims := jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(i.expiration)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.Must(uuid.NewV4()).String(),
	}

	token := jwt.NewWithClaims(alg, claims)

	signedToken, err := token.SignedString(i.signingKey.CryptoPrivateKey())
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signedToken, nil
}

// Verify checks the signature and lifetime of a token and returns its subject.
//
// The lifetime is checked against the issuer's clock instead of wall time,
// so tests can expire tokens by advancing a fake clock.
func (i TokenIssuer) Verify(payload string) (string, error) {
	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(
		payload,
		&claims,
		func(_ *jwt.Token) (interface{}, error) {
			return i.signingKey.PublicKey().CryptoPublicKey(), nil
		},
		jwt.WithValidMethods([]string{"ES256", "RS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}

	if claims.ExpiresAt == nil || !i.clock.Now().Before(claims.ExpiresAt.Time) {
		return "", ErrTokenExpired
	}

	return claims.Subject, nil
}

func detectSigningMethod(signingKey libtrust.PrivateKey) (jwt.SigningMethod, error) {
	switch signingKey.KeyType() {
	case "RSA":
		return jwt.SigningMethodRS256, nil
	case "EC":
		return jwt.SigningMethodES256, nil
	default:
		return nil, fmt.Errorf("unsupported signing key type %q", signingKey.KeyType())
	}
}
