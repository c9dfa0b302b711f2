// Package token mints and verifies the two signed credentials of the
// session subsystem: short-lived stateless access tokens and longer-lived
// single-use-by-rotation refresh tokens. Access and refresh tokens sign with
// distinct secrets so compromise of one never allows forging the other.
// Nothing in this package touches the store.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/pkg/config"
	appErrors "github.com/afetnet/mesh-registry-api/pkg/errors"
)

// AccessClaims is the claim set of an access token. Access tokens are
// verified by signature and expiry alone; they carry no revocation hook.
type AccessClaims struct {
	UserID string          `json:"user_id"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set of a refresh token. SessionVersion binds
// the token to the per-user revocation counter current at issuance.
type RefreshClaims struct {
	UserID         string `json:"user_id"`
	SessionVersion int64  `json:"session_version"`
	jwt.RegisteredClaims
}

// Issuer mints signed tokens. It is pure: issuance computes and signs, with
// no side effects beyond CPU cost.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
}

// NewIssuer builds an Issuer from the immutable auth configuration.
func NewIssuer(cfg config.AuthConfig) *Issuer {
	return &Issuer{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		issuer:        cfg.Issuer,
	}
}

// IssueAccess mints a signed access token for the subject and role.
func (i *Issuer) IssueAccess(userID string, role models.UserRole) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(i.accessTTL)
	claims := &AccessClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueRefresh mints a signed refresh token embedding the given session
// version.
func (i *Issuer) IssueRefresh(userID string, sessionVersion int64) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(i.refreshTTL)
	claims := &RefreshClaims{
		UserID:         userID,
		SessionVersion: sessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

// AccessTTL exposes the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Verifier validates presented tokens. Verification is pure and synchronous.
type Verifier struct {
	accessSecret  []byte
	refreshSecret []byte
}

// NewVerifier builds a Verifier from the immutable auth configuration.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
	}
}

// VerifyAccess checks signature and expiry of an access token and returns
// its claims.
func (v *Verifier) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := v.parse(raw, claims, v.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh checks signature and expiry of a refresh token and returns
// its claims. Whether the embedded session version is still current is the
// rotation engine's decision, not this package's.
func (v *Verifier) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := v.parse(raw, claims, v.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) parse(raw string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return appErrors.Wrap(err, appErrors.ErrTokenExpired.Code, appErrors.ErrTokenExpired.Status, "token expired")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return appErrors.Wrap(err, appErrors.ErrTokenSignature.Code, appErrors.ErrTokenSignature.Status, "invalid token signature")
		default:
			return appErrors.Wrap(err, appErrors.ErrTokenMalformed.Code, appErrors.ErrTokenMalformed.Status, "malformed token")
		}
	}
	if !parsed.Valid {
		return appErrors.Clone(appErrors.ErrTokenMalformed, "invalid token")
	}
	return nil
}
