package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/afetnet/mesh-registry-api/internal/models"
	"github.com/afetnet/mesh-registry-api/internal/repository"
	"github.com/afetnet/mesh-registry-api/internal/token"
	appErrors "github.com/afetnet/mesh-registry-api/pkg/errors"
)

// credentialStore is the minimal user-record contract the auth subsystem
// needs: identity lookups plus the session-version mutations.
type credentialStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	AdvanceSessionVersion(ctx context.Context, id string, expected int64) (bool, error)
	RevokeSessions(ctx context.Context, id string) error
}

// NationalIDValidator checks a national identity number during
// registration. The checksum itself lives outside this service.
type NationalIDValidator func(nationalID string) bool

// AuthService implements registration, login, refresh rotation, and logout.
//
// Refresh tokens are single-use by construction: each one embeds the user's
// session version at issuance, and the only way to rotate is the store's
// conditional increment of that version. Access tokens are stateless and
// stay valid until natural expiry even after logout; their short lifetime
// bounds the exposure window, and no per-request store check may be added to
// "fix" that.
type AuthService struct {
	store      credentialStore
	issuer     *token.Issuer
	verifier   *token.Verifier
	validator  *validator.Validate
	nationalID NationalIDValidator
	metrics    *MetricsService
	logger     *zap.Logger
	bcryptCost int
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(store credentialStore, issuer *token.Issuer, verifier *token.Verifier, validate *validator.Validate, nationalID NationalIDValidator, metrics *MetricsService, logger *zap.Logger, bcryptCost int) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if nationalID == nil {
		nationalID = func(string) bool { return true }
	}
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		store:      store,
		issuer:     issuer,
		verifier:   verifier,
		validator:  validate,
		nationalID: nationalID,
		metrics:    metrics,
		logger:     logger,
		bcryptCost: bcryptCost,
	}
}

// outcome counts an operation result under its internal error code. Codes
// never leak into response bodies; this is the observable side of the
// generic 401 family.
func (s *AuthService) outcome(operation string, err error) {
	label := "ok"
	if err != nil {
		label = appErrors.FromError(err).Code
	}
	s.metrics.RecordAuthOutcome(operation, label)
}

// Register creates a citizen account. Duplicate registration fails without
// touching the existing record.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (info *models.UserInfo, err error) {
	defer func() { s.outcome("register", err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if !s.nationalID(req.NationalID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid national id")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		NationalID:   req.NationalID,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.RoleCitizen,
		Active:       true,
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, s.storeFault(err, "failed to create user")
	}

	return &models.UserInfo{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role}, nil
}

// Login authenticates a user and issues a fresh token pair. An unknown email
// and a wrong password return the same failure. The only store write is a
// best-effort last-login stamp; issuance itself is pure.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (res *models.LoginResponse, pair *models.TokenPair, err error) {
	defer func() { s.outcome("login", err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, nil, s.storeFault(err, "failed to fetch user")
	}

	if !user.Active {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	pair, err = s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("login succeeded",
		zap.String("user_id", user.ID),
		zap.String("ip", req.IP),
		zap.String("user_agent", req.UserAgent))

	res = &models.LoginResponse{
		AccessToken: pair.AccessToken,
		ExpiresIn:   int64(s.issuer.AccessTTL().Seconds()),
		IssuedAt:    time.Now().UTC(),
		User: models.UserInfo{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
	}
	return res, pair, nil
}

// Refresh exchanges a still-valid refresh token for a new pair, consuming
// the old one. The store's conditional increment is the serialization
// point: of two concurrent rotations presenting the same token, exactly one
// succeeds and the loser gets the same revoked failure a stale token would.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (res *models.RefreshResponse, pair *models.TokenPair, err error) {
	defer func() { s.outcome("refresh", err) }()

	if rawToken == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrNoToken, "")
	}

	claims, err := s.verifier.VerifyRefresh(rawToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrIdentityNotFound, "")
		}
		return nil, nil, s.storeFault(err, "failed to load user")
	}
	if !user.Active {
		return nil, nil, appErrors.Clone(appErrors.ErrTokenRevoked, "")
	}

	advanced, err := s.store.AdvanceSessionVersion(ctx, user.ID, claims.SessionVersion)
	if err != nil {
		return nil, nil, s.storeFault(err, "failed to advance session version")
	}
	if !advanced {
		// Either a prior rotation consumed this token or a logout happened.
		// No further store mutation.
		s.logger.Info("refresh token replay rejected",
			zap.String("user_id", user.ID),
			zap.Int64("token_version", claims.SessionVersion))
		return nil, nil, appErrors.Clone(appErrors.ErrTokenRevoked, "")
	}

	user.SessionVersion = claims.SessionVersion + 1
	pair, err = s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}

	res = &models.RefreshResponse{
		AccessToken: pair.AccessToken,
		ExpiresIn:   int64(s.issuer.AccessTTL().Seconds()),
		IssuedAt:    time.Now().UTC(),
	}
	return res, pair, nil
}

// Logout revokes every outstanding refresh token for the user by bumping
// the session version unconditionally. Already-issued access tokens remain
// valid until natural expiry.
func (s *AuthService) Logout(ctx context.Context, userID string) (err error) {
	defer func() { s.outcome("logout", err) }()

	if err := s.store.RevokeSessions(ctx, userID); err != nil {
		return s.storeFault(err, "failed to revoke sessions")
	}
	return nil
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every outstanding refresh token the same way logout does.
// Already-issued access tokens keep working until natural expiry.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) (err error) {
	defer func() { s.outcome("change_password", err) }()

	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrIdentityNotFound, "")
		}
		return s.storeFault(err, "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.store.UpdatePassword(ctx, user.ID, string(hash), time.Now().UTC()); err != nil {
		return s.storeFault(err, "failed to update password")
	}
	if err := s.store.RevokeSessions(ctx, user.ID); err != nil {
		return s.storeFault(err, "failed to revoke sessions")
	}
	return nil
}

// Me returns identity info for verified access-token claims without a store
// round-trip.
func (s *AuthService) Me(claims *token.AccessClaims) models.UserInfo {
	return models.UserInfo{ID: claims.UserID, Role: claims.Role}
}

// VerifyAccess exposes access-token verification to the request gate.
func (s *AuthService) VerifyAccess(raw string) (*token.AccessClaims, error) {
	return s.verifier.VerifyAccess(raw)
}

func (s *AuthService) issuePair(user *models.User) (*models.TokenPair, error) {
	access, accessExp, err := s.issuer.IssueAccess(user.ID, user.Role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refresh, refreshExp, err := s.issuer.IssueRefresh(user.ID, user.SessionVersion)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	return &models.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// storeFault maps a store failure to a 503. A broken store is never a
// credential problem and must not surface as 401.
func (s *AuthService) storeFault(err error, msg string) *appErrors.Error {
	s.logger.Error("credential store failure", zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, msg)
}
