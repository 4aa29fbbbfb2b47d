package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

const (
	accessType   = "access"
	resetPurpose = "reset"
)

// ErrWrongPurpose is returned when a token is valid but minted for another use.
var ErrWrongPurpose = errors.New("token purpose mismatch")

// ErrNotAccessToken is returned when a verified token is not an access token.
var ErrNotAccessToken = errors.New("not an access token")

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret      []byte
	ttl         time.Duration
	resetSecret []byte
	resetTTL    time.Duration
	now         func() time.Time
}

// TokenOptions configures a TokenManager.
type TokenOptions struct {
	Secret      string
	TTL         time.Duration
	ResetSecret string
	ResetTTL    time.Duration
	Now         func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(opts TokenOptions) *TokenManager {
	if opts.TTL <= 0 {
		opts.TTL = 8 * time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	if opts.ResetSecret == "" {
		opts.ResetSecret = opts.Secret
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TokenManager{
		secret:      []byte(opts.Secret),
		ttl:         opts.TTL,
		resetSecret: []byte(opts.ResetSecret),
		resetTTL:    opts.ResetTTL,
		now:         opts.Now,
	}
}

// Claims describes the access token payload.
type Claims struct {
	Type  string      `json:"typ"`
	Email string      `json:"email,omitempty"`
	Name  string      `json:"name,omitempty"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// ResetClaims describes the password reset token payload.
type ResetClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs an access token for the principal.
func (tm *TokenManager) GenerateToken(p domain.Principal) (string, time.Time, error) {
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := &Claims{
		Type:  accessType,
		Email: p.Email,
		Name:  p.Name,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates signature and expiry and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	return tm.parseAccess(tokenStr, jwt.WithTimeFunc(tm.now))
}

// ParseTokenIgnoringExpiry validates the signature only. Used for refresh.
func (tm *TokenManager) ParseTokenIgnoringExpiry(tokenStr string) (*Claims, error) {
	return tm.parseAccess(tokenStr, jwt.WithoutClaimsValidation())
}

func (tm *TokenManager) parseAccess(tokenStr string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Type != accessType || !claims.Role.Valid() {
		return nil, ErrNotAccessToken
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing subject")
	}
	return claims, nil
}

// GenerateResetToken signs a short lived single-use reset token for userID.
func (tm *TokenManager) GenerateResetToken(userID string) (string, *ResetClaims, error) {
	issuedAt := tm.now()
	claims := &ResetClaims{
		Purpose: resetPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(tm.resetTTL)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.resetSecret)
	if err != nil {
		return "", nil, err
	}
	return tokenString, claims, nil
}

// ParseResetToken validates a reset token and its purpose.
func (tm *TokenManager) ParseResetToken(tokenStr string) (*ResetClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &ResetClaims{}, func(*jwt.Token) (interface{}, error) {
		return tm.resetSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*ResetClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Purpose != resetPurpose || claims.Subject == "" || claims.ID == "" {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// ResetTTL returns the lifetime of reset tokens.
func (tm *TokenManager) ResetTTL() time.Duration {
	return tm.resetTTL
}
