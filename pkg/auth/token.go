package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

// StaffTokenPayload is what the admin console supplies when minting a token.
type StaffTokenPayload struct {
	StaffID uuid.UUID
	Role    enums.StaffRole
	JTI     string
}

// StaffClaims is the verified identity carried on admin routes.
type StaffClaims struct {
	StaffID uuid.UUID       `json:"staff_id"`
	Role    enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *StaffClaims) check() error {
	if c.StaffID == uuid.Nil {
		return errors.New("staff id missing from token")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid staff role %q", c.Role)
	}
	if c.Subject != "" && c.Subject != c.StaffID.String() {
		return errors.New("token subject does not match staff id")
	}
	return nil
}

func requireKeys(cfg config.JWTConfig) error {
	if cfg.Secret == "" {
		return errors.New("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return errors.New("jwt issuer is required")
	}
	return nil
}

// MintStaffToken signs an HS256 token valid for ttl from now. The API only
// verifies tokens; minting exists for tooling and tests.
func MintStaffToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, payload StaffTokenPayload) (string, error) {
	if err := requireKeys(cfg); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", errors.New("jwt ttl must be positive")
	}

	claims := StaffClaims{StaffID: payload.StaffID, Role: payload.Role}
	if err := claims.check(); err != nil {
		return "", err
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    cfg.Issuer,
		Subject:   payload.StaffID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseStaffToken verifies signature, issuer and expiry and returns the claims.
func ParseStaffToken(cfg config.JWTConfig, raw string) (*StaffClaims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)

	claims := &StaffClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if err := claims.check(); err != nil {
		return nil, err
	}
	return claims, nil
}
