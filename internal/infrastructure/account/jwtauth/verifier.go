package jwtauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/riskibarqy/porras-fc/internal/domain/user"
	"github.com/riskibarqy/porras-fc/internal/platform/cache"
	"github.com/riskibarqy/porras-fc/internal/platform/logging"
	"github.com/riskibarqy/porras-fc/internal/usecase"
)

const defaultRevokedTTL = 24 * time.Hour

type Config struct {
	Secret     string
	Issuer     string
	RevokedTTL time.Duration
	Clock      clockwork.Clock
	Logger     *logging.Logger
}

// Claims are the HS256 access token claims. Subject carries the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates locally signed access tokens. Revoked tokens are kept in an
// in-process deny-list, so a revoke is only visible to the instance that served it.
type Verifier struct {
	secret  []byte
	issuer  string
	clock   clockwork.Clock
	revoked *cache.Store
	logger  *logging.Logger
}

func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, crerr.New("jwt secret is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	revokedTTL := cfg.RevokedTTL
	if revokedTTL <= 0 {
		revokedTTL = defaultRevokedTTL
	}

	return &Verifier{
		secret:  []byte(secret),
		issuer:  strings.TrimSpace(cfg.Issuer),
		clock:   clock,
		revoked: cache.NewStore(revokedTTL, cache.WithClock(clock)),
		logger:  logger.Named("jwtauth"),
	}, nil
}

func (v *Verifier) VerifyAccessToken(ctx context.Context, token string) (user.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return user.Principal{}, fmt.Errorf("%w: token is required", usecase.ErrUnauthenticated)
	}
	if _, revoked := v.revoked.Get(ctx, tokenKey(token)); revoked {
		return user.Principal{}, fmt.Errorf("%w: token revoked", usecase.ErrUnauthenticated)
	}

	claims, err := v.parse(token)
	if err != nil {
		v.logger.DebugContext(ctx, "reject access token", "error", err)
		return user.Principal{}, fmt.Errorf("%w: %v", usecase.ErrUnauthenticated, err)
	}

	return user.Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: strings.TrimSpace(claims.Name),
	}, nil
}

func (v *Verifier) RevokeAccessToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", usecase.ErrUnauthenticated)
	}
	v.revoked.Set(ctx, tokenKey(token), struct{}{})
	return nil
}

// Sign issues a token for principal that expires after ttl.
func (v *Verifier) Sign(principal user.Principal, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := Claims{
		Email: principal.Email,
		Name:  principal.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", crerr.Wrap(err, "sign access token")
	}
	return signed, nil
}

func (v *Verifier) parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, crerr.New("token is not valid")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, crerr.New("token has no subject")
	}
	return claims, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
