package auth

import (
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PurposePatternSetup marks tokens sent in setup emails.
const PurposePatternSetup = "pattern_setup"

type Claims struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	IsPatternSet  bool   `json:"isPatternSet"`
	Purpose       string `json:"purpose,omitempty"`
	TokenID       string `json:"tokenId,omitempty"`
	Authenticated bool   `json:"authenticated,omitempty"`
	jwt.RegisteredClaims
}

// IsSetup reports whether the token came from a setup link.
func (c *Claims) IsSetup() bool {
	return c.Purpose == PurposePatternSetup
}

// Tokens signs and verifies HS256 session and setup tokens.
type Tokens struct {
	secret   []byte
	ttl      time.Duration
	setupTTL time.Duration
	now      func() time.Time
}

func NewTokens(secret string, ttl, setupTTL time.Duration) *Tokens {
	return &Tokens{
		secret:   []byte(secret),
		ttl:      ttl,
		setupTTL: setupTTL,
		now:      time.Now,
	}
}

func (t *Tokens) claimsFor(u *models.User, ttl time.Duration) Claims {
	now := t.now()
	return Claims{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		IsPatternSet: u.IsPatternSet,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (t *Tokens) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Generate issues a session token. A zero ttl uses the configured default.
func (t *Tokens) Generate(u *models.User, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = t.ttl
	}
	return t.sign(t.claimsFor(u, ttl))
}

// GenerateAuthenticated issues the token handed out after a correct pattern.
func (t *Tokens) GenerateAuthenticated(u *models.User) (string, error) {
	c := t.claimsFor(u, t.ttl)
	c.Authenticated = true
	return t.sign(c)
}

// GenerateSetupToken issues a single-use setup token and returns its id.
func (t *Tokens) GenerateSetupToken(u *models.User) (string, string, error) {
	c := t.claimsFor(u, t.setupTTL)
	c.Purpose = PurposePatternSetup
	c.TokenID = uuid.NewString()
	signed, err := t.sign(c)
	if err != nil {
		return "", "", err
	}
	return signed, c.TokenID, nil
}

// Verify returns nil for any token that is expired, malformed, or not signed
// with our key.
func (t *Tokens) Verify(token string) *Claims {
	if token == "" {
		return nil
	}
	var c Claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid || c.ID == "" {
		return nil
	}
	return &c
}
