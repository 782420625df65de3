// Package auth implements password login followed by a pattern second factor:
// lockout bookkeeping, session and setup tokens, and the flows that tie them
// to the store and the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/database"
	"github.com/PhilHem/go-pattern-auth/backend/identity"
	"github.com/PhilHem/go-pattern-auth/backend/models"
	"github.com/PhilHem/go-pattern-auth/backend/pattern"
)

// Store is the persistence the flows need. *database.Store implements it.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByUsernameAndEmail(ctx context.Context, username, email string) (*models.User, error)
	IncrementFailedAttempts(ctx context.Context, id string, at time.Time) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	ExpireFailedAttempts(ctx context.Context, id string, cutoff time.Time) error
	SavePattern(ctx context.Context, id, encoded, setupTokenID string) error
	ClearPattern(ctx context.Context, id string) error
	SetupOptions(ctx context.Context, userID string) (*models.PatternSetupOptions, error)
	SaveSetupOptions(ctx context.Context, opts *models.PatternSetupOptions) error
	IsSetupTokenUsed(ctx context.Context, tokenID string) (bool, error)
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Service struct {
	store   Store
	hasher  Hasher
	tokens  *Tokens
	lockout *Lockout
	idp     *identity.Facade
	rand    *rand.Rand // nil uses the global source
	log     *slog.Logger
}

func NewService(store Store, hasher Hasher, tokens *Tokens, lockout *Lockout, idp *identity.Facade) *Service {
	return &Service{
		store:   store,
		hasher:  hasher,
		tokens:  tokens,
		lockout: lockout,
		idp:     idp,
		log:     slog.Default().With("source", "auth"),
	}
}

// Tokens exposes the token service for callers that mint setup links.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// Profile is the public view of a user.
type Profile struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	IsPatternSet bool   `json:"isPatternSet"`
}

func profileOf(u *models.User) Profile {
	return Profile{ID: u.ID, Username: u.Username, Email: u.Email, IsPatternSet: u.IsPatternSet}
}

// SessionResult is returned by register, login and reset.
type SessionResult struct {
	Message                     string `json:"message"`
	UserID                      string `json:"userId"`
	Token                       string `json:"token"`
	RequiresPatternSetup        bool   `json:"requiresPatternSetup,omitempty"`
	RequiresPatternVerification bool   `json:"requiresPatternVerification,omitempty"`
	FlowID                      string `json:"flowId,omitempty"`
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*SessionResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, invalid("Missing required fields")
	}
	if !emailPattern.MatchString(in.Email) {
		return nil, invalid("Invalid email address")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, invalid("Password must be at least %d characters", MinPasswordLength)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: in.Username, Email: in.Email, Password: hashed}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			s.log.Warn("registration failed: user exists", "username", in.Username)
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.idp.CreateUser(ctx, identity.NewUser{Username: user.Username, Email: user.Email})

	token, err := s.tokens.Generate(user, 0)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	s.log.Info("user registered", "user_id", user.ID, "username", user.Username)
	return &SessionResult{
		Message:              "User registered successfully",
		UserID:               user.ID,
		Token:                token,
		RequiresPatternSetup: true,
	}, nil
}

func (s *Service) checkLock(ctx context.Context, userID string) error {
	status, err := s.lockout.Check(ctx, userID)
	if err != nil {
		return err
	}
	if status.Blocked {
		return &LockedError{RemainingMinutes: status.RemainingMinutes()}
	}
	return nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*SessionResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, invalid("Missing required fields")
	}

	user, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		s.log.Warn("login failed: user not found", "username", username)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := s.checkLock(ctx, user.ID); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.log.Warn("login refused: account locked", "user_id", user.ID)
		}
		return nil, err
	}

	if !s.hasher.Compare(password, user.Password) {
		n, err := s.lockout.RecordFailure(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		s.log.Warn("login failed: invalid password", "user_id", user.ID, "failed_attempts", n)
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user, 0)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	res := &SessionResult{UserID: user.ID, Token: token}
	if user.IsPatternSet {
		res.Message = "Login successful - Pattern verification required"
		res.RequiresPatternVerification = true
	} else {
		res.Message = "Login successful - Pattern setup required"
		res.RequiresPatternSetup = true
	}

	if flow := s.idp.InitiateAuthentication(ctx, user.Username); flow.OK && flow.Value != nil {
		res.FlowID = flow.Value.FlowID
	}

	s.log.Info("password verified", "user_id", user.ID, "pattern_set", user.IsPatternSet)
	return res, nil
}

// resolveTarget validates a token and finds the user it may act on. Setup
// tokens name their user; session tokens must match the caller's userID.
func (s *Service) resolveTarget(ctx context.Context, token, userID string) (*Claims, *models.User, error) {
	claims := s.tokens.Verify(token)
	if claims == nil {
		return nil, nil, ErrInvalidToken
	}

	if claims.IsSetup() {
		if claims.TokenID == "" {
			return nil, nil, ErrInvalidToken
		}
		used, err := s.store.IsSetupTokenUsed(ctx, claims.TokenID)
		if err != nil {
			return nil, nil, fmt.Errorf("check setup token: %w", err)
		}
		if used {
			return nil, nil, ErrTokenAlreadyUsed
		}
	} else if userID == "" || userID != claims.ID {
		return nil, nil, ErrSessionMismatch
	}

	user, err := s.store.UserByID(ctx, claims.ID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	return claims, user, nil
}

func (s *Service) newOptions(userID string) *models.PatternSetupOptions {
	o := pattern.Shuffled(s.rand)
	return &models.PatternSetupOptions{UserID: userID, Phrases: o.Phrases, Images: o.Images, Icons: o.Icons}
}

// options returns the user's option sets, creating shuffled ones on first use.
func (s *Service) options(ctx context.Context, userID string) (*models.PatternSetupOptions, error) {
	opts, err := s.store.SetupOptions(ctx, userID)
	if err == nil {
		return opts, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load setup options: %w", err)
	}

	opts = s.newOptions(userID)
	if err := s.store.SaveSetupOptions(ctx, opts); err != nil {
		return nil, fmt.Errorf("save setup options: %w", err)
	}
	return opts, nil
}

type SetupOptions struct {
	Phrases  []string `json:"phrases"`
	Images   []string `json:"images"`
	Icons    []string `json:"icons"`
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
}

// PatternOptions returns the symbol sets the user picks a pattern from.
func (s *Service) PatternOptions(ctx context.Context, token, userID string) (*SetupOptions, error) {
	if token == "" {
		return nil, invalid("Missing required token")
	}
	_, user, err := s.resolveTarget(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	opts, err := s.options(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &SetupOptions{
		Phrases:  opts.Phrases,
		Images:   opts.Images,
		Icons:    opts.Icons,
		UserID:   user.ID,
		Username: user.Username,
	}, nil
}

type PatternInput struct {
	UserID  string   `json:"userId"`
	Pattern []string `json:"pattern"`
	Token   string   `json:"token"`
	FlowID  string   `json:"flowId,omitempty"`
}

type PatternResult struct {
	Message string  `json:"message"`
	Token   string  `json:"token"`
	UserID  string  `json:"userId"`
	User    Profile `json:"user"`
}

func (s *Service) SetupPattern(ctx context.Context, in PatternInput) (*PatternResult, error) {
	if in.Token == "" || len(in.Pattern) != pattern.Length {
		return nil, invalid("Invalid pattern setup request")
	}
	sel, err := pattern.Parse(in.Pattern)
	if err != nil {
		return nil, invalid("%v", err)
	}

	claims, user, err := s.resolveTarget(ctx, in.Token, in.UserID)
	if err != nil {
		return nil, err
	}
	// An existing pattern is only replaced through ResetPattern.
	if user.IsPatternSet {
		s.log.Warn("pattern setup refused: pattern already set", "user_id", user.ID)
		return nil, ErrPatternAlreadySet
	}

	opts, err := s.options(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !sel.Fits(pattern.Options{Phrases: opts.Phrases, Images: opts.Images, Icons: opts.Icons}) {
		return nil, invalid("Pattern does not match the available options")
	}

	var setupTokenID string
	if claims.IsSetup() {
		setupTokenID = claims.TokenID
	}
	encoded := pattern.Encode(sel)
	if err := s.store.SavePattern(ctx, user.ID, encoded, setupTokenID); err != nil {
		switch {
		case errors.Is(err, database.ErrDuplicate):
			return nil, ErrTokenAlreadyUsed
		case errors.Is(err, database.ErrPatternSet):
			return nil, ErrPatternAlreadySet
		case errors.Is(err, database.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("save pattern: %w", err)
	}
	user.IsPatternSet = true
	user.SecurityPattern = &encoded

	s.idp.StorePattern(ctx, user.Username, encoded)

	token, err := s.tokens.Generate(user, 0)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	s.log.Info("pattern set up", "user_id", user.ID, "via_setup_link", claims.IsSetup())
	return &PatternResult{
		Message: "Pattern setup successful",
		Token:   token,
		UserID:  user.ID,
		User:    profileOf(user),
	}, nil
}

// matchPattern compares against the stored pattern in order; no stored
// pattern never matches.
func matchPattern(u *models.User, sel pattern.Selection) bool {
	if u.SecurityPattern == nil || *u.SecurityPattern == "" {
		return false
	}
	stored, err := pattern.Decode(*u.SecurityPattern)
	if err != nil {
		return false
	}
	return stored.Equal(sel)
}

func (s *Service) VerifyPattern(ctx context.Context, in PatternInput) (*PatternResult, error) {
	if in.UserID == "" || in.Token == "" || len(in.Pattern) == 0 {
		return nil, invalid("Missing required fields")
	}
	if len(in.Pattern) != pattern.Length {
		return nil, invalid("%v", pattern.ErrLength)
	}
	sel, err := pattern.Parse(in.Pattern)
	if err != nil {
		return nil, invalid("%v", err)
	}

	claims := s.tokens.Verify(in.Token)
	if claims == nil || claims.IsSetup() {
		return nil, ErrInvalidToken
	}
	if claims.ID != in.UserID {
		return nil, ErrSessionMismatch
	}

	user, err := s.store.UserByID(ctx, claims.ID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := s.checkLock(ctx, user.ID); err != nil {
		return nil, err
	}

	ok := matchPattern(user, sel)
	if in.FlowID != "" {
		s.idp.CompleteAuthentication(ctx, in.FlowID, ok)
	}

	if !ok {
		n, err := s.lockout.RecordFailure(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		s.log.Warn("pattern verification failed", "user_id", user.ID, "failed_attempts", n)
		return nil, &PatternMismatchError{AttemptsLeft: s.lockout.AttemptsLeft(n)}
	}

	if err := s.lockout.Reset(ctx, user.ID); err != nil {
		return nil, err
	}
	user.FailedAttempts = 0

	token, err := s.tokens.GenerateAuthenticated(user)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	s.log.Info("pattern verified", "user_id", user.ID)
	return &PatternResult{
		Message: "Pattern verification successful",
		Token:   token,
		UserID:  user.ID,
		User:    profileOf(user),
	}, nil
}

type ResetInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	CurrentPassword string `json:"currentPassword"`
}

// ResetPattern clears the pattern after re-checking the password and hands
// back a token that requires a fresh setup.
func (s *Service) ResetPattern(ctx context.Context, in ResetInput) (*SessionResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.CurrentPassword == "" {
		return nil, invalid("Missing required fields")
	}

	user, err := s.store.UserByUsernameAndEmail(ctx, in.Username, in.Email)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := s.checkLock(ctx, user.ID); err != nil {
		return nil, err
	}

	if !s.hasher.Compare(in.CurrentPassword, user.Password) {
		n, err := s.lockout.RecordFailure(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		s.log.Warn("pattern reset failed: invalid password", "user_id", user.ID, "failed_attempts", n)
		return nil, ErrInvalidCredentials
	}

	if err := s.store.ClearPattern(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("clear pattern: %w", err)
	}
	user.IsPatternSet = false
	user.SecurityPattern = nil

	s.idp.StorePattern(ctx, user.Username, "")

	if err := s.store.SaveSetupOptions(ctx, s.newOptions(user.ID)); err != nil {
		return nil, fmt.Errorf("regenerate setup options: %w", err)
	}

	token, err := s.tokens.Generate(user, 0)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	s.log.Info("pattern reset", "user_id", user.ID)
	return &SessionResult{
		Message:              "Pattern reset successful",
		UserID:               user.ID,
		Token:                token,
		RequiresPatternSetup: true,
	}, nil
}

// Profile loads the public view of a user.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	p := profileOf(user)
	return &p, nil
}

type ProviderUser struct {
	Known      bool `json:"known"`
	HasPattern bool `json:"hasPattern"`
	Reachable  bool `json:"reachable"`
}

type ProviderInfo struct {
	Provider         string        `json:"provider"`
	LocalAuthEnabled bool          `json:"localAuthEnabled"`
	User             *ProviderUser `json:"user,omitempty"`
}

// ProviderStatus describes the configured identity provider. With a valid
// token it also reports what the provider holds for that user.
func (s *Service) ProviderStatus(ctx context.Context, token string) ProviderInfo {
	info := ProviderInfo{
		Provider:         s.idp.ProviderName(),
		LocalAuthEnabled: s.idp.IsUsingLocalFallback(),
	}
	claims := s.tokens.Verify(token)
	if claims == nil || info.LocalAuthEnabled {
		return info
	}

	u := &ProviderUser{}
	remote := s.idp.GetUser(ctx, claims.Username)
	u.Reachable = remote.OK
	if remote.OK && remote.Value != nil {
		u.Known = true
		if p := s.idp.GetPattern(ctx, claims.Username); p.OK {
			u.HasPattern = p.Value != ""
		}
	}
	info.User = u
	return info
}

// IssueSetupToken mints a single-use setup token for the user.
func (s *Service) IssueSetupToken(u *models.User) (string, error) {
	token, _, err := s.tokens.GenerateSetupToken(u)
	if err != nil {
		return "", fmt.Errorf("sign setup token: %w", err)
	}
	return token, nil
}
