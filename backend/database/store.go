package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrDuplicate  = errors.New("duplicate record")
	// ErrPatternSet means the user already has a pattern; only a reset clears it.
	ErrPatternSet = errors.New("pattern already set")
)

// Store persists users, their pattern option sets and redeemed setup tokens.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for the log admin endpoints.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", u.Username, u.Email).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check existing user: %w", err)
	}
	if count > 0 {
		return ErrDuplicate
	}
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UserByUsernameAndEmail(ctx context.Context, username, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("username = ? AND email = ?", username, email).First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UsersWithoutPattern(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Where("security_pattern IS NULL").Order("created_at").Find(&users).Error
	return users, err
}

// IncrementFailedAttempts bumps the counter in place so concurrent failures
// are never lost, and returns the new value.
func (s *Store) IncrementFailedAttempts(ctx context.Context, id string, at time.Time) (int, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"failed_attempts":     gorm.Expr("failed_attempts + ?", 1),
		"last_failed_attempt": at,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	var count int
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Select("failed_attempts").Scan(&count).Error
	return count, err
}

func (s *Store) ResetFailedAttempts(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Update("failed_attempts", 0).Error
}

// ExpireFailedAttempts zeroes the counter only if the last failure is at or
// before cutoff, so a failure recorded after the caller's read survives.
func (s *Store) ExpireFailedAttempts(ctx context.Context, id string, cutoff time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND (last_failed_attempt IS NULL OR last_failed_attempt <= ?)", id, cutoff).
		Update("failed_attempts", 0).Error
}

// SavePattern stores the encoded pattern for a user who has none. A non-empty
// setupTokenID is recorded as redeemed in the same transaction; ErrDuplicate
// means it was already used and ErrPatternSet that a pattern exists.
func (s *Store) SavePattern(ctx context.Context, id, encoded, setupTokenID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if setupTokenID != "" {
			used := models.UsedSetupToken{TokenID: setupTokenID, UserID: id}
			if err := tx.Create(&used).Error; err != nil {
				return translate(err)
			}
		}
		res := tx.Model(&models.User{}).Where("id = ? AND is_pattern_set = ?", id, false).Updates(map[string]any{
			"security_pattern": encoded,
			"is_pattern_set":   true,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrPatternSet
	})
}

func (s *Store) ClearPattern(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"security_pattern": nil,
		"is_pattern_set":   false,
	}).Error
}

func (s *Store) SetupOptions(ctx context.Context, userID string) (*models.PatternSetupOptions, error) {
	var opts models.PatternSetupOptions
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&opts).Error; err != nil {
		return nil, translate(err)
	}
	return &opts, nil
}

// SaveSetupOptions inserts or replaces a user's option sets.
func (s *Store) SaveSetupOptions(ctx context.Context, opts *models.PatternSetupOptions) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phrases", "images", "icons", "updated_at"}),
	}).Create(opts).Error
}

func (s *Store) IsSetupTokenUsed(ctx context.Context, tokenID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.UsedSetupToken{}).Where("token_id = ?", tokenID).Count(&count).Error
	return count > 0, err
}
