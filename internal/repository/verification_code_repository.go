package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pdfchat/internal/model"
)

type VerificationCodeRepository struct {
	db *gorm.DB
}

func NewVerificationCodeRepository(db *gorm.DB) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

func (r *VerificationCodeRepository) Create(code *model.VerificationCode) error {
	if err := r.db.Create(code).Error; err != nil {
		return fmt.Errorf("create verification code failed: %w", err)
	}
	return nil
}

// GetLatestActive returns the newest unused, unexpired code for the user
// and purpose, or nil.
func (r *VerificationCodeRepository) GetLatestActive(userID uint, purpose string, now time.Time) (*model.VerificationCode, error) {
	var code model.VerificationCode
	err := r.db.
		Where("user_id = ? AND purpose = ? AND used = ? AND expires_at > ?", userID, purpose, false, now).
		Order("created_at DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query verification code failed: %w", err)
	}
	return &code, nil
}

func (r *VerificationCodeRepository) MarkUsed(id uint) error {
	if err := r.db.Model(&model.VerificationCode{}).Where("id = ?", id).UpdateColumn("used", true).Error; err != nil {
		return fmt.Errorf("mark verification code used failed: %w", err)
	}
	return nil
}

func (r *VerificationCodeRepository) IncrementAttempts(id uint) error {
	err := r.db.Model(&model.VerificationCode{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return fmt.Errorf("increment verification attempts failed: %w", err)
	}
	return nil
}
