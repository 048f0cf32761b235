package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrStaleWrite indicates an optimistic version conflict: the row changed since it was read.
	ErrStaleWrite = errors.New("stale write")
	// ErrDuplicate indicates a uniqueness constraint rejected the write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrQuotaExceeded indicates a submission already holds its full reviewer quota.
	ErrQuotaExceeded = errors.New("reviewer quota exceeded")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func translateWriteError(err error) error {
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// updateVersioned writes every column of model guarded by the expected version.
// The caller must already have bumped the model's version field.
func updateVersioned(tx *gorm.DB, model interface{}, expected uint) error {
	result := tx.Model(model).
		Where("version = ?", expected).
		Select("*").
		Omit("id", "created_at", clause.Associations).
		Updates(model)
	if result.Error != nil {
		return translateWriteError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}
