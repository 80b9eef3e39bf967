package database

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DMRUserRepository handles DMR user database operations
type DMRUserRepository struct {
	db *gorm.DB
}

// NewDMRUserRepository creates a new DMR user repository
func NewDMRUserRepository(db *gorm.DB) *DMRUserRepository {
	return &DMRUserRepository{db: db}
}

// Upsert creates or updates a DMR user record
func (r *DMRUserRepository) Upsert(user *DMRUser) error {
	return r.db.Save(user).Error
}

// UpsertBatch upserts users in batches inside one transaction
func (r *DMRUserRepository) UpsertBatch(users []DMRUser, batchSize int) error {
	if len(users) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(users)
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "radio_id"}},
			UpdateAll: true,
		}).CreateInBatches(users, batchSize).Error
	})
}

// GetByRadioID retrieves a user by their radio ID
func (r *DMRUserRepository) GetByRadioID(radioID uint32) (*DMRUser, error) {
	var user DMRUser
	if err := r.db.Where("radio_id = ?", radioID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByCallsign retrieves the lowest radio ID registered to a callsign.
// Callsigns are compared upper case.
func (r *DMRUserRepository) GetByCallsign(callsign string) (*DMRUser, error) {
	var user DMRUser
	err := r.db.Where("callsign = ?", strings.ToUpper(callsign)).
		Order("radio_id ASC").
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Count returns the total number of users in the database
func (r *DMRUserRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&DMRUser{}).Count(&count).Error
	return count, err
}

// DeleteAll removes all users from the database
func (r *DMRUserRepository) DeleteAll() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&DMRUser{}).Error
}
