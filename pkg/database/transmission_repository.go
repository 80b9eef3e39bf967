package database

import (
	"time"

	"gorm.io/gorm"
)

// TransmissionRepository handles transmission database operations
type TransmissionRepository struct {
	db *gorm.DB
}

// NewTransmissionRepository creates a new transmission repository
func NewTransmissionRepository(db *gorm.DB) *TransmissionRepository {
	return &TransmissionRepository{db: db}
}

// Create adds a new transmission record
func (r *TransmissionRepository) Create(tx *Transmission) error {
	return r.db.Create(tx).Error
}

// GetRecent retrieves the most recent N transmissions
func (r *TransmissionRepository) GetRecent(limit int) ([]Transmission, error) {
	var transmissions []Transmission
	err := r.db.Order("start_time DESC").Limit(limit).Find(&transmissions).Error
	return transmissions, err
}

// GetByCallsign retrieves the transmissions of one station
func (r *TransmissionRepository) GetByCallsign(callsign string, limit int) ([]Transmission, error) {
	var transmissions []Transmission
	err := r.db.Where("callsign = ?", callsign).
		Order("start_time DESC").
		Limit(limit).
		Find(&transmissions).Error
	return transmissions, err
}

// DeleteOlderThan deletes transmissions started before the given time
func (r *TransmissionRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("start_time < ?", before).Delete(&Transmission{})
	return result.RowsAffected, result.Error
}
