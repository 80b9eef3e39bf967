package database

import (
	"gorm.io/gorm"
)

// NewsRepository stores Wires-X news records
type NewsRepository struct {
	db *gorm.DB
}

// NewNewsRepository creates a new news repository
func NewNewsRepository(db *gorm.DB) *NewsRepository {
	return &NewsRepository{db: db}
}

// Create numbers the record after the last one of its room and stores it
func (r *NewsRepository) Create(rec *NewsRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var last uint
		err := tx.Model(&NewsRecord{}).
			Where("network = ? AND room = ?", rec.Network, rec.Room).
			Select("COALESCE(MAX(number), 0)").
			Scan(&last).Error
		if err != nil {
			return err
		}
		rec.Number = last + 1
		return tx.Create(rec).Error
	})
}

// List returns the records of a room with the given kind letter, in number
// order. A zero kind lists every record.
func (r *NewsRepository) List(network, room string, kind byte) ([]NewsRecord, error) {
	var records []NewsRecord
	q := r.db.Omit("Data").Where("network = ? AND room = ?", network, room)
	if kind != 0 {
		q = q.Where("kind LIKE ?", string(kind)+"%")
	}
	err := q.Order("number ASC").Find(&records).Error
	return records, err
}

// Get retrieves one record with its payload
func (r *NewsRepository) Get(network, room string, number uint) (*NewsRecord, error) {
	var rec NewsRecord
	err := r.db.Where("network = ? AND room = ? AND number = ?", network, room, number).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Count returns the number of records stored for a room
func (r *NewsRepository) Count(network, room string) (int64, error) {
	var count int64
	err := r.db.Model(&NewsRecord{}).
		Where("network = ? AND room = ?", network, room).
		Count(&count).Error
	return count, err
}

// Delete removes a record
func (r *NewsRepository) Delete(id uint) error {
	return r.db.Delete(&NewsRecord{}, id).Error
}
