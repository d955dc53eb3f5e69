package models

import (
	"time"

	"CasinoApi/pkg/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Retained bet records per player.
const betHistoryCap = 200

// BetRecord is one settled wager, kept for the player-facing history feed.
type BetRecord struct {
	ID         int64     `gorm:"primaryKey,autoIncrement" json:"-"`
	Username   string    `gorm:"index;not null" json:"-"`
	Game       string    `json:"game"`
	Bet        int64     `json:"bet"`
	Result     string    `json:"result"`
	Payout     int64     `json:"payout"`
	Multiplier float64   `json:"multiplier"`
	CreatedAt  time.Time `json:"timestamp"`
}

// BetHistoryStore persists settled wagers to an embedded sqlite database.
type BetHistoryStore struct {
	db *gorm.DB
}

// OpenBetHistory opens (and migrates) the bet history database at path.
func OpenBetHistory(path string) (*BetHistoryStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, logger.WrapError(err, "")
	}
	if err := db.AutoMigrate(&BetRecord{}); err != nil {
		return nil, logger.WrapError(err, "")
	}
	return &BetHistoryStore{db: db}, nil
}

// Record appends a settled wager and trims the player's history to the cap.
// Failures are logged; bet history is best effort and never blocks settlement.
func (s *BetHistoryStore) Record(username, game, result string, bet, payout int64, multiplier float64) {
	rec := BetRecord{
		Username:   username,
		Game:       game,
		Bet:        bet,
		Result:     result,
		Payout:     payout,
		Multiplier: multiplier,
		CreatedAt:  time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return logger.WrapError(err, "")
		}
		return trimHistory(tx, username)
	})
	if err != nil {
		logger.Error("Error saving bet record: %v", err)
	}
}

func trimHistory(tx *gorm.DB, username string) error {
	var count int64
	if err := tx.Model(&BetRecord{}).
		Where("username = ?", username).
		Count(&count).Error; err != nil {
		return logger.WrapError(err, "")
	}

	if count > betHistoryCap {
		var oldest []BetRecord
		if err := tx.Where("username = ?", username).
			Order("id asc").
			Limit(int(count - betHistoryCap)).
			Find(&oldest).Error; err != nil {
			return logger.WrapError(err, "")
		}
		if err := tx.Delete(&oldest).Error; err != nil {
			return logger.WrapError(err, "")
		}
	}
	return nil
}

// Recent returns the newest records for username, newest first.
func (s *BetHistoryStore) Recent(username string, limit int) ([]BetRecord, error) {
	if limit <= 0 || limit > betHistoryCap {
		limit = 50
	}

	var records []BetRecord
	err := s.db.Where("username = ?", username).
		Order("id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, logger.WrapError(err, "")
	}
	return records, nil
}
