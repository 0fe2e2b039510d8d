package dao

import (
	"errors"

	"mcpsentry/internal/models"

	"gorm.io/gorm"
)

type BriefingDAO interface {
	LatestForTarget(target string) (*models.MissionBriefing, error)
	SaveBriefing(briefing *models.MissionBriefing) error
}

type briefingDAO struct {
	db *gorm.DB
}

func NewBriefingDAO(db *gorm.DB) BriefingDAO {
	return &briefingDAO{db: db}
}

// LatestForTarget returns (nil, nil) on a cache miss.
func (dao *briefingDAO) LatestForTarget(target string) (*models.MissionBriefing, error) {
	var briefing models.MissionBriefing
	err := dao.db.Where("target = ?", target).
		Order("cached_at desc").
		First(&briefing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &briefing, nil
}

// SaveBriefing keeps one row per target: last writer wins.
func (dao *briefingDAO) SaveBriefing(briefing *models.MissionBriefing) error {
	return dao.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("target = ?", briefing.Target).
			Delete(&models.MissionBriefing{}).Error; err != nil {
			return err
		}
		return tx.Create(briefing).Error
	})
}
