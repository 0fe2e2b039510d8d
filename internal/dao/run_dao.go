package dao

import (
	"mcpsentry/internal/models"

	"gorm.io/gorm"
)

type RunDAO interface {
	SaveRun(run *models.Run) error
	GetRunByUUID(uuid string) (*models.Run, error)
	ListRuns() ([]models.Run, error)
	ListRunsWithPagination(page, limit int) ([]models.Run, int64, error)
	UpdateRun(run *models.Run) error
	DeleteRun(uuid string) error
}

type runDAO struct {
	db *gorm.DB
}

func NewRunDAO(db *gorm.DB) RunDAO {
	return &runDAO{db: db}
}

func (dao *runDAO) SaveRun(run *models.Run) error {
	return dao.db.Create(run).Error
}

func (dao *runDAO) UpdateRun(run *models.Run) error {
	return dao.db.Save(run).Error
}

func (dao *runDAO) GetRunByUUID(uuid string) (*models.Run, error) {
	var run models.Run
	if err := dao.db.Where("uuid = ?", uuid).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (dao *runDAO) ListRuns() ([]models.Run, error) {
	var runs []models.Run
	if err := dao.db.Order("created_at desc").Limit(50).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (dao *runDAO) ListRunsWithPagination(page, limit int) ([]models.Run, int64, error) {
	var runs []models.Run
	var total int64

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	offset := (page - 1) * limit

	if err := dao.db.Model(&models.Run{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := dao.db.Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error; err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

func (dao *runDAO) DeleteRun(uuid string) error {
	return dao.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("uuid = ?", uuid).Delete(&models.Run{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("run_uuid = ?", uuid).Delete(&models.TestResult{}).Error; err != nil {
			return err
		}
		return tx.Where("run_uuid = ?", uuid).Delete(&models.AgentStory{}).Error
	})
}
