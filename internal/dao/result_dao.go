package dao

import (
	"mcpsentry/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResultDAO interface {
	SaveResult(result *models.TestResult) error
	ListResultsForRun(runUUID string) ([]models.TestResult, error)
	SeverityTally(runUUID string) (map[string]int, error)
}

type resultDAO struct {
	db *gorm.DB
}

func NewResultDAO(db *gorm.DB) ResultDAO {
	return &resultDAO{db: db}
}

// SaveResult upserts on the (run, category, check, target) key, so a
// re-delivered result never creates a duplicate row.
func (dao *resultDAO) SaveResult(result *models.TestResult) error {
	return dao.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "run_uuid"}, {Name: "category"}, {Name: "check"},
			{Name: "target_kind"}, {Name: "target_name"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"status", "severity", "evidence", "latency_ms"}),
	}).Create(result).Error
}

func (dao *resultDAO) ListResultsForRun(runUUID string) ([]models.TestResult, error) {
	var results []models.TestResult
	if err := dao.db.Where("run_uuid = ?", runUUID).
		Order("category, \"check\", target_name").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// SeverityTally counts failed results per severity. Run counters are
// always derived from this tally, never maintained independently.
func (dao *resultDAO) SeverityTally(runUUID string) (map[string]int, error) {
	type row struct {
		Severity string
		N        int
	}
	var rows []row
	if err := dao.db.Model(&models.TestResult{}).
		Select("severity, count(*) as n").
		Where("run_uuid = ? AND status = ?", runUUID, "fail").
		Group("severity").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	tally := make(map[string]int, len(rows))
	for _, r := range rows {
		tally[r.Severity] = r.N
	}
	return tally, nil
}
