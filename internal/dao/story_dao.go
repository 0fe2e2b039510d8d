package dao

import (
	"mcpsentry/internal/models"

	"gorm.io/gorm"
)

type StoryDAO interface {
	SaveStory(story *models.AgentStory) error
	ListStoriesForRun(runUUID string) ([]models.AgentStory, error)
	GetStory(runUUID string, index int) (*models.AgentStory, error)
}

type storyDAO struct {
	db *gorm.DB
}

func NewStoryDAO(db *gorm.DB) StoryDAO {
	return &storyDAO{db: db}
}

func (dao *storyDAO) SaveStory(story *models.AgentStory) error {
	return dao.db.Create(story).Error
}

func (dao *storyDAO) ListStoriesForRun(runUUID string) ([]models.AgentStory, error) {
	var stories []models.AgentStory
	if err := dao.db.Where("run_uuid = ?", runUUID).
		Order("story_index").
		Find(&stories).Error; err != nil {
		return nil, err
	}
	return stories, nil
}

func (dao *storyDAO) GetStory(runUUID string, index int) (*models.AgentStory, error) {
	var story models.AgentStory
	if err := dao.db.Where("run_uuid = ? AND story_index = ?", runUUID, index).
		First(&story).Error; err != nil {
		return nil, err
	}
	return &story, nil
}
