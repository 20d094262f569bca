package entity

import "gorm.io/gorm"

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&UserProgress{},
		&PointActivity{},
		&QuestCategory{},
		&Quest{},
		&QuestProgress{},
		&WeeklyGoal{},
		&Notification{},
	)
}
