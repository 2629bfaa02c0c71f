package repository

import (
	"gorm.io/gorm"

	"github.com/taskcloud/mailbridge/interfaces"
	"github.com/taskcloud/mailbridge/internal/models"
)

type Repositories struct {
	UserMailboxRepository interfaces.UserMailboxRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		UserMailboxRepository: NewUserMailboxRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.UserMailbox{},
	)
}
