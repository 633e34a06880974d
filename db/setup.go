package db

import (
	"encoding/json"
	"errors"

	"github.com/taskboard-dev/taskboard/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDatabase(dsn string) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})

	if err != nil {
		return err
	}

	return nil
}

func MigrateDatabase() error {
	return Migrate(DB)
}

func Migrate(gdb *gorm.DB) error {
	models := []interface{}{
		&models.User{},
		&models.Role{},
		&models.BoardTemplate{},
		&models.Project{},
		&models.ProjectMembership{},
		&models.Task{},
		&models.Subtask{},
		&models.TaskDependency{},
		&models.TaskHistory{},
		&models.FileAttachment{},
		&models.ReminderLog{},
	}

	migrator := gdb.Migrator()

	for _, model := range models {
		if !migrator.HasTable(model) {
			if err := gdb.AutoMigrate(model); err != nil {
				return err
			}
		}
	}

	return nil
}

// Seed inserts the global roles and the default board template if missing.
func Seed(gdb *gorm.DB) error {
	roles := []models.Role{
		{Name: "admin", Description: "Full access to every project"},
		{Name: "project_manager", Description: "Can create and manage projects"},
		{Name: "team_member", Description: "Can work on assigned tasks"},
	}

	for _, role := range roles {
		var existing models.Role

		err := gdb.Where("name = ?", role.Name).First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := gdb.Create(&role).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}

	var template models.BoardTemplate

	err := gdb.Where("name = ?", "Default").First(&template).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		columns, err := json.Marshal([]string{"To Do", "In Progress", "Done"})
		if err != nil {
			return err
		}

		template = models.BoardTemplate{Name: "Default", Columns: columns}

		if err := gdb.Create(&template).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}
