package config

import (
	"log"
	"os"

	"github.com/tomhardin/cardstack-api/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var Database *gorm.DB

func Connect() error {
	var err error
	dbURL := os.Getenv("DB_URL")
	if dbURL != "" {
		Database, err = gorm.Open(postgres.Open(dbURL), &gorm.Config{})
	} else {
		// Local development falls back to a sqlite file
		dbPath := os.Getenv("DB_PATH")
		if dbPath == "" {
			dbPath = "cardstack.db"
		}
		log.Printf("DB_URL not set, using sqlite database at %s", dbPath)
		Database, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	}
	if err != nil {
		panic("failed to connect database")
	}

	err = Database.AutoMigrate(
		&models.User{},
		&models.Deck{},
		&models.Card{},
		&models.CardStat{},
		&models.StudySession{},
		&models.CardInteraction{},
		&models.DeckShare{},
		&models.SharedDeckAccess{},
		&models.Upload{},
	)
	if err != nil {
		panic("failed to auto migrate database")
	}

	return nil
}
