package migration_0

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Conversation struct {
	Id             string `gorm:"primaryKey"`
	InitialMessage string
	CreationTime   time.Time
	LastActivity   time.Time
	MessageCount   int `gorm:"default:0"`

	Exchanges []Exchange `gorm:"foreignKey:ConversationId;constraint:OnDelete:CASCADE"`
}

type Exchange struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ConversationId sql.NullString `gorm:"index"`
	Kind           string         `gorm:"size:20;not null"`

	Message  string
	Response string
	Query    sql.NullString
	Results  datatypes.JSON

	StatusCode int
	Error      string
	Timestamp  time.Time `gorm:"index"`
}

func Migration(db *gorm.DB) error {
	return db.AutoMigrate(&Conversation{}, &Exchange{})
}
