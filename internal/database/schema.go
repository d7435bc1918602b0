package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ExchangeStart   string = "start"
	ExchangeMessage string = "message"
)

type Conversation struct {
	Id             string `gorm:"primaryKey"`
	InitialMessage string
	CreationTime   time.Time
	LastActivity   time.Time
	MessageCount   int `gorm:"default:0"`

	Exchanges []Exchange `gorm:"foreignKey:ConversationId;constraint:OnDelete:CASCADE"`
}

// Exchange is one proxied call to Genie and its outcome. Failed starts have no
// conversation id.
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
	LatencyMs  int64     `gorm:"default:0"`
	Timestamp  time.Time `gorm:"index"`

	// UpstreamKey locates the archived raw reply. Empty when nothing was
	// archived.
	UpstreamKey string `gorm:"default:''"`
}
