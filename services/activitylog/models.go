package activitylog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entry is one persisted activity record. Entries form a hash chain: Hash
// commits to PrevHash and the entry's content, so editing or removing a row
// breaks every later link.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence   int64     `gorm:"uniqueIndex;not null" json:"sequence"`
	Operation  string    `gorm:"size:64;index" json:"operation"`
	Type       string    `gorm:"size:64;index" json:"type"`
	Module     string    `gorm:"size:32;index" json:"module"`
	Subject    string    `gorm:"size:80;index" json:"subject,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	At         int64     `gorm:"not null" json:"at"`
	PrevHash   string    `gorm:"size:64" json:"prevHash"`
	Hash       string    `gorm:"size:64;uniqueIndex" json:"hash"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (Entry) TableName() string { return "activity_entries" }

// BeforeCreate assigns a random id when none is set.
func (e *Entry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Attrs decodes the stored attribute map.
func (e Entry) Attrs() map[string]string {
	out := make(map[string]string)
	if e.Attributes == "" {
		return out
	}
	_ = json.Unmarshal([]byte(e.Attributes), &out)
	return out
}

// MarshalJSON renders attributes as an object rather than the stored text.
func (e Entry) MarshalJSON() ([]byte, error) {
	type alias Entry
	return json.Marshal(struct {
		alias
		Attributes map[string]string `json:"attributes"`
	}{alias: alias(e), Attributes: e.Attrs()})
}

// AutoMigrate creates or updates the activity tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}
