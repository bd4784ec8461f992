package events

import "time"

// Event represents a single tracked beacon in the append-only events table.
// Rows are immutable once written: the ingestion path only inserts, and the
// only delete operation is the administrative bulk delete per entity.
//
// Dimension fields are nullable; a missing value means the beacon did not
// carry that attribute.
type Event struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	EntityID  string    `gorm:"index:idx_entity_created;size:128;not null"`
	VisitorID string    `gorm:"index;size:64;not null"`
	Event     string    `gorm:"index;size:128;not null"`
	CreatedAt time.Time `gorm:"index:idx_entity_created;type:datetime;not null"`

	Fqdn     *string `gorm:"size:253"`
	Path     *string
	Referrer *string
	Platform *string `gorm:"size:64"`
	Browser  *string `gorm:"size:64"`
	Mobile   *bool
	Country  *string `gorm:"size:2"`
	City     *string `gorm:"size:128"`

	UtmSource   *string `gorm:"size:255"`
	UtmMedium   *string `gorm:"size:255"`
	UtmCampaign *string `gorm:"size:255"`
	UtmContent  *string `gorm:"size:255"`
	UtmTerm     *string `gorm:"size:255"`
}

// EventPageview is the event name recorded for ordinary page loads.
const EventPageview = "pageview"
