package types

import "time"

// ItemType classifies a report as a lost or a found item.
type ItemType string

const (
	ItemLost  ItemType = "lost"
	ItemFound ItemType = "found"
)

// ParseItemType returns the item type named by s. Only the exact
// lowercase names are accepted.
func ParseItemType(s string) (ItemType, bool) {
	switch ItemType(s) {
	case ItemLost, ItemFound:
		return ItemType(s), true
	default:
		return "", false
	}
}

// Contact is the owner information joined onto a report at read time.
// Every field is null when the owning user row is missing.
type Contact struct {
	Username      *string `json:"username"`
	Email         *string `json:"email"`
	ContactNumber *string `json:"contact_number"`
}

// Item represents a lost or found report.
type Item struct {
	// ID is the unique identifier of the report.
	ID int `json:"id" db:"id"`

	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Location    string `json:"location" db:"location"`

	// Type is fixed at creation.
	Type ItemType `json:"type" db:"type"`

	// ImageURL is the public path of the uploaded photo, or null.
	ImageURL *string `json:"image_url" db:"image_url"`

	// UserID is the owner of the report; only the owner may delete it.
	UserID int `json:"user_id" db:"user_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Contact
}

// ItemEvent is published to the broker after a report is created or deleted.
type ItemEvent struct {
	Event      string    `json:"event"`
	ItemID     int       `json:"item_id"`
	UserID     int       `json:"user_id"`
	Type       ItemType  `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventItemCreated = "item.created"
	EventItemDeleted = "item.deleted"
)
