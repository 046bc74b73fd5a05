package types

import "time"

// Difficulty indicates how demanding an activity is.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
)

// Valid reports whether the difficulty is one of the known levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Activity represents a catalog entry. Curated entries are maintained by
// admins and carry no owner; user-created entries record the account that
// submitted them.
type Activity struct {
	// ID is the unique identifier of the activity.
	ID int64 `json:"id" db:"id"`

	// Title is the human-readable name of the activity.
	Title string `json:"title" db:"title"`

	// Images holds the object-storage keys or URLs of the activity's
	// images. An activity always has at least one image.
	Images []string `json:"images" db:"images"`

	// Duration is a free-form duration description, e.g. "30m".
	Duration string `json:"duration" db:"duration"`

	// Category groups the activity for browsing, e.g. "fitness".
	Category string `json:"category" db:"category"`

	// Description is the long-form explanation of the activity.
	Description string `json:"description,omitempty" db:"description"`

	// Difficulty is the activity's difficulty level.
	Difficulty Difficulty `json:"difficulty" db:"difficulty"`

	// Materials lists what is needed to do the activity, in order.
	// May be empty, never nil once persisted.
	Materials []string `json:"materials" db:"materials"`

	// Steps lists the instructions, in order. May be empty, never nil
	// once persisted.
	Steps []string `json:"steps" db:"steps"`

	// IsUserCreated distinguishes user submissions from curated entries.
	IsUserCreated bool `json:"isUserCreated" db:"is_user_created"`

	// CreatedBy is the id of the owning user. Set iff IsUserCreated,
	// immutable after creation.
	CreatedBy int64 `json:"createdBy,omitempty" db:"created_by"`

	// Email is the denormalized email of the owning user. Set iff
	// IsUserCreated, immutable after creation.
	Email string `json:"email,omitempty" db:"email"`

	// CreatedAt is the timestamp at which the activity was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the activity.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
