package db

import (
	"time"

	"gorm.io/gorm"
)

// Profile approval states. Only approved profiles are discoverable.
const (
	ProfilePending  = "pending"
	ProfileApproved = "approved"
	ProfileRejected = "rejected"
)

// Profile holds identity plus the matchable attributes of a member.
// Deactivation is a soft delete (DeletedAt).
type Profile struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	Email         string `gorm:"uniqueIndex;size:128;not null"`
	FullName      string `gorm:"size:128;not null"`
	Gender        string `gorm:"size:16;not null;index:idx_profile_discovery,priority:2"`
	DateOfBirth   *time.Time
	City          string `gorm:"size:64"`
	State         string `gorm:"size:64"`
	Country       string `gorm:"size:64"`
	Religion      string `gorm:"size:64"`
	Community     string `gorm:"size:64"`
	MotherTongue  string `gorm:"size:64"`
	Education     string `gorm:"size:128"`
	Profession    string `gorm:"size:128"`
	HeightCm      int
	About         string `gorm:"type:text"`
	Status        string `gorm:"size:16;not null;default:pending;index:idx_profile_discovery,priority:1"`
	Completeness  int    `gorm:"not null;default:0"`
	Images        []ProfileImage
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime"`
	DeletedAt     gorm.DeletedAt `gorm:"index"`
	ApprovedAt    *time.Time
	ApprovedBy    *uint64
	InvitationID  *uint64
	LastActiveAt  *time.Time
	RejectionNote string `gorm:"size:255"`
}

// ProfileImage is an opaque reference to an image held by the image service.
type ProfileImage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ProfileID uint64    `gorm:"not null;index"`
	URL       string    `gorm:"size:512;not null"`
	Position  int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Invitation gates registration. Only a bcrypt hash of the code is stored.
type Invitation struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Email      string    `gorm:"size:128;not null;index"`
	CodeHash   string    `gorm:"size:255;not null"`
	CreatedBy  uint64    `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null"`
	RedeemedAt *time.Time
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// Swipe is one actor's action toward a target.
//
// Unique (ActorID, TargetID):
//   - at most one swipe per ordered pair; a second attempt is a conflict, never an overwrite.
//
// Indexes:
//   - idx_swipe_target_action(target_id, action, created_at DESC, actor_id)
//     serves "who liked me" lists and counts.
type Swipe struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement"`
	ActorID   uint64     `gorm:"not null;uniqueIndex:idx_swipe_actor_target,priority:1"`
	TargetID  uint64     `gorm:"not null;uniqueIndex:idx_swipe_actor_target,priority:2;index:idx_swipe_target_action,priority:1"`
	Action    string     `gorm:"size:16;not null;index:idx_swipe_target_action,priority:2"`
	IsMatch   bool       `gorm:"not null;default:false"`
	MatchedAt *time.Time
	Source    string     `gorm:"size:32"`
	Platform  string     `gorm:"size:32"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index:idx_swipe_target_action,priority:3,sort:desc"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
}

// Connection statuses.
const (
	ConnectionActive    = "active"
	ConnectionUnmatched = "unmatched"
	ConnectionBlocked   = "blocked"
)

// Connection records a mutual match. The pair is stored in canonical order
// (UserLowID < UserHighID) under a unique index so creation is idempotent.
type Connection struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	UserLowID       uint64    `gorm:"column:user_low_id;not null;uniqueIndex:idx_connection_pair,priority:1"`
	UserHighID      uint64    `gorm:"column:user_high_id;not null;uniqueIndex:idx_connection_pair,priority:2;index"`
	Status          string    `gorm:"size:16;not null;default:active"`
	StatusChangedBy *uint64
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// HasUser reports whether userID is one of the two participants.
func (c *Connection) HasUser(userID uint64) bool {
	return c.UserLowID == userID || c.UserHighID == userID
}

// Other returns the participant that is not userID.
func (c *Connection) Other(userID uint64) uint64 {
	if c.UserLowID == userID {
		return c.UserHighID
	}
	return c.UserLowID
}

// DailyLikeCounter is the per (user, UTC day) like counter.
type DailyLikeCounter struct {
	UserID    uint64    `gorm:"primaryKey;autoIncrement:false"`
	Day       string    `gorm:"primaryKey;size:10"`
	Used      int       `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// DailyLike attributes one unit of a DailyLikeCounter to a target, so that
// unmatch cleanup can find and refund it.
type DailyLike struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_daily_like_pair,priority:1"`
	TargetID  uint64    `gorm:"not null;uniqueIndex:idx_daily_like_pair,priority:2;index"`
	Day       string    `gorm:"size:10;not null;uniqueIndex:idx_daily_like_pair,priority:3"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// ChatThread is the consolidated thread header of a connection.
type ChatThread struct {
	ConnectionID  uint64 `gorm:"primaryKey;autoIncrement:false"`
	NextSeq       uint64 `gorm:"not null;default:0"`
	LastMessageAt *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// ChatMessage is one entry of a thread. Ordering is (CreatedAt, Seq).
type ChatMessage struct {
	ConnectionID uint64    `gorm:"primaryKey;autoIncrement:false;uniqueIndex:idx_chat_message_seq,priority:1;index:idx_chat_message_order,priority:1"`
	ID           string    `gorm:"primaryKey;size:64"`
	Seq          uint64    `gorm:"not null;uniqueIndex:idx_chat_message_seq,priority:2;index:idx_chat_message_order,priority:3"`
	SenderID     uint64    `gorm:"not null"`
	Text         string    `gorm:"type:text;not null"`
	Status       string    `gorm:"size:16;not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_chat_message_order,priority:2"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// LegacyMessage is the old standalone per-message row, kept only until the
// connection's thread has been migrated.
type LegacyMessage struct {
	ID           string    `gorm:"primaryKey;size:64"`
	ConnectionID uint64    `gorm:"not null;index"`
	SenderID     uint64    `gorm:"not null"`
	Text         string    `gorm:"type:text;not null"`
	Status       string    `gorm:"size:16"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (LegacyMessage) TableName() string { return "messages" }

// All lists every model managed by AutoMigrate.
func All() []any {
	return []any{
		&Profile{}, &ProfileImage{}, &Invitation{},
		&Swipe{}, &Connection{}, &DailyLikeCounter{}, &DailyLike{},
		&ChatThread{}, &ChatMessage{}, &LegacyMessage{},
	}
}
