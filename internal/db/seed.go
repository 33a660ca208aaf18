package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DevInvitationCode is the open invitation every seeded database carries
// for invitee@example.com.
const DevInvitationCode = "WELCOME2025"

var (
	cities     = []string{"Mumbai", "Pune", "Delhi", "Bengaluru", "Chennai", "Jaipur", "Kochi"}
	religions  = []string{"Hindu", "Muslim", "Sikh", "Christian", "Jain"}
	tongues    = []string{"Hindi", "Marathi", "Tamil", "Malayalam", "Punjabi", "Gujarati"}
	jobs       = []string{"Engineer", "Doctor", "Teacher", "Architect", "Chartered Accountant"}
	openers    = []string{"Hi!", "Namaste", "Loved your profile", "How is your week going?", "Coffee sometime?"}
	swipeKinds = []string{"like", "like", "like", "super_like", "pass"}
)

// SeedTestData resets the database and populates it with demo profiles,
// swipes, connections and legacy chat rows.
//
// Behavior:
//  1. Clears every table managed by AutoMigrate.
//  2. Creates 20 approved profiles (10 male, 10 female).
//  3. Generates swipes between opposite genders; every 3rd pair is made
//     mutual and gets a connection.
//  4. Writes a few legacy (pre-thread) messages per connection so the chat
//     migration has work to do.
//  5. Adds one open invitation with DevInvitationCode.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB, log *slog.Logger) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC().Truncate(time.Millisecond)

	// --- Fresh start ---
	models := All()
	for i := len(models) - 1; i >= 0; i-- {
		table, err := tableName(db, models[i])
		if err != nil {
			return err
		}
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
		// Reset auto-increment sequences
		switch db.Dialector.Name() {
		case "mysql":
			db.Exec("ALTER TABLE " + table + " AUTO_INCREMENT = 1")
		case "sqlite":
			db.Exec("DELETE FROM sqlite_sequence WHERE name = ?", table)
		}
	}
	log.Info("cleared existing data")

	// --- Seed profiles (10 male, 10 female) ---
	for i := 1; i <= 20; i++ {
		gender := "male"
		if i > 10 {
			gender = "female"
		}
		dob := time.Date(1988+r.Intn(12), time.Month(1+r.Intn(12)), 1+r.Intn(28), 0, 0, 0, 0, time.UTC)
		approvedAt := now.Add(-time.Duration(r.Intn(500)) * time.Hour)
		lastActive := now.Add(-time.Duration(r.Intn(72)) * time.Hour)

		p := Profile{
			Email:        fmt.Sprintf("user%d@example.com", i),
			FullName:     fmt.Sprintf("Member %d", i),
			Gender:       gender,
			DateOfBirth:  &dob,
			City:         cities[r.Intn(len(cities))],
			Country:      "India",
			Religion:     religions[r.Intn(len(religions))],
			MotherTongue: tongues[r.Intn(len(tongues))],
			Profession:   jobs[r.Intn(len(jobs))],
			Education:    "Graduate",
			HeightCm:     150 + r.Intn(40),
			Status:       ProfileApproved,
			Completeness: 75,
			ApprovedAt:   &approvedAt,
			LastActiveAt: &lastActive,
			Images: []ProfileImage{
				{URL: fmt.Sprintf("https://images.example.com/profiles/%d/1.jpg", i)},
			},
		}
		if err := db.Create(&p).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}
	}
	log.Info("seeded profiles", "count", 20)

	// --- Seed swipes ---
	counter, matches := 0, 0
	for actorID := uint64(1); actorID <= 20; actorID++ {
		for j := 0; j < 8; j++ { // each member swipes on ~8 others
			targetID := uint64(r.Intn(20) + 1)
			// same gender never meets in discovery
			if (actorID <= 10) == (targetID <= 10) {
				continue
			}

			action := swipeKinds[r.Intn(len(swipeKinds))]
			mutual := counter%3 == 0
			if mutual {
				action = "like"
			}
			if err := insertSwipe(db, &Swipe{ActorID: actorID, TargetID: targetID, Action: action, Source: "seed"}, mutual); err != nil {
				return err
			}

			if mutual {
				if err := insertSwipe(db, &Swipe{ActorID: targetID, TargetID: actorID, Action: "like", Source: "seed"}, true); err != nil {
					return err
				}
				conn, err := connect(db, actorID, targetID, now)
				if err != nil {
					return err
				}
				if err := seedLegacyChat(db, r, conn, now); err != nil {
					return err
				}
				matches++
			}
			counter++
		}
	}
	log.Info("seeded swipes", "count", counter, "matches", matches)

	// --- Open invitation ---
	hash, err := bcrypt.GenerateFromPassword([]byte(DevInvitationCode), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash invitation code: %w", err)
	}
	inv := Invitation{Email: "invitee@example.com", CodeHash: string(hash), ExpiresAt: now.Add(30 * 24 * time.Hour)}
	if err := db.Create(&inv).Error; err != nil {
		return fmt.Errorf("failed to seed invitation: %w", err)
	}

	return nil
}

// insertSwipe keeps an existing swipe of the pair unless overwrite is set.
func insertSwipe(db *gorm.DB, s *Swipe, overwrite bool) error {
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
		DoNothing: true,
	}
	if overwrite {
		onConflict.DoNothing = false
		onConflict.DoUpdates = clause.AssignmentColumns([]string{"action", "updated_at"})
	}
	err := db.Clauses(onConflict).Create(s).Error
	if err != nil {
		return fmt.Errorf("failed to seed swipe: %w", err)
	}
	return nil
}

// connect marks the pair's swipes matched and upserts their connection.
func connect(db *gorm.DB, a, b uint64, now time.Time) (*Connection, error) {
	low, high := a, b
	if low > high {
		low, high = high, low
	}
	if err := db.Model(&Swipe{}).
		Where("(actor_id = ? AND target_id = ?) OR (actor_id = ? AND target_id = ?)", a, b, b, a).
		Updates(map[string]any{"is_match": true, "matched_at": now}).Error; err != nil {
		return nil, fmt.Errorf("failed to mark match: %w", err)
	}

	conn := Connection{UserLowID: low, UserHighID: high, Status: ConnectionActive}
	if err := db.Where(Connection{UserLowID: low, UserHighID: high}).FirstOrCreate(&conn).Error; err != nil {
		return nil, fmt.Errorf("failed to seed connection: %w", err)
	}
	return &conn, nil
}

func seedLegacyChat(db *gorm.DB, r *rand.Rand, conn *Connection, now time.Time) error {
	n := 1 + r.Intn(4)
	at := now.Add(-time.Duration(n+r.Intn(48)) * time.Hour)
	rows := make([]LegacyMessage, 0, n)
	for i := 0; i < n; i++ {
		sender := conn.UserLowID
		if i%2 == 1 {
			sender = conn.UserHighID
		}
		rows = append(rows, LegacyMessage{
			ID:           uuid.NewString(),
			ConnectionID: conn.ID,
			SenderID:     sender,
			Text:         openers[r.Intn(len(openers))],
			Status:       "delivered",
			CreatedAt:    at.Add(time.Duration(i) * time.Minute),
		})
	}
	if err := db.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to seed legacy messages: %w", err)
	}
	return nil
}

func tableName(db *gorm.DB, model any) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return "", fmt.Errorf("failed to resolve table of %T: %w", model, err)
	}
	return stmt.Schema.Table, nil
}
