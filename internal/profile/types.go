// Package profile manages member profiles: registration, edits, the image
// gallery, approval, and the discovery feed.
package profile

import (
	"strings"
	"time"

	"github.com/oggyb/shaadimantra/internal/config"
	"github.com/oggyb/shaadimantra/internal/db"
)

const minAge = 18

// CreateInput is a registration request.
type CreateInput struct {
	Email          string     `json:"email" validate:"required,email,max=128"`
	FullName       string     `json:"full_name" validate:"required,min=2,max=128"`
	Gender         string     `json:"gender" validate:"required,oneof=male female"`
	DateOfBirth    *time.Time `json:"date_of_birth" validate:"required"`
	City           string     `json:"city" validate:"max=64"`
	State          string     `json:"state" validate:"max=64"`
	Country        string     `json:"country" validate:"max=64"`
	Religion       string     `json:"religion" validate:"max=64"`
	Community      string     `json:"community" validate:"max=64"`
	MotherTongue   string     `json:"mother_tongue" validate:"max=64"`
	Education      string     `json:"education" validate:"max=128"`
	Profession     string     `json:"profession" validate:"max=128"`
	HeightCm       int        `json:"height_cm" validate:"omitempty,min=120,max=230"`
	About          string     `json:"about" validate:"max=2000"`
	InvitationCode string     `json:"invitation_code"`
}

// UpdateInput changes the fields that are set. Email and gender are fixed
// after registration.
type UpdateInput struct {
	FullName     *string    `json:"full_name" validate:"omitempty,min=2,max=128"`
	DateOfBirth  *time.Time `json:"date_of_birth"`
	City         *string    `json:"city" validate:"omitempty,max=64"`
	State        *string    `json:"state" validate:"omitempty,max=64"`
	Country      *string    `json:"country" validate:"omitempty,max=64"`
	Religion     *string    `json:"religion" validate:"omitempty,max=64"`
	Community    *string    `json:"community" validate:"omitempty,max=64"`
	MotherTongue *string    `json:"mother_tongue" validate:"omitempty,max=64"`
	Education    *string    `json:"education" validate:"omitempty,max=128"`
	Profession   *string    `json:"profession" validate:"omitempty,max=128"`
	HeightCm     *int       `json:"height_cm" validate:"omitempty,min=120,max=230"`
	About        *string    `json:"about" validate:"omitempty,max=2000"`
}

func (in UpdateInput) apply(p *db.Profile) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&p.FullName, in.FullName)
	set(&p.City, in.City)
	set(&p.State, in.State)
	set(&p.Country, in.Country)
	set(&p.Religion, in.Religion)
	set(&p.Community, in.Community)
	set(&p.MotherTongue, in.MotherTongue)
	set(&p.Education, in.Education)
	set(&p.Profession, in.Profession)
	set(&p.About, in.About)
	if in.DateOfBirth != nil {
		dob := in.DateOfBirth.UTC()
		p.DateOfBirth = &dob
	}
	if in.HeightCm != nil {
		p.HeightCm = *in.HeightCm
	}
}

// Config holds registration and gallery rules.
type Config struct {
	RequireInvitation bool
	InvitationTTL     time.Duration
	MaxImages         int
	// AllowRediscovery brings members whose match ended (unmatched, not
	// blocked) back into each other's discovery feed.
	AllowRediscovery bool
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		RequireInvitation: cfg.Profile.RequireInvitation,
		InvitationTTL:     cfg.Profile.InvitationTTL,
		MaxImages:         6,
		AllowRediscovery:  cfg.Match.AllowRediscovery,
	}
}

// Completeness scores how much of a profile is filled in, 0 to 100.
// Matching requires a minimum score before a member may swipe.
func Completeness(p *db.Profile) int {
	score := 0
	add := func(ok bool, weight int) {
		if ok {
			score += weight
		}
	}
	filled := func(s string) bool { return strings.TrimSpace(s) != "" }

	add(filled(p.FullName), 10)
	add(filled(p.Gender), 5)
	add(p.DateOfBirth != nil, 10)
	add(filled(p.City), 5)
	add(filled(p.Country), 5)
	add(filled(p.Religion), 5)
	add(filled(p.Community), 5)
	add(filled(p.MotherTongue), 5)
	add(filled(p.Education), 10)
	add(filled(p.Profession), 10)
	add(p.HeightCm > 0, 5)
	add(filled(p.About), 10)
	add(len(p.Images) > 0, 15)
	return score
}

// Age is the whole years between dob and now.
func Age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

func opposite(gender string) string {
	switch gender {
	case "male":
		return "female"
	case "female":
		return "male"
	}
	return ""
}
