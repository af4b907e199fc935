package models

import (
	"fmt"
	"time"
)

// Requirements lists the eligibility checks of a giveaway. Zero values disable a check.
type Requirements struct {
	MinLevel      int           `json:"min_level,omitempty"`
	RequiredRoles []string      `json:"required_roles,omitempty"` // participant needs at least one
	MinAccountAge time.Duration `json:"min_account_age,omitempty"`
	MinMemberAge  time.Duration `json:"min_member_age,omitempty"`
	RequireVoice  bool          `json:"require_voice,omitempty"`
}

// IsEmpty reports whether no check is configured.
func (r Requirements) IsEmpty() bool {
	return r.MinLevel == 0 && len(r.RequiredRoles) == 0 &&
		r.MinAccountAge == 0 && r.MinMemberAge == 0 && !r.RequireVoice
}

// Validate checks the requirement set is well formed.
func (r Requirements) Validate() error {
	if r.MinLevel < 0 {
		return fmt.Errorf("min_level must not be negative")
	}
	if r.MinAccountAge < 0 {
		return fmt.Errorf("min_account_age must not be negative")
	}
	if r.MinMemberAge < 0 {
		return fmt.Errorf("min_member_age must not be negative")
	}
	for _, role := range r.RequiredRoles {
		if role == "" {
			return fmt.Errorf("required_roles must not contain empty role IDs")
		}
	}
	return nil
}

// BonusEntries describes extra lottery weight granted on top of the baseline entry.
type BonusEntries struct {
	Roles   map[string]int `json:"roles,omitempty"`   // role ID -> extra weight
	Booster int            `json:"booster,omitempty"` // flat bonus for boosting members
	Levels  map[int]int    `json:"levels,omitempty"`  // level threshold -> extra weight, cumulative
}

// IsEmpty reports whether no bonus rule is configured.
func (b BonusEntries) IsEmpty() bool {
	return len(b.Roles) == 0 && b.Booster == 0 && len(b.Levels) == 0
}

// Validate checks the bonus rules are well formed.
func (b BonusEntries) Validate() error {
	for role, bonus := range b.Roles {
		if role == "" {
			return fmt.Errorf("bonus role ID must not be empty")
		}
		if bonus <= 0 {
			return fmt.Errorf("bonus for role %s must be positive", role)
		}
	}
	if b.Booster < 0 {
		return fmt.Errorf("booster bonus must not be negative")
	}
	for level, bonus := range b.Levels {
		if level < 0 {
			return fmt.Errorf("level threshold %d must not be negative", level)
		}
		if bonus <= 0 {
			return fmt.Errorf("bonus for level %d must be positive", level)
		}
	}
	return nil
}

// ParticipantFacts is the snapshot of participant data eligibility is decided on.
// Nil fields are unknown.
type ParticipantFacts struct {
	Level            *int       `json:"level,omitempty"`
	Roles            []string   `json:"roles,omitempty"`
	AccountCreatedAt *time.Time `json:"account_created_at,omitempty"`
	JoinedAt         *time.Time `json:"joined_at,omitempty"`
	Boosting         bool       `json:"boosting"`
	InVoice          *bool      `json:"in_voice,omitempty"`
}

// HasRole reports whether the participant holds the role.
func (f *ParticipantFacts) HasRole(roleID string) bool {
	for _, r := range f.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// MemberFacts is the per-guild member record maintained by the leveling and
// membership subsystems. The engine only reads it.
type MemberFacts struct {
	GuildID          string     `gorm:"primaryKey;size:64" json:"guild_id"`
	UserID           string     `gorm:"primaryKey;size:64" json:"user_id"`
	Level            int        `gorm:"not null;default:0" json:"level"`
	Roles            []string   `gorm:"serializer:json;type:text" json:"roles"`
	AccountCreatedAt *time.Time `json:"account_created_at"`
	JoinedAt         *time.Time `json:"joined_at"`
	Boosting         bool       `gorm:"not null;default:false" json:"boosting"`
	InVoice          bool       `gorm:"not null;default:false" json:"in_voice"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for MemberFacts model.
func (MemberFacts) TableName() string {
	return "member_facts"
}

// ToParticipantFacts converts the stored record into an evaluator snapshot.
func (m *MemberFacts) ToParticipantFacts() *ParticipantFacts {
	level := m.Level
	inVoice := m.InVoice
	return &ParticipantFacts{
		Level:            &level,
		Roles:            append([]string(nil), m.Roles...),
		AccountCreatedAt: m.AccountCreatedAt,
		JoinedAt:         m.JoinedAt,
		Boosting:         m.Boosting,
		InVoice:          &inVoice,
	}
}
