package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan is the subscription tier gating community features.
type Plan string

const (
	PlanFree     Plan = "FREE"
	PlanAprendiz Plan = "APRENDIZ"
	PlanExperto  Plan = "EXPERTO"
	PlanMaestro  Plan = "MAESTRO"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanAprendiz, PlanExperto, PlanMaestro:
		return true
	}
	return false
}

// Paid reports whether p is one of the paid tiers.
func (p Plan) Paid() bool {
	return p.Valid() && p != PlanFree
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered user in the system
type User struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time                   `json:"createdAt"`
	UpdatedAt    time.Time                   `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt              `gorm:"index" json:"-"`
	Email        string                      `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string                      `gorm:"not null" json:"-"`
	Name         string                      `gorm:"not null" json:"name"`
	Bio          string                      `gorm:"type:text" json:"bio,omitempty"`
	Role         string                      `gorm:"type:varchar(20);default:'user'" json:"role"`
	Plan         Plan                        `gorm:"type:varchar(20);not null;default:'FREE';index" json:"plan"`
	Interests    datatypes.JSONSlice[string] `json:"interests"`
	TokenVersion int                         `gorm:"default:0" json:"-"` // Increment to invalidate all user tokens

	// Relationships
	Courses      []Course      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Subscription *Subscription `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
