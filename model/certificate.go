package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Certificate is issued once per user and course after completion. It keeps
// copies of the names so verification survives course deletion.
type Certificate struct {
	ID                string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	UserID            uint      `gorm:"not null;uniqueIndex:idx_certificate_user_course" json:"userId"`
	CourseID          uint      `gorm:"not null;uniqueIndex:idx_certificate_user_course" json:"courseId"`
	CertificateNumber string    `gorm:"type:varchar(40);not null;uniqueIndex" json:"certificateNumber"`
	UserName          string    `gorm:"type:varchar(255)" json:"userName"`
	CourseTitle       string    `gorm:"type:varchar(255)" json:"courseTitle"`
	CompletedAt       time.Time `json:"completedAt"`
	IssuedAt          time.Time `json:"issuedAt"`
}

// BeforeCreate assigns the public identifier.
func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
