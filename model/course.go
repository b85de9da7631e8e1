package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CourseStatus tracks a course through generation.
type CourseStatus string

const (
	StatusGeneratingMetadata CourseStatus = "GENERATING_METADATA"
	StatusMetadataReady      CourseStatus = "METADATA_READY"
	StatusGeneratingModule1  CourseStatus = "GENERATING_MODULE_1"
	StatusReady              CourseStatus = "READY"
	StatusComplete           CourseStatus = "COMPLETE"
	StatusFailed             CourseStatus = "FAILED"
)

// InProgress reports whether generation is still running for the course.
func (s CourseStatus) InProgress() bool {
	switch s {
	case StatusGeneratingMetadata, StatusMetadataReady, StatusGeneratingModule1:
		return true
	}
	return false
}

// Learnable reports whether module 1 content may exist for the status.
func (s CourseStatus) Learnable() bool {
	return s == StatusReady || s == StatusComplete
}

// Course is a generated course owned by a user
type Course struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deletedAt,omitempty"`
	UserID        uint           `gorm:"not null;index" json:"userId"`
	Prompt        string         `gorm:"type:text;not null" json:"prompt"`
	Title         string         `gorm:"type:varchar(255)" json:"title"`
	Description   string         `gorm:"type:text" json:"description"`
	Level         string         `gorm:"type:varchar(30)" json:"level,omitempty"`
	Status        CourseStatus   `gorm:"type:varchar(30);not null;index" json:"status"`
	TotalModules  int            `gorm:"default:0" json:"totalModules"`
	IsPublic      bool           `gorm:"default:false;index" json:"isPublic"`
	PublishedAt   *time.Time     `json:"publishedAt,omitempty"`
	AverageRating float64        `gorm:"default:0" json:"averageRating"`
	TotalRatings  int            `gorm:"default:0" json:"totalRatings"`
	FailureReason string         `gorm:"type:text" json:"failureReason,omitempty"`

	// Relationships
	User    User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Modules []Module `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"modules,omitempty"`
}

// Module is an ordered section of a course
type Module struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	CourseID    uint      `gorm:"not null;uniqueIndex:idx_module_course_order" json:"courseId"`
	ModuleOrder int       `gorm:"not null;uniqueIndex:idx_module_course_order" json:"moduleOrder"`
	Title       string    `gorm:"type:varchar(255)" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	VideoID     string    `gorm:"type:varchar(32)" json:"videoId,omitempty"`

	Chunks []Chunk `gorm:"foreignKey:ModuleID;constraint:OnDelete:CASCADE" json:"chunks,omitempty"`
	Quiz   *Quiz   `gorm:"foreignKey:ModuleID;constraint:OnDelete:CASCADE" json:"quiz,omitempty"`
}

// Chunk is the smallest addressable unit of content in a module
type Chunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	ModuleID   uint      `gorm:"not null;index" json:"moduleId"`
	ChunkOrder int       `gorm:"not null" json:"chunkOrder"`
	Title      string    `gorm:"type:varchar(255)" json:"title"`
	Content    string    `gorm:"type:text" json:"content"`
}

// Quiz belongs to at most one module
type Quiz struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	ModuleID  uint           `gorm:"not null;uniqueIndex" json:"moduleId"`
	Title     string         `gorm:"type:varchar(255)" json:"title"`
	Questions []QuizQuestion `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

type QuizQuestion struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	QuizID        uint                        `gorm:"not null;index" json:"quizId"`
	QuestionOrder int                         `gorm:"not null" json:"questionOrder"`
	Question      string                      `gorm:"type:text;not null" json:"question"`
	Options       datatypes.JSONSlice[string] `json:"options"`
	CorrectAnswer int                         `json:"correctAnswer"`
	Explanation   string                      `gorm:"type:text" json:"explanation,omitempty"`
}
