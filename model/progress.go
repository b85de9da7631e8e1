package model

import (
	"time"

	"gorm.io/datatypes"
)

// UserProgress is the per-user, per-course completion record
type UserProgress struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	UserID          uint       `gorm:"not null;uniqueIndex:idx_progress_user_course" json:"userId"`
	CourseID        uint       `gorm:"not null;uniqueIndex:idx_progress_user_course" json:"courseId"`
	CurrentModuleID *uint      `json:"currentModuleId,omitempty"`
	CurrentChunkID  *uint      `json:"currentChunkId,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`

	// Relationships
	User             User              `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course           Course            `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
	CompletedChunks  []CompletedChunk  `gorm:"foreignKey:ProgressID;constraint:OnDelete:CASCADE" json:"completedChunks"`
	CompletedModules []CompletedModule `gorm:"foreignKey:ProgressID;constraint:OnDelete:CASCADE" json:"completedModules"`
	QuizAttempts     []QuizAttempt     `gorm:"foreignKey:ProgressID;constraint:OnDelete:CASCADE" json:"quizAttempts"`
}

// TableName specifies the table name for UserProgress
func (UserProgress) TableName() string {
	return "user_progress"
}

// CompletedChunk marks one chunk done within a progress record
type CompletedChunk struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	ProgressID  uint      `gorm:"not null;uniqueIndex:idx_completed_chunk" json:"-"`
	ChunkID     uint      `gorm:"not null;uniqueIndex:idx_completed_chunk" json:"chunkId"`
	CompletedAt time.Time `json:"completedAt"`
}

func (CompletedChunk) TableName() string {
	return "progress_completed_chunks"
}

// CompletedModule marks a module whose quiz has been passed
type CompletedModule struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	ProgressID  uint      `gorm:"not null;uniqueIndex:idx_completed_module" json:"-"`
	ModuleID    uint      `gorm:"not null;uniqueIndex:idx_completed_module" json:"moduleId"`
	CompletedAt time.Time `json:"completedAt"`
}

func (CompletedModule) TableName() string {
	return "progress_completed_modules"
}

// QuizAttempt is one scored submission of a module quiz
type QuizAttempt struct {
	ID             uint                     `gorm:"primaryKey" json:"id"`
	ProgressID     uint                     `gorm:"not null;index" json:"-"`
	ModuleID       uint                     `gorm:"not null;index" json:"moduleId"`
	QuizID         uint                     `gorm:"not null" json:"quizId"`
	Answers        datatypes.JSONSlice[int] `json:"answers"`
	CorrectAnswers int                      `json:"correctAnswers"`
	TotalQuestions int                      `json:"totalQuestions"`
	Score          int                      `json:"score"`
	Passed         bool                     `json:"passed"`
	AttemptedAt    time.Time                `gorm:"not null" json:"timestamp"`
}
