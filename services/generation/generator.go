// Package generation turns a course prompt into structured course content
// through a large language model.
package generation

import (
	"context"
	"errors"

	"github.com/NicoHurtado/cursia-sub002/model"
)

// ErrGeneration wraps every failure of the model call or of its output.
var ErrGeneration = errors.New("generation failed")

// Generator is the collaborator the worker pipeline calls.
type Generator interface {
	// GenerateMetadata produces the title, description and module outline.
	GenerateMetadata(ctx context.Context, course *model.Course, source string) (*CourseMetadata, error)
	// GenerateModule produces the chunks and quiz of module moduleNumber
	// (1-based). course.Modules must be loaded.
	GenerateModule(ctx context.Context, course *model.Course, moduleNumber int) (*ModuleContent, error)
}

type CourseMetadata struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Level       string          `json:"level"`
	Modules     []ModuleOutline `json:"modules"`
}

type ModuleOutline struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ModuleContent struct {
	Chunks     []ChunkContent `json:"chunks"`
	Quiz       *QuizContent   `json:"quiz,omitempty"`
	VideoQuery string         `json:"videoQuery,omitempty"`
}

type ChunkContent struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type QuizContent struct {
	Title     string            `json:"title"`
	Questions []QuestionContent `json:"questions"`
}

type QuestionContent struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// Validate rejects metadata the pipeline cannot build a course from.
func (m *CourseMetadata) Validate() error {
	if m.Title == "" {
		return errors.Join(ErrGeneration, errors.New("metadata without title"))
	}
	if len(m.Modules) == 0 {
		return errors.Join(ErrGeneration, errors.New("metadata without modules"))
	}
	return nil
}

// Validate rejects empty modules and quiz answers that point outside the
// option list.
func (m *ModuleContent) Validate() error {
	if len(m.Chunks) == 0 {
		return errors.Join(ErrGeneration, errors.New("module without chunks"))
	}
	if m.Quiz == nil {
		return nil
	}
	for _, q := range m.Quiz.Questions {
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return errors.Join(ErrGeneration, errors.New("quiz answer out of range"))
		}
	}
	return nil
}
