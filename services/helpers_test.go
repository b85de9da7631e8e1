package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/cache"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T) (*QueueService, *fakeClock) {
	t.Helper()
	return newTestQueueOn(t, miniredis.RunT(t))
}

func newTestQueueOn(t *testing.T, mr *miniredis.Miniredis) (*QueueService, *fakeClock) {
	t.Helper()
	rc := cache.FromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueueService(rc, logger.Nop())
	q.now = clock.Now
	return q, clock
}

func createUser(t *testing.T, db *gorm.DB, plan model.Plan) *model.User {
	t.Helper()
	var n int64
	db.Model(&model.User{}).Count(&n)
	u := &model.User{
		Email:        fmt.Sprintf("user%d@cursia.test", n+1),
		PasswordHash: "x",
		Name:         fmt.Sprintf("Usuario %d", n+1),
		Role:         model.RoleUser,
		Plan:         plan,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// courseShape lists chunk counts per module; withQuiz adds a two question quiz
// (correct answers 0 and 1) to every module that has chunks.
type courseShape struct {
	status   model.CourseStatus
	chunks   []int
	withQuiz bool
	public   bool
}

func createCourse(t *testing.T, db *gorm.DB, ownerID uint, shape courseShape) *model.Course {
	t.Helper()
	course := &model.Course{
		UserID:       ownerID,
		Prompt:       "Aprender Go",
		Title:        "Go desde cero",
		Status:       shape.status,
		TotalModules: len(shape.chunks),
		IsPublic:     shape.public,
	}
	require.NoError(t, db.Create(course).Error)

	for i, n := range shape.chunks {
		module := model.Module{CourseID: course.ID, ModuleOrder: i + 1, Title: fmt.Sprintf("Módulo %d", i+1)}
		require.NoError(t, db.Create(&module).Error)
		for j := 0; j < n; j++ {
			chunk := model.Chunk{ModuleID: module.ID, ChunkOrder: j + 1, Title: fmt.Sprintf("Parte %d", j+1), Content: "contenido"}
			require.NoError(t, db.Create(&chunk).Error)
		}
		if shape.withQuiz && n > 0 {
			quiz := model.Quiz{ModuleID: module.ID, Title: "Quiz", Questions: []model.QuizQuestion{
				{QuestionOrder: 1, Question: "a?", Options: []string{"x", "y"}, CorrectAnswer: 0},
				{QuestionOrder: 2, Question: "b?", Options: []string{"x", "y"}, CorrectAnswer: 1},
			}}
			require.NoError(t, db.Create(&quiz).Error)
		}
		course.Modules = append(course.Modules, module)
	}
	return course
}

func courseChunkIDs(t *testing.T, db *gorm.DB, courseID uint) []uint {
	t.Helper()
	var ids []uint
	require.NoError(t, db.Model(&model.Chunk{}).
		Joins("JOIN modules ON modules.id = chunks.module_id").
		Where("modules.course_id = ?", courseID).
		Order("modules.module_order, chunks.chunk_order").
		Pluck("chunks.id", &ids).Error)
	return ids
}
