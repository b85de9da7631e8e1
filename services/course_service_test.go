package services

import (
	"context"
	"testing"
	"time"

	"github.com/NicoHurtado/cursia-sub002/database/dbtest"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services/contentstore"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCourseQueuesMetadataAndStoresSource(t *testing.T) {
	db := dbtest.New(t)
	q, _ := newTestQueue(t)
	store := contentstore.NewMemoryStore()
	svc := NewCourseService(db, q, store, logger.Nop())
	user := createUser(t, db, model.PlanAprendiz)

	course, err := svc.Create(context.Background(), user, CreateCourseInput{
		Prompt:         "Historia de Colombia",
		Level:          "intermedio",
		SourceDocument: "apuntes de clase",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusGeneratingMetadata, course.Status)

	doc, err := store.Get(context.Background(), contentstore.SourceKey(course.ID))
	require.NoError(t, err)
	assert.Equal(t, "apuntes de clase", string(doc))

	jobs, err := q.CourseJobs(context.Background(), course.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.ActionGenerateMetadata, jobs[0].Action)
}

func TestCreateCourseEnforcesMonthlyQuota(t *testing.T) {
	db := dbtest.New(t)
	q, _ := newTestQueue(t)
	svc := NewCourseService(db, q, nil, logger.Nop())
	ctx := context.Background()

	free := createUser(t, db, model.PlanFree)
	first, err := svc.Create(ctx, free, CreateCourseInput{Prompt: "uno"})
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, free.ID, first.ID))

	_, err = svc.Create(ctx, free, CreateCourseInput{Prompt: "dos"})
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden), "deleted courses still count")

	svc.now = func() time.Time { return time.Now().AddDate(0, 1, 0) }
	_, err = svc.Create(ctx, free, CreateCourseInput{Prompt: "mes siguiente"})
	assert.NoError(t, err)

	maestro := createUser(t, db, model.PlanMaestro)
	for i := 0; i < 20; i++ {
		_, err := svc.Create(ctx, maestro, CreateCourseInput{Prompt: "ilimitado"})
		require.NoError(t, err)
	}
}

func TestCancelOnlyWhileGenerating(t *testing.T) {
	db := dbtest.New(t)
	q, _ := newTestQueue(t)
	svc := NewCourseService(db, q, nil, logger.Nop())
	ctx := context.Background()
	user := createUser(t, db, model.PlanFree)

	generating := createCourse(t, db, user.ID, courseShape{status: model.StatusGeneratingModule1, chunks: []int{0, 0}})
	_, err := q.Enqueue(ctx, generating.ID, model.ActionGenerateModule, WithModule(1))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, user.ID, generating.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, cancelled.Status)

	jobs, err := q.CourseJobs(ctx, generating.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, jobs[0].Status)

	ready := createCourse(t, db, user.ID, courseShape{status: model.StatusReady, chunks: []int{1}})
	_, err = svc.Cancel(ctx, user.ID, ready.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	other := createUser(t, db, model.PlanFree)
	_, err = svc.Cancel(ctx, other.ID, ready.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestTrashLifecycle(t *testing.T) {
	db := dbtest.New(t)
	q, _ := newTestQueue(t)
	store := contentstore.NewMemoryStore()
	svc := NewCourseService(db, q, store, logger.Nop())
	progress := NewProgressService(db)
	ctx := context.Background()

	user := createUser(t, db, model.PlanMaestro)
	course := createCourse(t, db, user.ID, courseShape{status: model.StatusComplete, chunks: []int{1, 1}, withQuiz: true, public: true})
	require.NoError(t, store.Put(ctx, contentstore.SourceKey(course.ID), []byte("x"), "text/plain"))
	_, err := progress.Start(ctx, user.ID, course.ID)
	require.NoError(t, err)
	_, err = progress.SubmitQuizAttempt(ctx, user.ID, course.Modules[0].ID, []int{0, 1})
	require.NoError(t, err)

	err = svc.PermanentDelete(ctx, user.ID, course.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation), "must be trashed first")

	_, err = svc.Restore(ctx, user.ID, course.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound), "not in trash")

	require.NoError(t, svc.SoftDelete(ctx, user.ID, course.ID))
	trash, err := svc.Trash(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.False(t, trash[0].IsPublic)

	list, total, err := svc.List(ctx, user.ID, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	_, err = progress.GetProgress(ctx, user.ID, course.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	restored, err := svc.Restore(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.False(t, restored.DeletedAt.Valid)
	_, total, err = svc.List(ctx, user.ID, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	require.NoError(t, svc.SoftDelete(ctx, user.ID, course.ID))
	require.NoError(t, svc.PermanentDelete(ctx, user.ID, course.ID))

	for _, table := range []interface{}{
		&model.Module{}, &model.Chunk{}, &model.Quiz{}, &model.QuizQuestion{},
		&model.UserProgress{}, &model.QuizAttempt{}, &model.CompletedModule{},
	} {
		var n int64
		require.NoError(t, db.Model(table).Count(&n).Error)
		assert.Zero(t, n, "%T", table)
	}
	var n int64
	require.NoError(t, db.Unscoped().Model(&model.Course{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Zero(t, store.Len())
}

func TestGetCourseIncludesContent(t *testing.T) {
	db := dbtest.New(t)
	q, _ := newTestQueue(t)
	svc := NewCourseService(db, q, nil, logger.Nop())
	owner := createUser(t, db, model.PlanFree)
	course := createCourse(t, db, owner.ID, courseShape{status: model.StatusComplete, chunks: []int{2, 1}, withQuiz: true})

	got, err := svc.Get(context.Background(), owner.ID, course.ID)
	require.NoError(t, err)
	require.Len(t, got.Modules, 2)
	assert.Len(t, got.Modules[0].Chunks, 2)
	require.NotNil(t, got.Modules[1].Quiz)
	assert.Len(t, got.Modules[1].Quiz.Questions, 2)
}

func TestRestoreRequeuesModuleOneAfterMetadata(t *testing.T) {
	db := dbtest.New(t)
	q, _ := newTestQueue(t)
	svc := NewCourseService(db, q, nil, logger.Nop())
	ctx := context.Background()
	user := createUser(t, db, model.PlanFree)

	course := createCourse(t, db, user.ID, courseShape{status: model.StatusMetadataReady, chunks: []int{0, 0}})
	require.NoError(t, svc.SoftDelete(ctx, user.ID, course.ID))

	restored, err := svc.Restore(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusGeneratingModule1, restored.Status)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, course.ID, job.CourseID)
	assert.Equal(t, model.ActionGenerateModule, job.Action)
	assert.Equal(t, 1, job.ModuleNumber)
	assert.Equal(t, PriorityHigh, job.Priority)

	complete := createCourse(t, db, user.ID, courseShape{status: model.StatusComplete, chunks: []int{1}})
	require.NoError(t, svc.SoftDelete(ctx, user.ID, complete.ID))
	_, err = svc.Restore(ctx, user.ID, complete.ID)
	require.NoError(t, err)
	jobs, err := q.CourseJobs(ctx, complete.ID)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
