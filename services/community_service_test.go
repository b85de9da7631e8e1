package services

import (
	"context"
	"testing"

	"github.com/NicoHurtado/cursia-sub002/database/dbtest"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRating(t *testing.T) {
	assert.Equal(t, 4.3, RoundRating(13.0/3.0))
	assert.Equal(t, 3.5, RoundRating(3.5))
	assert.Equal(t, 2.7, RoundRating(8.0/3.0))
}

func TestRateUpsertsAndRecomputesAverage(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	svc := NewCommunityService(db, logger.Nop())
	owner := createUser(t, db, model.PlanMaestro)
	course := createCourse(t, db, owner.ID, courseShape{status: model.StatusComplete, chunks: []int{1}, public: true})

	a := createUser(t, db, model.PlanExperto)
	b := createUser(t, db, model.PlanMaestro)
	c := createUser(t, db, model.PlanExperto)

	_, err := svc.Rate(ctx, a, course.ID, 5, "")
	require.NoError(t, err)
	_, err = svc.Rate(ctx, b, course.ID, 4, "bien")
	require.NoError(t, err)
	res, err := svc.Rate(ctx, c, course.ID, 4, "")
	require.NoError(t, err)
	assert.Equal(t, 4.3, res.AverageRating)
	assert.Equal(t, 3, res.TotalRatings)

	res, err = svc.Rate(ctx, a, course.ID, 1, "cambié de opinión")
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.AverageRating)
	assert.Equal(t, 3, res.TotalRatings)
	assert.Equal(t, 1, res.Rating.Rating)

	var stored model.Course
	require.NoError(t, db.First(&stored, course.ID).Error)
	assert.Equal(t, 3.0, stored.AverageRating)
	assert.Equal(t, 3, stored.TotalRatings)
}

func TestOwnerCannotRateOwnCourse(t *testing.T) {
	db := dbtest.New(t)
	svc := NewCommunityService(db, logger.Nop())
	owner := createUser(t, db, model.PlanMaestro)
	course := createCourse(t, db, owner.ID, courseShape{status: model.StatusComplete, chunks: []int{1}, public: true})

	_, err := svc.Rate(context.Background(), owner, course.ID, 5, "")
	require.Error(t, err)
	appErr := apperror.From(err)
	assert.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Equal(t, "no puedes calificar tu propio curso", appErr.Message)

	var n int64
	db.Model(&model.CourseRating{}).Count(&n)
	assert.Zero(t, n)
}

func TestRateRequiresPlanRangeAndPublicCourse(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	svc := NewCommunityService(db, logger.Nop())
	owner := createUser(t, db, model.PlanMaestro)
	private := createCourse(t, db, owner.ID, courseShape{status: model.StatusComplete, chunks: []int{1}})
	public := createCourse(t, db, owner.ID, courseShape{status: model.StatusComplete, chunks: []int{1}, public: true})

	_, err := svc.Rate(ctx, createUser(t, db, model.PlanAprendiz), public.ID, 5, "")
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))

	rater := createUser(t, db, model.PlanExperto)
	_, err = svc.Rate(ctx, rater, public.ID, 6, "")
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	_, err = svc.Rate(ctx, rater, private.ID, 5, "")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestPublishListAndRemove(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	svc := NewCommunityService(db, logger.Nop())

	maestro := createUser(t, db, model.PlanMaestro)
	done := createCourse(t, db, maestro.ID, courseShape{status: model.StatusComplete, chunks: []int{1}})
	pending := createCourse(t, db, maestro.ID, courseShape{status: model.StatusReady, chunks: []int{1, 0}})
	require.NoError(t, db.Model(done).Update("title", "Python para datos").Error)

	_, err := svc.Publish(ctx, createUser(t, db, model.PlanExperto), done.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
	_, err = svc.Publish(ctx, maestro, pending.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	published, err := svc.Publish(ctx, maestro, done.ID)
	require.NoError(t, err)
	assert.True(t, published.IsPublic)
	assert.NotNil(t, published.PublishedAt)

	list, total, err := svc.List(ctx, CommunityQuery{Search: "PYTHON", Sort: SortRating})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, maestro.Name, list[0].AuthorName)

	_, total, err = svc.List(ctx, CommunityQuery{Search: "rust"})
	require.NoError(t, err)
	assert.Zero(t, total)

	stranger := createUser(t, db, model.PlanMaestro)
	assert.True(t, apperror.IsKind(svc.Remove(ctx, stranger, done.ID), apperror.KindForbidden))

	admin := createUser(t, db, model.PlanFree)
	admin.Role = model.RoleAdmin
	require.NoError(t, svc.Remove(ctx, admin, done.ID))
	_, total, err = svc.List(ctx, CommunityQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
