package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/NicoHurtado/cursia-sub002/database/dbtest"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateNumber(t *testing.T) {
	n := CertificateNumber(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^CUR-20260301-[0-9A-F]{8}$`), n)
}

func TestGenerateCertificate(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	svc := NewCertificateService(db)
	progress := NewProgressService(db)

	user := createUser(t, db, model.PlanFree)
	course := createCourse(t, db, user.ID, courseShape{status: model.StatusComplete, chunks: []int{1}})
	_, err := progress.Start(ctx, user.ID, course.ID)
	require.NoError(t, err)

	_, err = svc.Generate(ctx, user, course.ID)
	require.Error(t, err)
	assert.Equal(t, "course not completed", apperror.From(err).Message)

	for _, id := range courseChunkIDs(t, db, course.ID) {
		_, err := progress.CompleteChunk(ctx, user.ID, course.ID, id)
		require.NoError(t, err)
	}
	_, err = progress.Finalize(ctx, user.ID, course.ID)
	require.NoError(t, err)

	cert, err := svc.Generate(ctx, user, course.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Name, cert.UserName)
	assert.Equal(t, course.Title, cert.CourseTitle)

	again, err := svc.Generate(ctx, user, course.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, again.ID)
	assert.Equal(t, cert.CertificateNumber, again.CertificateNumber)

	verified, err := svc.Verify(ctx, cert.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.CertificateNumber, verified.CertificateNumber)

	list, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestVerifyUnknownCertificate(t *testing.T) {
	svc := NewCertificateService(dbtest.New(t))

	_, err := svc.Verify(context.Background(), "not-a-uuid")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
	_, err = svc.Verify(context.Background(), "0b6f1a34-6c0e-4c52-9d6a-1f2e3d4c5b6a")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}
