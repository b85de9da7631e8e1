package database_test

import (
	"testing"

	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/database/dbtest"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSeedAllIsIdempotent(t *testing.T) {
	db := dbtest.New(t)
	seeder := database.NewSeeder(db, logger.Nop())

	require.NoError(t, seeder.SeedAll("admin@cursia.co", "administrador1"))
	require.NoError(t, seeder.SeedAll("admin@cursia.co", "administrador1"))

	var users, courses, chunks int64
	db.Model(&model.User{}).Count(&users)
	db.Model(&model.Course{}).Count(&courses)
	db.Model(&model.Chunk{}).Count(&chunks)

	assert.EqualValues(t, 1, users)
	assert.EqualValues(t, 1, courses)
	assert.EqualValues(t, 3, chunks)

	var course model.Course
	require.NoError(t, db.
		Preload("Modules", func(tx *gorm.DB) *gorm.DB { return tx.Order("module_order ASC") }).
		Preload("Modules.Quiz.Questions").
		First(&course).Error)
	assert.Equal(t, model.StatusComplete, course.Status)
	require.NotNil(t, course.Modules[0].Quiz)
	assert.Equal(t, []string{"go build", "go mod init", "go run", "go vet"}, []string(course.Modules[0].Quiz.Questions[0].Options))
}

func TestSeedAllWithoutCredentialsSkipsAdmin(t *testing.T) {
	db := dbtest.New(t)
	require.NoError(t, database.NewSeeder(db, logger.Nop()).SeedAll("", ""))

	var users int64
	db.Model(&model.User{}).Count(&users)
	assert.Zero(t, users)
}
