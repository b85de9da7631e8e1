package database

import (
	"fmt"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/auth"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, log *logger.Logger) *Seeder {
	return &Seeder{db: db, log: log}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll(adminEmail, adminPassword string) error {
	s.log.Info("starting database seeding")

	admin, err := s.SeedAdminUser(adminEmail, adminPassword)
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if admin != nil {
		if err := s.SeedDemoCourse(admin.ID); err != nil {
			return fmt.Errorf("failed to seed demo course: %w", err)
		}
	}

	s.log.Info("database seeding completed")
	return nil
}

// SeedAdminUser creates the default admin user. It returns the existing admin
// when one is already present and nil when no credentials are configured.
func (s *Seeder) SeedAdminUser(email, password string) (*model.User, error) {
	var existing model.User
	err := s.db.Where("role = ?", model.RoleAdmin).First(&existing).Error
	if err == nil {
		s.log.Info("admin user already exists, skipping", "email", existing.Email)
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if email == "" || password == "" {
		s.log.Warn("ADMIN_EMAIL and ADMIN_PASSWORD not set, skipping admin user creation")
		return nil, nil
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         "Administrador",
		Role:         model.RoleAdmin,
		Plan:         model.PlanMaestro,
		Interests:    datatypes.JSONSlice[string]{},
	}
	if err := s.db.Create(admin).Error; err != nil {
		return nil, err
	}

	s.log.Info("created admin user", "email", admin.Email)
	return admin, nil
}

// SeedDemoCourse creates one fully generated, published course so the
// community and learning flows have data in development.
func (s *Seeder) SeedDemoCourse(ownerID uint) error {
	var count int64
	if err := s.db.Model(&model.Course{}).Where("user_id = ?", ownerID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		s.log.Info("demo course already exists, skipping")
		return nil
	}

	now := time.Now()
	course := model.Course{
		UserID:       ownerID,
		Prompt:       "Introducción a Go para desarrolladores backend",
		Title:        "Go para backend",
		Description:  "Fundamentos del lenguaje Go aplicados a servicios web.",
		Level:        "principiante",
		Status:       model.StatusComplete,
		TotalModules: 2,
		IsPublic:     true,
		PublishedAt:  &now,
		Modules: []model.Module{
			{
				ModuleOrder: 1,
				Title:       "Primeros pasos",
				Description: "Instalación, módulos y el primer programa.",
				Chunks: []model.Chunk{
					{ChunkOrder: 1, Title: "Instalación", Content: "Descarga Go desde go.dev e instala la versión estable."},
					{ChunkOrder: 2, Title: "Módulos", Content: "Un módulo se inicia con go mod init y agrupa paquetes."},
				},
				Quiz: &model.Quiz{
					Title: "Quiz: primeros pasos",
					Questions: []model.QuizQuestion{
						{
							QuestionOrder: 1,
							Question:      "¿Qué comando inicia un módulo?",
							Options:       datatypes.JSONSlice[string]{"go build", "go mod init", "go run", "go vet"},
							CorrectAnswer: 1,
							Explanation:   "go mod init crea el archivo go.mod.",
						},
					},
				},
			},
			{
				ModuleOrder: 2,
				Title:       "Concurrencia",
				Description: "Goroutines y canales.",
				Chunks: []model.Chunk{
					{ChunkOrder: 1, Title: "Goroutines", Content: "Una goroutine se lanza con la palabra clave go."},
				},
			},
		},
	}

	if err := s.db.Create(&course).Error; err != nil {
		return err
	}

	s.log.Info("created demo course", "course_id", course.ID)
	return nil
}
