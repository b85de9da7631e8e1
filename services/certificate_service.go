package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CertificateService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCertificateService(db *gorm.DB) *CertificateService {
	return &CertificateService{db: db, now: time.Now}
}

// CertificateNumber builds a human readable number such as CUR-20260301-1A2B3C4D.
func CertificateNumber(issuedAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("CUR-%s-%s", issuedAt.UTC().Format("20060102"), suffix)
}

func (s *CertificateService) find(ctx context.Context, userID, courseID uint) (*model.Certificate, error) {
	var cert model.Certificate
	err := s.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// Generate issues the certificate of a finalized course. Issuing twice, even
// concurrently, returns the same certificate.
func (s *CertificateService) Generate(ctx context.Context, user *model.User, courseID uint) (*model.Certificate, error) {
	existing, err := s.find(ctx, user.ID, courseID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Internal("failed to load certificate", err)
	}

	course, err := findVisibleCourse(ctx, s.db, user.ID, courseID)
	if err != nil {
		return nil, err
	}
	var progress model.UserProgress
	err = s.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", user.ID, courseID).First(&progress).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Internal("failed to load progress", err)
	}
	if err != nil || progress.CompletedAt == nil {
		return nil, apperror.Validation("course not completed")
	}

	now := s.now()
	cert := &model.Certificate{
		UserID:            user.ID,
		CourseID:          courseID,
		CertificateNumber: CertificateNumber(now),
		UserName:          user.Name,
		CourseTitle:       course.Title,
		CompletedAt:       *progress.CompletedAt,
		IssuedAt:          now,
	}
	if err := s.db.WithContext(ctx).Create(cert).Error; err != nil {
		if database.IsUniqueViolation(err) {
			if existing, findErr := s.find(ctx, user.ID, courseID); findErr == nil {
				return existing, nil
			}
		}
		return nil, apperror.Internal("failed to issue certificate", err)
	}
	return cert, nil
}

// Verify returns a certificate by its public id.
func (s *CertificateService) Verify(ctx context.Context, id string) (*model.Certificate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.NotFound("certificate not found")
	}
	var cert model.Certificate
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("certificate not found")
	}
	if err != nil {
		return nil, apperror.Internal("failed to load certificate", err)
	}
	return &cert, nil
}

// List returns the caller's certificates, newest first.
func (s *CertificateService) List(ctx context.Context, userID uint) ([]model.Certificate, error) {
	certs := []model.Certificate{}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("issued_at DESC").Find(&certs).Error; err != nil {
		return nil, apperror.Internal("failed to list certificates", err)
	}
	return certs, nil
}
