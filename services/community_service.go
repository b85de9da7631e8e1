package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SortRecent = "recent"
	SortRating = "rating"
)

// CommunityQuery filters the public course listing.
type CommunityQuery struct {
	Search string
	Sort   string
	ListQuery
}

// CommunityCourse is a published course with its author's display name.
type CommunityCourse struct {
	model.Course
	AuthorName string `json:"authorName"`
}

// RatingResult is the stored rating plus the refreshed course aggregates.
type RatingResult struct {
	Rating        model.CourseRating `json:"rating"`
	AverageRating float64            `json:"averageRating"`
	TotalRatings  int                `json:"totalRatings"`
}

// CommunityService publishes courses to the community and rates them.
type CommunityService struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewCommunityService(db *gorm.DB, log *logger.Logger) *CommunityService {
	return &CommunityService{db: db, log: log, now: time.Now}
}

// RoundRating rounds an average to one decimal.
func RoundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

// List returns public, non-deleted courses.
func (s *CommunityService) List(ctx context.Context, q CommunityQuery) ([]CommunityCourse, int64, error) {
	q.ListQuery = q.ListQuery.normalize()
	base := s.db.WithContext(ctx).Model(&model.Course{}).Where("is_public = ?", true)
	if term := strings.TrimSpace(q.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		base = base.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	base = base.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal("failed to count community courses", err)
	}

	order := "published_at DESC, id DESC"
	if q.Sort == SortRating {
		order = "average_rating DESC, total_ratings DESC, published_at DESC, id DESC"
	}
	var courses []model.Course
	if err := base.Preload("User").Order(order).Limit(q.Limit).Offset(q.offset()).Find(&courses).Error; err != nil {
		return nil, 0, apperror.Internal("failed to list community courses", err)
	}

	out := make([]CommunityCourse, len(courses))
	for i, c := range courses {
		out[i] = CommunityCourse{Course: c, AuthorName: c.User.Name}
	}
	return out, total, nil
}

// Publish makes a completed course public. Only MAESTRO owners may publish.
func (s *CommunityService) Publish(ctx context.Context, user *model.User, courseID uint) (*model.Course, error) {
	if !PlanDetails(user.Plan).CanPublish {
		return nil, apperror.Forbidden("publishing requires the MAESTRO plan")
	}
	course, err := findOwnedCourse(ctx, s.db, user.ID, courseID)
	if err != nil {
		return nil, err
	}
	if course.Status != model.StatusComplete {
		return nil, apperror.Validation("only fully generated courses can be published")
	}
	if course.IsPublic {
		return course, nil
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(course).Updates(map[string]interface{}{
		"is_public":    true,
		"published_at": now,
	}).Error; err != nil {
		return nil, apperror.Internal("failed to publish course", err)
	}
	course.IsPublic = true
	course.PublishedAt = &now
	return course, nil
}

// Unpublish takes one of the caller's courses out of the community.
func (s *CommunityService) Unpublish(ctx context.Context, user *model.User, courseID uint) (*model.Course, error) {
	if !PlanDetails(user.Plan).CanPublish {
		return nil, apperror.Forbidden("publishing requires the MAESTRO plan")
	}
	course, err := findOwnedCourse(ctx, s.db, user.ID, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.hide(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

// Remove lets the owner or an admin take a course out of the community.
func (s *CommunityService) Remove(ctx context.Context, user *model.User, courseID uint) error {
	var course model.Course
	err := s.db.WithContext(ctx).First(&course, courseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("course not found")
	}
	if err != nil {
		return apperror.Internal("failed to load course", err)
	}
	if course.UserID != user.ID && !user.IsAdmin() {
		return apperror.Forbidden("only the owner or an admin can remove this course")
	}
	if err := s.hide(ctx, &course); err != nil {
		return err
	}
	s.log.Info("course removed from community", "course_id", courseID, "by", user.ID)
	return nil
}

func (s *CommunityService) hide(ctx context.Context, course *model.Course) error {
	if err := s.db.WithContext(ctx).Model(course).Updates(map[string]interface{}{
		"is_public":    false,
		"published_at": nil,
	}).Error; err != nil {
		return apperror.Internal("failed to unpublish course", err)
	}
	course.IsPublic = false
	course.PublishedAt = nil
	return nil
}

// Rate upserts the caller's rating of a community course and recomputes the
// course average and count in the same transaction.
func (s *CommunityService) Rate(ctx context.Context, user *model.User, courseID uint, rating int, comment string) (*RatingResult, error) {
	if !PlanDetails(user.Plan).CanRate {
		return nil, apperror.Forbidden("rating requires the EXPERTO or MAESTRO plan")
	}
	if rating < 1 || rating > 5 {
		return nil, apperror.Validation("rating must be between 1 and 5")
	}

	result := &RatingResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course model.Course
		err := tx.First(&course, courseID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("course not found")
		}
		if err != nil {
			return err
		}
		if course.UserID == user.ID {
			return apperror.Validation("no puedes calificar tu propio curso")
		}
		if !course.IsPublic {
			return apperror.NotFound("course not found")
		}

		row := model.CourseRating{UserID: user.ID, CourseID: courseID, Rating: rating, Comment: comment}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND course_id = ?", user.ID, courseID).First(&result.Rating).Error; err != nil {
			return err
		}

		var agg struct {
			Total   int
			Average float64
		}
		if err := tx.Model(&model.CourseRating{}).
			Select("COUNT(*) AS total, COALESCE(AVG(rating), 0) AS average").
			Where("course_id = ?", courseID).
			Scan(&agg).Error; err != nil {
			return err
		}
		result.TotalRatings = agg.Total
		result.AverageRating = RoundRating(agg.Average)

		return tx.Model(&course).Updates(map[string]interface{}{
			"average_rating": result.AverageRating,
			"total_ratings":  result.TotalRatings,
		}).Error
	})
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.Internal("failed to save rating", err)
	}
	return result, nil
}
