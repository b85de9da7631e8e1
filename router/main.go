package router

import (
	"time"

	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/handlers"
	admin_handlers "github.com/NicoHurtado/cursia-sub002/handlers/admin"
	auth_handlers "github.com/NicoHurtado/cursia-sub002/handlers/auth"
	certificate_handlers "github.com/NicoHurtado/cursia-sub002/handlers/certificate"
	community_handlers "github.com/NicoHurtado/cursia-sub002/handlers/community"
	course_handlers "github.com/NicoHurtado/cursia-sub002/handlers/course"
	cron_handlers "github.com/NicoHurtado/cursia-sub002/handlers/cron"
	progress_handlers "github.com/NicoHurtado/cursia-sub002/handlers/progress"
	subscription_handlers "github.com/NicoHurtado/cursia-sub002/handlers/subscription"
	webhook_handlers "github.com/NicoHurtado/cursia-sub002/handlers/webhook"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/utils"
	"github.com/NicoHurtado/cursia-sub002/utils/auth"
	"github.com/NicoHurtado/cursia-sub002/utils/cache"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/middleware"
	"github.com/gofiber/fiber/v2"
)

// Deps is everything the routes need. It is built once by the app container.
type Deps struct {
	Store        database.Storage
	Log          *logger.Logger
	JWT          *auth.JWTManager
	Redis        *cache.RedisCache // nil disables brute force protection
	Integrations handlers.Integrations

	AllowedOrigins    string
	RateLimitRequests int
	CronSecret        string

	Courses       *services.CourseService
	Status        *services.CourseStatusService
	Progress      *services.ProgressService
	Community     *services.CommunityService
	Certificates  *services.CertificateService
	Subscriptions *services.SubscriptionService
	Reconciler    *services.SubscriptionReconciler
}

func SetupRoutes(app *fiber.App, d *Deps) {
	db := d.Store.GetDB()
	log := d.Log

	var bruteForceProtection *middleware.BruteForceProtection
	if d.Redis != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(d.Redis)
	}
	authMiddleware := middleware.NewAuthMiddleware(d.JWT, db)

	authHandler := auth_handlers.NewAuthHandler(db, d.JWT, bruteForceProtection, log)
	healthHandler := handlers.NewHealthHandler(d.Store, d.Integrations, log)
	courseHandler := course_handlers.NewCourseHandler(d.Courses, d.Status, d.Progress, log)
	progressHandler := progress_handlers.NewProgressHandler(d.Progress, log)
	communityHandler := community_handlers.NewCommunityHandler(d.Community, log)
	certificateHandler := certificate_handlers.NewCertificateHandler(d.Certificates, log)
	subscriptionHandler := subscription_handlers.NewSubscriptionHandler(d.Subscriptions, log)
	wompiHandler := webhook_handlers.NewWompiHandler(d.Reconciler, log)
	cronHandler := cron_handlers.NewCronHandler(d.Subscriptions, log)

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    d.AllowedOrigins,
		RateLimitRequests: d.RateLimitRequests,
		RateLimitWindow:   1 * time.Minute,
	}, log)

	api := app.Group("/api")

	api.Get("/health", healthHandler.CheckHealth)

	// Auth
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/logout-all", authMiddleware.Required(), authHandler.LogoutAll)
	authGroup.Post("/change-password", authMiddleware.Required(), authHandler.ChangePassword)
	authGroup.Get("/me", authMiddleware.Required(), authHandler.GetProfile)
	authGroup.Put("/me", authMiddleware.Required(), authHandler.UpdateProfile)

	// Courses (all owner scoped)
	courses := api.Group("/courses", authMiddleware.Required())
	courses.Post("/", courseHandler.CreateCourse)
	courses.Get("/", courseHandler.ListCourses)
	courses.Get("/trash", courseHandler.ListTrash)
	courses.Get("/:id", courseHandler.GetCourse())
	courses.Get("/:id/status", courseHandler.CourseStatus())
	courses.Get("/:id/generation-status", courseHandler.GenerationStatus())
	courses.Post("/:id/cancel", courseHandler.CancelCourse())
	courses.Delete("/:id/delete", courseHandler.DeleteCourse())
	courses.Post("/:id/restore", courseHandler.RestoreCourse())
	courses.Delete("/:id/permanent-delete", courseHandler.PermanentDeleteCourse())
	courses.Post("/:id/start", courseHandler.StartCourse())
	courses.Post("/:id/finalize", courseHandler.FinalizeCourse())

	// Progress and quizzes
	progress := api.Group("/progress", authMiddleware.Required())
	progress.Get("/:courseId", progressHandler.GetProgress)
	progress.Post("/:courseId", progressHandler.UpdateProgress)

	quizAttempts := api.Group("/quiz-attempts", authMiddleware.Required())
	quizAttempts.Post("/", progressHandler.SubmitQuiz)
	quizAttempts.Get("/:moduleId", progressHandler.QuizAttempts)

	// Community
	community := api.Group("/community")
	community.Get("/", communityHandler.ListCourses)
	community.Post("/publish", authMiddleware.Required(),
		middleware.RequirePlan("publishing requires the MAESTRO plan", model.PlanMaestro), communityHandler.Publish)
	community.Post("/unpublish", authMiddleware.Required(),
		middleware.RequirePlan("publishing requires the MAESTRO plan", model.PlanMaestro), communityHandler.Unpublish)
	community.Post("/rate", authMiddleware.Required(),
		middleware.RequirePlan("rating requires the EXPERTO or MAESTRO plan", model.PlanExperto, model.PlanMaestro), communityHandler.Rate)
	community.Delete("/:courseId", authMiddleware.Required(), communityHandler.Remove)

	// Certificates
	certificates := api.Group("/certificates")
	certificates.Get("/:id/verify", certificateHandler.Verify)
	certificates.Get("/", authMiddleware.Required(), certificateHandler.List)
	certificates.Post("/generate", authMiddleware.Required(), certificateHandler.Generate)

	// Subscriptions
	subscriptions := api.Group("/subscriptions")
	subscriptions.Get("/plans", subscriptionHandler.Plans)
	subscriptions.Post("/checkout", authMiddleware.Required(), subscriptionHandler.Checkout)
	subscriptions.Get("/me", authMiddleware.Required(), subscriptionHandler.Me)
	subscriptions.Post("/cancel", authMiddleware.Required(), subscriptionHandler.Cancel)

	// Provider callbacks and scheduler triggers
	api.Post("/webhooks/wompi", wompiHandler.Receive)
	api.Get("/cron/expire-subscriptions", middleware.CronSecret(d.CronSecret), cronHandler.ExpireSubscriptions)

	// Admin
	admin := api.Group("/admin", authMiddleware.RequireAdmin())
	admin.Get("/stats", utils.MakeHTTPHandleFunc(admin_handlers.GetStats, d.Store))
	admin.Get("/users", utils.MakeHTTPHandleFunc(admin_handlers.ListUsers, d.Store))
	admin.Patch("/users/:id/plan", middleware.AdminAuditLog(db, log, "user_plan_update", "users"),
		utils.MakeHTTPHandleFunc(admin_handlers.UpdateUserPlan, d.Store))
	admin.Get("/audit-logs", utils.MakeHTTPHandleFunc(admin_handlers.ListAuditLogs, d.Store))
	admin.Get("/audit-logs/:id", utils.MakeHTTPHandleFunc(admin_handlers.GetAuditLog, d.Store))
}
