package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"anoa.com/gamiledger/internal/config"
	"anoa.com/gamiledger/internal/middleware"
	"anoa.com/gamiledger/internal/scheduler"
	"anoa.com/gamiledger/pkg/clock"
	"anoa.com/gamiledger/pkg/database"
	"anoa.com/gamiledger/pkg/logger"
	"anoa.com/gamiledger/pkg/marker"
	"anoa.com/gamiledger/pkg/response"

	goalHttp "anoa.com/gamiledger/internal/modules/goal/delivery/http"
	goalRepo "anoa.com/gamiledger/internal/modules/goal/repository"
	goalService "anoa.com/gamiledger/internal/modules/goal/service"

	leaderboardHttp "anoa.com/gamiledger/internal/modules/leaderboard/delivery/http"
	leaderboardRepo "anoa.com/gamiledger/internal/modules/leaderboard/repository"
	leaderboardService "anoa.com/gamiledger/internal/modules/leaderboard/service"

	ledgerHttp "anoa.com/gamiledger/internal/modules/ledger/delivery/http"
	ledgerRepo "anoa.com/gamiledger/internal/modules/ledger/repository"
	ledgerService "anoa.com/gamiledger/internal/modules/ledger/service"

	notiHttp "anoa.com/gamiledger/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/gamiledger/internal/modules/notification/repository"
	notifService "anoa.com/gamiledger/internal/modules/notification/service"

	questHttp "anoa.com/gamiledger/internal/modules/quest/delivery/http"
	questRepo "anoa.com/gamiledger/internal/modules/quest/repository"
	questService "anoa.com/gamiledger/internal/modules/quest/service"

	searchService "anoa.com/gamiledger/internal/modules/search/service"

	userRepo "anoa.com/gamiledger/internal/modules/user/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Dependencies are the process-wide handles the server is built from.
// Redis and Index may be nil.
type Dependencies struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Index  searchService.QuestIndex
	Clock  clock.Clock
	Log    *logger.Logger
}

type Server struct {
	engine    *gin.Engine
	http      *http.Server
	scheduler *scheduler.Scheduler
	catalog   questService.CatalogService
	board     leaderboardService.LeaderboardService
	log       *logger.Logger
}

func NewServer(deps Dependencies) (*Server, error) {
	cfg := deps.Config
	db := deps.DB
	redisClient := deps.Redis
	log := deps.Log
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	loc := cfg.Location
	response.SetLogger(log)

	tx := database.NewTxRunner(db)
	markers := marker.New(redisClient)
	users := userRepo.NewUserRepository(db)

	// Notification Module
	notificationRepository := notifRepo.NewNotificationRepository(db)
	notificationSvc := notifService.NewNotificationService(notificationRepository, redisClient, log)
	notificationHandler := notiHttp.NewNotificationHandler(notificationSvc, redisClient, cfg.AllowedOrigins, log)

	// Ledger Module
	ledgerSvc := ledgerService.NewLedger(ledgerRepo.NewLedgerRepository(db), tx, clk, loc, markers, log, ledgerService.Options{
		Timeout:          cfg.StoreTimeout,
		DailyLoginPoints: cfg.DailyLoginPoints,
	})
	ledgerHandler := ledgerHttp.NewLedgerHandler(ledgerSvc)

	// Weekly goals
	goalSvc := goalService.NewGoalService(goalRepo.NewGoalRepository(db), users, tx, ledgerSvc, notificationSvc, clk, loc, log, goalService.Options{Timeout: cfg.StoreTimeout})
	goalHandler := goalHttp.NewGoalHandler(goalSvc)

	// Leaderboard Module
	leaderboardSvc := leaderboardService.NewLeaderboardService(leaderboardRepo.NewLeaderboardRepository(db), users, redisClient, clk, loc, log)
	leaderboardHandler := leaderboardHttp.NewLeaderboardHandler(leaderboardSvc)

	ledgerSvc.SetGoalChecker(goalSvc)
	ledgerSvc.SetNotifier(notificationSvc)
	ledgerSvc.SetScoreBoard(leaderboardSvc)

	// Quest Module
	quests := questRepo.NewQuestRepository(db)
	categories := questRepo.NewCategoryRepository(db)
	progress := questRepo.NewProgressRepository(db)
	questOpts := questService.Options{Timeout: cfg.StoreTimeout}
	catalogSvc := questService.NewCatalogService(quests, categories, progress, deps.Index, log)
	completionSvc := questService.NewCompletionService(quests, progress, tx, ledgerSvc, goalSvc, notificationSvc, clk, loc, log, questOpts)
	trackerSvc := questService.NewTrackerService(quests, progress, tx, completionSvc, clk, loc, log, questOpts)
	questHandler := questHttp.NewQuestHandler(catalogSvc, trackerSvc, completionSvc)

	// Scheduler
	sched := scheduler.NewScheduler(markers, log, scheduler.Options{
		LockTTL:  cfg.SchedulerLockTTL,
		Location: loc,
	})
	jobs := scheduler.LedgerJobs(scheduler.Schedules{
		WeeklyGoals: cfg.CronWeeklyGoals,
		StreakBonus: cfg.CronStreakBonus,
		QuestExpiry: cfg.CronQuestExpiry,
	}, goalSvc, completionSvc, leaderboardSvc, catalogSvc, log)
	for _, job := range jobs {
		if err := sched.RegisterJob(job); err != nil {
			return nil, err
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/notifications/ws", "/healthz"},
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authMiddleware := middleware.NewAuthMiddleware(users, cfg.JWTSecret)

	api := router.Group("/api")

	// Protected routes (apply auth middleware explicitly)
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		// Collaborator and admin routes
		admin := protected.Group("")
		admin.Use(authMiddleware.RequireAdmin())
		{
			admin.POST("/ledger/awards", ledgerHandler.Award)
			admin.POST("/ledger/quiz-results", ledgerHandler.QuizResult)
			admin.POST("/quests/actions", questHandler.TrackAction)
			admin.POST("/admin/quests/progress/:id/complete", questHandler.AdminComplete)
			admin.POST("/admin/quests/reindex", questHandler.Reindex)
		}

		// Ledger routes
		protected.GET("/ledger/me", ledgerHandler.GetMine)
		protected.POST("/ledger/daily-login", ledgerHandler.DailyLogin)

		// Quest routes
		protected.GET("/quests", questHandler.ListQuests)
		protected.GET("/quests/search", questHandler.Search)
		protected.GET("/quests/categories", questHandler.ListCategories)
		protected.GET("/quests/me", questHandler.ListMine)
		protected.POST("/quests/:quest_id/start", questHandler.StartQuest)
		protected.GET("/quests/progress/:id/can-complete", questHandler.CanComplete)
		protected.POST("/quests/progress/:id/complete", questHandler.Complete)

		// Goal routes
		protected.GET("/goals/me", goalHandler.GetMine)

		// Leaderboard routes
		protected.GET("/leaderboard", leaderboardHandler.GetLeaderboard)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.GET("/notifications/ws", notificationHandler.HandleWebSocket)
	}

	return &Server{
		engine:    router,
		scheduler: sched,
		catalog:   catalogSvc,
		board:     leaderboardSvc,
		log:       log.With("component", "server"),
	}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Scheduler exposes the job runner so jobs can be triggered on demand.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Warmup fills the search index and the leaderboard cache. Failures are
// logged; both fall back to the database.
func (s *Server) Warmup(ctx context.Context) {
	for _, name := range []string{scheduler.JobSearchReindex, scheduler.JobLeaderboard} {
		if err := s.scheduler.RunByName(ctx, name); err != nil {
			s.log.Warn("warmup step failed", "job", name, "error", err)
		}
	}
}

// Run starts the scheduler and serves HTTP until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.scheduler.Start()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.scheduler.Stop(ctx)
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func setupCORS(router *gin.Engine, origins []string) {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
