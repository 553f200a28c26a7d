package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"collab-backend/internal/auth"
	"collab-backend/internal/config"
	"collab-backend/internal/handler"
	"collab-backend/internal/presence"
	"collab-backend/internal/room"
	"collab-backend/internal/service"
)

// Server Fiber 서버 래퍼
type Server struct {
	app                 *fiber.App
	cfg                 *config.Config
	db                  *gorm.DB
	registry            *room.Registry
	authHandler         *handler.AuthHandler
	projectHandler      *handler.ProjectHandler
	commentHandler      *handler.CommentHandler
	shareHandler        *handler.ShareHandler
	notificationHandler *handler.NotificationHandler
	healthHandler       *handler.HealthHandler
	collabWSHandler     *handler.CollabWSHandler
	jwtManager          *auth.JWTManager
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, db *gorm.DB, pres *presence.Manager) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Collab Backend",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             10 * 1024 * 1024, // 다이어그램 JSON 최대 10MB
		DisableStartupMessage: false,
	})

	// Auth 초기화
	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	googleAuth := auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID)

	registry := room.New()
	notifications := service.NewNotificationService(db)
	activities := service.NewActivityService(db)

	return &Server{
		app:                 app,
		cfg:                 cfg,
		db:                  db,
		registry:            registry,
		authHandler:         handler.NewAuthHandler(db, jwtManager, googleAuth, cfg.Auth.SecureCookie),
		projectHandler:      handler.NewProjectHandler(db),
		commentHandler:      handler.NewCommentHandler(db, registry, notifications, activities),
		shareHandler:        handler.NewShareHandler(db, notifications, activities),
		notificationHandler: handler.NewNotificationHandler(db),
		healthHandler:       handler.NewHealthHandler(db, pres),
		collabWSHandler:     handler.NewCollabWSHandler(db, registry, pres, cfg.WebSocket),
		jwtManager:          jwtManager,
	}
}

// Registry 소켓 room 레지스트리 반환 (테스트/운영 툴용)
func (s *Server) Registry() *room.Registry {
	return s.registry
}

// App Fiber 앱 반환 (테스트용)
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Asia/Seoul",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (인증 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        10,              // 최대 10회
		Expiration: 1 * time.Minute, // 1분당
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Auth 라우트 그룹
	authGroup := s.app.Group("/auth")
	authGroup.Post("/google", authLimiter, s.authHandler.GoogleLogin)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", auth.AuthMiddleware(s.jwtManager), s.authHandler.Logout)
	authGroup.Get("/me", auth.AuthMiddleware(s.jwtManager), s.authHandler.GetMe)

	// Project 라우트 그룹 (인증 필요)
	projectGroup := s.app.Group("/api/projects", auth.AuthMiddleware(s.jwtManager))
	projectGroup.Get("", s.projectHandler.GetMyProjects)
	projectGroup.Post("", s.projectHandler.CreateProject)
	projectGroup.Get("/:id", s.projectHandler.GetProject)
	projectGroup.Put("/:id", s.projectHandler.UpdateProject)
	projectGroup.Delete("/:id", s.projectHandler.DeleteProject)

	// Comment 라우트 (프로젝트 하위)
	projectGroup.Get("/:id/comments", s.commentHandler.GetComments)
	projectGroup.Post("/:id/comments", s.commentHandler.CreateComment)
	projectGroup.Delete("/:id/comments/:commentId", s.commentHandler.DeleteComment)

	// Share 라우트 (프로젝트 하위, 소유자 전용)
	projectGroup.Get("/:id/shares", s.shareHandler.GetShares)
	projectGroup.Post("/:id/shares", s.shareHandler.ShareProject)
	projectGroup.Patch("/:id/shares/:shareId", s.shareHandler.UpdateSharePermission)
	projectGroup.Delete("/:id/shares/:shareId", s.shareHandler.RemoveShare)

	// Notification 라우트 그룹 (인증 필요)
	notificationGroup := s.app.Group("/api/notifications", auth.AuthMiddleware(s.jwtManager))
	notificationGroup.Get("", s.notificationHandler.GetNotifications)
	notificationGroup.Post("/:id/read", s.notificationHandler.MarkRead)
	notificationGroup.Post("/read-all", s.notificationHandler.MarkAllRead)
	notificationGroup.Delete("/:id", s.notificationHandler.DeleteNotification)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 협업 엔드포인트
	s.app.Get("/ws/collab", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// 쿠키 또는 query 파라미터에서 JWT 토큰 추출
		accessToken := c.Cookies("access_token")
		if accessToken == "" {
			accessToken = c.Query("token")
		}
		if accessToken == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		claims, err := s.jwtManager.ValidateAccessToken(accessToken)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		// 프로필 정보 조회 (user-joined 브로드캐스트에 사용)
		var user struct {
			Name  string
			Image *string
		}
		s.db.Table("users").Select("name, image").Where("id = ?", claims.UserID).Scan(&user)

		image := ""
		if user.Image != nil {
			image = *user.Image
		}

		c.Locals("userId", claims.UserID)
		c.Locals("name", user.Name)
		c.Locals("image", image)

		return c.Next()
	}, websocket.New(s.collabWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Collab backend starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/collab", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
