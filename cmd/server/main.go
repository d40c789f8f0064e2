package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"tutorlink_app_echo/internal/handlers"
	"tutorlink_app_echo/internal/middleware"
	"tutorlink_app_echo/internal/services"
)

// CustomValidator adapts go-playground/validator to Echo's Validator interface
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Firebase
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}

	authClient, err := services.InitFirebase(credPath)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Auth features will not work until valid credentials are provided")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize Redis (optional; caching and realtime fan-out degrade to no-ops)
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis initialization failed: %v", err)
			cache = nil
		}
	} else {
		log.Println("Warning: REDIS_URL not set, cache and realtime events disabled")
	}
	if cache != nil {
		defer cache.Close()
	}

	notifier := services.NewNotifier(cache)
	midtransClient := services.NewMidtransService()

	// Services
	routineSvc := services.NewRoutineService(db, cache, notifier)
	sessionSvc := services.NewSessionService(db, routineSvc, notifier)
	partialWeekly := os.Getenv("PROPOSAL_PARTIAL_WEEKLY") != "false"
	proposalSvc := services.NewProposalService(db, routineSvc, sessionSvc, notifier, partialWeekly)
	inviteSvc := services.NewInviteService(db, routineSvc, notifier)
	paymentSvc := services.NewPaymentService(db, midtransClient)

	// Create Echo instance
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	e.HTTPErrorHandler = middleware.CustomErrorHandler

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authClient)
	userHandler := handlers.NewUserHandler(db)
	prefHandler := handlers.NewUserPreferenceHandler(db)
	routineHandler := handlers.NewRoutineHandler(routineSvc)
	sessionHandler := handlers.NewSessionHandler(sessionSvc)
	proposalHandler := handlers.NewProposalHandler(proposalSvc)
	inviteHandler := handlers.NewInviteHandler(db, inviteSvc, paymentSvc, midtransClient, cache)

	// Public routes: auth, the shareable invite page, gateway webhook
	e.POST("/auth/login", authHandler.HandleLogin)
	e.POST("/auth/logout", authHandler.HandleLogout)
	e.GET("/p/invites/:token", inviteHandler.ShowPublicInvite)
	e.POST("/p/invites/:token/checkout", inviteHandler.InitiateCheckout)
	e.POST("/webhooks/midtrans", inviteHandler.MidtransWebhook)

	// Protected routes
	api := e.Group("/api")
	api.Use(middleware.RequireAuth(authClient, db))

	api.GET("/me", userHandler.Me)
	api.GET("/users", userHandler.ListUsers)
	api.POST("/users", userHandler.StoreUser)
	api.GET("/users/:id", userHandler.GetUser)
	api.PUT("/users/:id", userHandler.UpdateUser)
	api.DELETE("/users/:id", userHandler.DeleteUser)
	api.GET("/users/:id/preference", prefHandler.GetUserPreference)
	api.PUT("/users/:id/preference", prefHandler.UpdateUserPreference)

	api.POST("/routines", routineHandler.CreateRoutine)
	api.GET("/routines", routineHandler.ListMyRoutines)
	api.GET("/routines/:id", routineHandler.GetRoutine)
	api.POST("/routines/:id/respond", routineHandler.RespondRoutine)
	api.POST("/routines/:id/status", routineHandler.SetRoutineStatus)
	api.GET("/routines/:id/proposals", proposalHandler.ListRoutineProposals)
	api.GET("/groups/:teacher_id/:course_id", routineHandler.GetGroup)
	api.GET("/commitments", routineHandler.GetMyCommitments)

	api.POST("/sessions", sessionHandler.CreateSession)
	api.GET("/sessions", sessionHandler.ListMySessions)
	api.GET("/sessions/:id", sessionHandler.GetSession)
	api.POST("/sessions/:id/respond", sessionHandler.RespondSession)
	api.POST("/sessions/:id/cancel", sessionHandler.CancelSession)
	api.POST("/sessions/:id/complete", sessionHandler.CompleteSession)

	api.POST("/proposals/oneoff", proposalHandler.CreateOneoffProposal)
	api.POST("/proposals/weekly", proposalHandler.CreateWeeklyProposal)
	api.GET("/proposals/:id", proposalHandler.GetProposal)
	api.POST("/proposals/:id/respond", proposalHandler.RespondProposal)

	api.POST("/invites", inviteHandler.CreateInvite)
	api.GET("/invites", inviteHandler.ListMyInvites)
	api.GET("/invites/:id", inviteHandler.GetInvite)
	api.POST("/invites/:id/decline", inviteHandler.DeclineInvite)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
