// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/accountdelivery"
	"github.com/go-petr/pet-wallet/internal/accountrepo"
	"github.com/go-petr/pet-wallet/internal/accountservice"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/internal/transferdelivery"
	"github.com/go-petr/pet-wallet/internal/transferevents"
	"github.com/go-petr/pet-wallet/internal/transferservice"
	"github.com/go-petr/pet-wallet/internal/userdelivery"
	"github.com/go-petr/pet-wallet/internal/userrepo"
	"github.com/go-petr/pet-wallet/internal/userservice"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/go-petr/pet-wallet/pkg/moneypkg"
	"github.com/go-petr/pet-wallet/pkg/tokenpkg"
)

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB     *sql.DB
	Engine *gin.Engine
	Config configpkg.Config
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// New creates Server type with instantiated domains and routes.
//
// Completed transfers are announced through publisher; a nil publisher
// only logs them.
func New(conn *sql.DB, logger zerolog.Logger, config configpkg.Config, publisher transferservice.Publisher) (*Server, error) {
	if publisher == nil {
		publisher = transferevents.LogPublisher{}
	}

	initialBalance, err := moneypkg.Parse(config.InitialBalance)
	if err != nil || initialBalance < 0 {
		return nil, fmt.Errorf("invalid initial balance %q", config.InitialBalance)
	}

	tokenMaker, err := tokenpkg.New(config.TokenType, config.TokenSymmetricKey)
	if err != nil {
		return nil, fmt.Errorf("cannot create token maker: %w", err)
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := v.RegisterValidation("money", moneypkg.ValidMoney); err != nil {
			return nil, fmt.Errorf("cannot register money validator: %w", err)
		}
	}

	corsHandler, err := middleware.CORS(config.AllowedOrigins())
	if err != nil {
		return nil, err
	}

	userRepo := userrepo.NewRepoPGS(conn)
	accountRepo := accountrepo.NewRepoPGS(conn)

	userService := userservice.New(userRepo, initialBalance)
	accountService := accountservice.New(accountRepo)
	transferService := transferservice.New(accountRepo, publisher, transferservice.Config{
		MaxAttempts:    config.TransferMaxAttempts,
		AttemptTimeout: config.TransferAttemptTimeout,
		RetryBackoff:   config.TransferRetryBackoff,
		PublishTimeout: config.TransferPublishTimeout,
	})

	userHandler := userdelivery.NewHandler(userService, tokenMaker, config.AccessTokenDuration)
	accountHandler := accountdelivery.NewHandler(accountService)
	transferHandler := transferdelivery.NewHandler(transferService)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger), corsHandler)

	engine.GET("/health", func(gctx *gin.Context) {
		gctx.Status(http.StatusOK)
	})

	engine.POST("/users", userHandler.Create)
	engine.POST("/users/login", userHandler.Login)
	engine.GET("/users/bulk", userHandler.List)

	authRoutes := engine.Group("/").Use(middleware.AuthMiddleware(tokenMaker))

	authRoutes.PUT("/users", userHandler.Update)
	authRoutes.GET("/accounts/balance", accountHandler.GetBalance)
	authRoutes.POST("/transfers", transferHandler.Create)

	server := &Server{
		DB:     conn,
		Engine: engine,
		Config: config,
	}

	return server, nil
}
