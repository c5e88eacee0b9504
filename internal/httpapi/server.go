// Package httpapi is the HTTP façade over the booking core. Handlers bind
// JSON, extract the caller's capability from the token middleware, call one
// service operation, and translate domain errors into status codes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
)

// Server serves the booking HTTP API.
type Server struct {
	logger        *zap.Logger
	service       *booking.Service
	authenticator *TokenAuthenticator

	allowedOrigins []string
	startingGrant  int64
}

// NewServer wires the façade.
func NewServer(service *booking.Service, authenticator *TokenAuthenticator, logger *zap.Logger, allowedOrigins []string, startingGrant int64) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger:         logger,
		service:        service,
		authenticator:  authenticator,
		allowedOrigins: allowedOrigins,
		startingGrant:  startingGrant,
	}
}

// Router builds the gin engine.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The payment gateway signs its own callbacks; no capability token.
	router.POST("/callbacks/purchase", server.handlePurchaseCallback)

	api := router.Group("/api")
	api.Use(server.authenticator.GinMiddleware())

	api.POST("/members", server.handleRegister)
	api.GET("/members/:memberId/balance", server.handleBalance)
	api.GET("/members/:memberId/history", server.handleHistory)
	api.GET("/members/:memberId/bookings", server.handleListBookings)

	api.POST("/bookings", server.handleCreateBooking)
	api.GET("/bookings/:bookingId", server.handleGetBooking)
	api.DELETE("/bookings/:bookingId", server.handleCancelBooking)

	api.POST("/courses", server.handleCreateCourse)
	api.GET("/courses/:courseId", server.handleGetCourse)
	api.POST("/courses/:courseId/attendance", server.handleAttendance)

	api.POST("/transfers", server.handleInitiateTransfer)
	api.POST("/transfers/:transferId/execute", server.handleExecuteTransfer)
	api.POST("/transfers/:transferId/cancel", server.handleCancelTransfer)

	api.POST("/purchases", server.handleInitiatePurchase)

	api.POST("/admin/points", server.handleAdjustPoints)

	return router
}

// Run serves until ctx is cancelled.
func (server *Server) Run(ctx context.Context, listenAddr string) error {
	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http api listening", zap.String("addr", listenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
