package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/controller"
	identitygrpc "github.com/vibast-solutions/ms-go-identity/app/grpc"
	"github.com/vibast-solutions/ms-go-identity/app/metrics"
	"github.com/vibast-solutions/ms-go-identity/app/middleware"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start the HTTP (Echo) API and, when GRPC_API_KEY is set, the internal gRPC token service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialise application")
	}
	defer app.Close()

	if cfg.GRPC.APIKey != "" {
		grpcServer, healthServer := startGRPCServer(cfg, app)
		defer identitygrpc.GracefulStop(grpcServer, healthServer)
	} else {
		logrus.Warn("GRPC_API_KEY not set, gRPC server disabled")
	}

	e := newHTTPServer(app)
	httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
	go func() {
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP server shutdown failed")
	}
}

func newHTTPServer(app *application) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			entry := logrus.WithFields(logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(metrics.HTTPMiddleware)

	// a nil *redis.Client must not reach the interface as a non-nil value
	var rdb redis.Cmdable
	if app.redis != nil {
		rdb = app.redis
	}
	health := controller.NewHealthController(app.db, rdb)
	e.GET("/health", health.Liveness)
	e.GET("/health/ready", health.Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	accountController := controller.NewAccountController(app.accounts)
	profileController := controller.NewProfileController(app.profiles)
	resetController := controller.NewPasswordResetController(app.resets)
	authMiddleware := middleware.NewAuthMiddleware(app.tokens)

	account := e.Group("/api/account")
	account.POST("/register", accountController.Register)
	account.POST("/login", accountController.Login)
	account.POST("/forgot-password", resetController.ForgotPassword)
	account.POST("/reset-password", resetController.ResetPassword)

	protected := account.Group("")
	protected.Use(authMiddleware.RequireAuth)
	protected.GET("/profile", profileController.GetProfile)
	protected.PUT("/profile", profileController.UpdateProfile)
	protected.POST("/change-password", accountController.ChangePassword)
	protected.GET("/search", profileController.Search)

	return e
}

func startGRPCServer(cfg *config.Config, app *application) (*grpc.Server, *health.Server) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcServer, healthServer := identitygrpc.NewServer(cfg.GRPC.APIKey, app.tokens)

	go func() {
		logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("Failed to start gRPC server")
		}
	}()

	return grpcServer, healthServer
}
