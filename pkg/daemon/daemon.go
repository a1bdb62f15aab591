package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/extra-connectors/tpbridge/pkg/config"
)

func setupRoutes(s *Server, corsOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	if len(corsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  corsOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "If-None-Match"},
			ExposeHeaders: []string{"Content-Length", "ETag"},
			MaxAge:        12 * time.Hour,
		}))
	}

	router.GET("/config", s.getConfig)
	router.GET("/version", s.getVersion)
	router.GET("/status", s.getStatus)
	router.GET("/states", s.getStates)
	router.GET("/states/:id", s.getState)
	router.GET("/snapshot", s.getSnapshot)
	router.GET("/image.png", s.getImage)
	router.PUT("/lock", s.setLock)
	router.PUT("/lock-labels", s.setLockLabels)
	router.PUT("/handler-error-policy", s.setHandlerErrorPolicy)
	router.PUT("/clock-schedule", s.setClockSchedule)
	router.POST("/frames", s.postFrame)
	router.GET("/metrics", gin.WrapH(s.metrics.handler()))
	router.GET("/ws", s.stream)

	return router
}

// Run loads the configuration, starts the bridge and serves the API on
// unixSocketPath until SIGINT or SIGTERM. SIGHUP reloads the
// configuration and restarts the bridge.
func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	s, err := NewServer(Options{Config: conf})
	if err != nil {
		return err
	}
	if err := s.Start(context.Background()); err != nil {
		return pkgerrors.Wrapf(err, "failed to start bridge")
	}

	router := setupRoutes(s, conf.CORSOrigins())
	srv := &http.Server{
		Handler: router,
	}

	// A stale socket from a crashed daemon would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			return pkgerrors.Wrapf(err, "failed to change permissions of %s", unixSocketPath)
		}
	}

	serveErr := make(chan error, 2)
	serve := func(l net.Listener) {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}
	go serve(l)

	if addr := conf.HTTPListen(); addr != "" {
		tl, err := net.Listen("tcp", addr)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to listen on %s", addr)
		}
		go serve(tl)
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := conf.Load(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
			if err := s.Restart(context.Background()); err != nil {
				logrus.Errorf("failed to restart bridge: %v", err)
			}
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err := <-s.Errors():
		runErr = pkgerrors.Wrapf(err, "bridge stopped")
	case err := <-serveErr:
		runErr = pkgerrors.Wrapf(err, "http server failed")
	}

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("stopping bridge")
	s.Stop()

	logrus.Info("exiting")
	return runErr
}
