package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"resumepay/pkg/config"
	"resumepay/pkg/logger"
	"resumepay/pkg/payment"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup always happens.
func run(args []string) error {
	fs := ff.NewFlagSet("resumepay")
	verification := config.RegisterVerification(fs)
	storage := config.RegisterStorage(fs)
	var (
		port      = fs.IntLong("port", 8081, "HTTP server port")
		maxUpload = fs.IntLong("max-upload-bytes", defaultMaxUpload, "largest accepted screenshot in bytes")
		jwtSecret = fs.StringLong("jwt-secret", "", "HMAC secret for export grants (development fallback when empty)")
		grantTTL  = fs.StringLong("grant-ttl", "15m", "lifetime of an export grant")
		adminUser = fs.StringLong("admin-user", "admin", "basic auth user for /admin")
		adminHash = fs.StringLong("admin-password-hash", "", "bcrypt hash of the admin password; /admin is disabled when empty")
	)
	if err := config.Parse(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return err
	}

	log, err := logger.New(*verification.LogLevel, *verification.Environment)
	if err != nil {
		return err
	}
	defer log.Sync()

	if rest := fs.GetArgs(); len(rest) > 0 && rest[0] == "migrate" {
		if err := runMigrate(storage); err != nil {
			log.Errorw("Migration failed", "error", err)
			return err
		}
		log.Info("migration completed")
		return nil
	}

	ttl, err := time.ParseDuration(*grantTTL)
	if err != nil {
		return fmt.Errorf("invalid --grant-ttl %q: %w", *grantTTL, err)
	}
	amount, err := verification.ExpectedAmount()
	if err != nil {
		return err
	}
	if *jwtSecret == "" {
		log.Warn("--jwt-secret not set; using the insecure development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	attempts, err := storage.Open(log)
	if err != nil {
		return fmt.Errorf("open %s attempt store: %w", *storage.Kind, err)
	}
	defer attempts.Close()

	rec, err := verification.NewRecognizer(ctx)
	if err != nil {
		return fmt.Errorf("initialize %s recognizer: %w", *verification.Recognizer, err)
	}
	defer rec.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := payment.NewMetrics(registry)

	verifier, err := verification.NewVerifier(rec, log, metrics, payment.WithRecorder(attempts))
	if err != nil {
		return fmt.Errorf("invalid verification configuration: %w", err)
	}

	sessions := payment.NewManager(payment.ManagerConfig{
		Expected: amount,
		Window:   verification.Window(),
		Log:      log,
		OnVerified: func(s *payment.Session) {
			log.Infow("Export unlocked", "session", s.ID(), "amount", s.ExpectedAmount().String())
		},
	})
	go func() {
		if err := sessions.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("Session ticker stopped", "error", err)
		}
	}()

	a := &app{
		sessions:  sessions,
		verifier:  verifier,
		attempts:  attempts,
		grants:    newGrantIssuer(*jwtSecret, ttl, nil),
		admin:     adminCredentials{user: *adminUser, passwordHash: []byte(*adminHash)},
		maxUpload: int64(*maxUpload),
		registry:  registry,
		log:       log,
	}
	if *verification.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	a.routes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("Starting server", "port", *port, "policy", verifier.Policy().Name, "recognizer", *verification.Recognizer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}
	log.Info("Server exited")
	return nil
}
