// Command verigate runs the verification gateway: an HTTP service whose
// write routes are protected by Google reCAPTCHA, with score-driven and
// challenge-driven variants, remembered trust, and audit recording.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/verigate/verigate/internal/audit"
	"github.com/verigate/verigate/internal/guard"
	"github.com/verigate/verigate/internal/identity"
	"github.com/verigate/verigate/internal/server"
	"github.com/verigate/verigate/internal/session"
	"github.com/verigate/verigate/internal/verifier"
	"github.com/verigate/verigate/pkg/recaptcha"
	"go.uber.org/zap"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "verigate",
	Short: "reCAPTCHA verification gateway",
	Long: `Verigate fronts write routes with Google reCAPTCHA verification.
Score routes grade every request against a threshold; challenge routes
enforce a solved checkbox, invisible, or Android challenge, optionally
remembering the result for a trust window.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, _ := zap.NewProduction()
		defer logger.Sync() //nolint:errcheck
		return serve(logger)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("verigate", version)
	},
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("verigate")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("recaptcha.enabled", true)
	viper.SetDefault("recaptcha.fake", false)
	viper.SetDefault("recaptcha.threshold", recaptcha.DefaultThreshold)
	viper.SetDefault("recaptcha.action", "login")
	viper.SetDefault("recaptcha.hostname", "")
	viper.SetDefault("recaptcha.apk_package_name", "")
	viper.SetDefault("recaptcha.timeout", "5s")
	viper.SetDefault("recaptcha.remember.enabled", false)
	viper.SetDefault("recaptcha.remember.minutes", guard.DefaultRememberMinutes)
	// Google's public localhost test keypair; replace in production.
	viper.SetDefault("recaptcha.credentials.checkbox.secret", recaptcha.TestV2Secret)
	viper.SetDefault("recaptcha.credentials.invisible.secret", "")
	viper.SetDefault("recaptcha.credentials.android.secret", "")
	viper.SetDefault("recaptcha.credentials.score.secret", "")
	viper.SetDefault("session.backend", "memory")
	viper.SetDefault("session.redis_addr", "localhost:6379")
	viper.SetDefault("session.redis_prefix", "verigate")
	viper.SetDefault("audit.database_url", "")
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.token_ttl", "24h")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Verifier ─────────────────────────────────────────────────────────────
	var v verifier.Verifier
	fakeMode := viper.GetBool("recaptcha.fake")
	if fakeMode {
		v = verifier.NewFake()
		logger.Warn("FAKE verification mode enabled; do not use in production")
	} else {
		creds := verifier.Credentials{}
		for _, kind := range []recaptcha.Kind{
			recaptcha.KindCheckbox,
			recaptcha.KindInvisible,
			recaptcha.KindAndroid,
			recaptcha.KindScore,
		} {
			if s := viper.GetString("recaptcha.credentials." + string(kind) + ".secret"); s != "" {
				creds[kind] = s
			}
		}
		timeout, _ := time.ParseDuration(viper.GetString("recaptcha.timeout"))
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		v = verifier.NewGoogle(creds,
			verifier.WithTimeout(timeout),
			verifier.WithLogger(logger),
		)
		logger.Info("siteverify client ready",
			zap.Int("credential_kinds", len(creds)),
			zap.Duration("timeout", timeout),
		)
	}

	// ── Session store ────────────────────────────────────────────────────────
	var store session.Store
	switch backend := viper.GetString("session.backend"); backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: viper.GetString("session.redis_addr")})
		if err := client.Ping(rootCtx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		defer client.Close() //nolint:errcheck
		store = session.NewRedis(client, viper.GetString("session.redis_prefix"))
		logger.Info("session store: redis", zap.String("addr", viper.GetString("session.redis_addr")))
	case "memory":
		mem := session.NewMemory()
		go mem.Start(rootCtx, time.Minute)
		store = mem
		logger.Info("session store: in-memory")
	default:
		return fmt.Errorf("unknown session backend %q", backend)
	}

	// ── Audit recorder ───────────────────────────────────────────────────────
	var recorder audit.Recorder
	if dbURL := viper.GetString("audit.database_url"); dbURL != "" {
		pool, err := pgxpool.New(rootCtx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(rootCtx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		pg := audit.NewPostgresRecorder(pool, logger)
		if err := pg.EnsureSchema(rootCtx); err != nil {
			return fmt.Errorf("ensure audit schema: %w", err)
		}
		recorder = pg
		logger.Info("audit recorder: postgres")
	} else {
		recorder = audit.NewMemoryRecorder()
		logger.Info("audit recorder: in-memory (set audit.database_url for postgres)")
	}

	// ── Identity ─────────────────────────────────────────────────────────────
	secret := []byte(viper.GetString("auth.jwt_secret"))
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		logger.Warn("auth.jwt_secret not set; sessions will not survive restarts")
	}
	tokenTTL, _ := time.ParseDuration(viper.GetString("auth.token_ttl"))
	if tokenTTL == 0 {
		tokenTTL = 24 * time.Hour
	}
	tokens := identity.NewTokenIssuer(secret, "verigate", tokenTTL)

	// ── Guard ────────────────────────────────────────────────────────────────
	g := guard.New(guard.Options{
		Verifier:   v,
		Store:      store,
		SessionKey: server.SessionKey,
		Authenticators: map[string]guard.Authenticator{
			"web": server.NewJWTAuthenticator(tokens, "web"),
		},
		Recorder:         recorder,
		Logger:           logger,
		Enabled:          viper.GetBool("recaptcha.enabled"),
		FakeMode:         fakeMode,
		Hostname:         viper.GetString("recaptcha.hostname"),
		APKPackageName:   viper.GetString("recaptcha.apk_package_name"),
		DefaultThreshold: viper.GetFloat64("recaptcha.threshold"),
		DefaultRemember: guard.RememberPolicy{
			Enabled:    viper.GetBool("recaptcha.remember.enabled"),
			TTLMinutes: viper.GetInt("recaptcha.remember.minutes"),
		},
	})
	if !viper.GetBool("recaptcha.enabled") {
		logger.Warn("verification disabled; all guarded routes pass through")
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(g, tokens, logger, server.Config{
		CORSOrigins:  viper.GetStringSlice("server.cors_origins"),
		RateLimitRPS: viper.GetInt("server.rate_limit_rps"),
		Threshold:    viper.GetFloat64("recaptcha.threshold"),
		Action:       viper.GetString("recaptcha.action"),
	})

	port := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("verigate HTTP listening", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-rootCtx.Done()
	logger.Info("shutting down verigate...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("verigate stopped")
	return nil
}
