package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/desthealth/claims/internal/config"
	"github.com/desthealth/claims/internal/domain/benefits"
	"github.com/desthealth/claims/internal/domain/billing"
	"github.com/desthealth/claims/internal/domain/claims"
	"github.com/desthealth/claims/internal/domain/dispute"
	"github.com/desthealth/claims/internal/domain/estimate"
	"github.com/desthealth/claims/internal/platform/auth"
	"github.com/desthealth/claims/internal/platform/cache"
	"github.com/desthealth/claims/internal/platform/db"
	"github.com/desthealth/claims/internal/platform/events"
	"github.com/desthealth/claims/internal/platform/middleware"
	"github.com/desthealth/claims/internal/platform/processor"
	"github.com/desthealth/claims/internal/platform/webhook"
	"github.com/desthealth/claims/migrations"
	"github.com/desthealth/claims/pkg/money"
)

const (
	version        = "0.1.0"
	requestTimeout = 30 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "claims-server",
		Short: "Out-of-network claims and billing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(estimateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the claims API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationFiles returns the embedded migrations unless dir points elsewhere.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationFiles(dir))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage practice tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a practice schema and apply all migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Println("Tenant created and migrated.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

// estimateInput carries the raw flag values of the estimate command.
type estimateInput struct {
	Cost        string
	Deductible  string
	Met         string
	Coinsurance string
	Allowed     string
}

func estimateCmd() *cobra.Command {
	var in estimateInput
	var policyFile string

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Print an out-of-network reimbursement estimate without touching the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := config.LoadPolicy(policyFile)
			if err != nil {
				return err
			}
			r, err := runEstimate(in, estimate.PolicyFrom(policy), time.Now())
			if err != nil {
				return err
			}
			printEstimate(cmd.OutOrStdout(), r)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Cost, "cost", "", "Cash price of the service in dollars (required)")
	cmd.Flags().StringVar(&in.Deductible, "deductible", "", "Out-of-network individual deductible in dollars")
	cmd.Flags().StringVar(&in.Met, "met", "", "Deductible already met in dollars")
	cmd.Flags().StringVar(&in.Coinsurance, "coinsurance", "", "Out-of-network coinsurance percent, e.g. 40")
	cmd.Flags().StringVar(&in.Allowed, "allowed", "", "Plan allowed amount in dollars; defaults to the policy ratio of cost")
	cmd.Flags().StringVar(&policyFile, "policy", os.Getenv("POLICY_FILE"), "Policy YAML file")
	_ = cmd.MarkFlagRequired("cost")
	return cmd
}

// runEstimate builds a verified in-memory benefits snapshot from the flags and
// runs the waterfall against it.
func runEstimate(in estimateInput, p estimate.Policy, now time.Time) (estimate.Result, error) {
	cost, err := money.ParseDollars(in.Cost)
	if err != nil {
		return estimate.Result{}, fmt.Errorf("--cost: %w", err)
	}

	b := &benefits.Verification{Status: benefits.StatusVerified, VerifiedAt: &now}
	oon := &b.OutOfNetwork

	optional := []struct {
		flag string
		raw  string
		dst  **money.Cents
	}{
		{"--deductible", in.Deductible, &oon.DeductibleIndividual},
		{"--met", in.Met, &oon.DeductibleMet},
		{"--allowed", in.Allowed, &b.EstimatedAllowedAmount},
	}
	for _, o := range optional {
		if o.raw == "" {
			continue
		}
		v, err := money.ParseDollars(o.raw)
		if err != nil {
			return estimate.Result{}, fmt.Errorf("%s: %w", o.flag, err)
		}
		*o.dst = money.Ptr(v)
	}

	if in.Coinsurance != "" {
		pct, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(in.Coinsurance), "%"))
		if err != nil {
			return estimate.Result{}, fmt.Errorf("--coinsurance: %q is not a number", in.Coinsurance)
		}
		oon.CoinsurancePct = decimal.NewNullDecimal(pct)
	}
	if err := oon.Validate("out-of-network"); err != nil {
		return estimate.Result{}, err
	}

	// The waterfall refuses a snapshot with no out-of-network terms at all;
	// from the command line an empty plan means "no deductible, 0% coinsurance".
	if !oon.Populated() {
		oon.DeductibleIndividual = money.Ptr(0)
	}

	return estimate.Estimate(cost, b, p, now)
}

func printEstimate(w io.Writer, r estimate.Result) {
	fmt.Fprintf(w, "%-26s %s\n", "Service cost", money.Format(r.ServiceCost))
	fmt.Fprintf(w, "%-26s %s (%s)\n", "Allowed amount", money.Format(r.AllowedAmount), r.AllowedSource)
	fmt.Fprintf(w, "%-26s %s\n", "Deductible remaining", money.Format(r.DeductibleRemaining))
	fmt.Fprintf(w, "%-26s %s\n", "Deductible applied", money.Format(r.DeductibleApplied))
	fmt.Fprintf(w, "%-26s %s\n", "After deductible", money.Format(r.AmountAfterDeductible))
	fmt.Fprintf(w, "%-26s %s%%\n", "Coinsurance", r.CoinsurancePct.String())
	fmt.Fprintf(w, "%-26s %s\n", "Insurer pays", money.Format(r.InsurerShare))
	fmt.Fprintf(w, "%-26s %s\n", "Patient responsibility", money.Format(r.PatientResponsibility))
	fmt.Fprintf(w, "%-26s %s\n", "Out-of-pocket remaining", money.FormatOptional(r.OOPRemaining))
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV") == "development")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load policy")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	seen := cache.Store(cache.NewMemoryStore())
	if cfg.RedisURL != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.RedisURL, "claims:webhook:")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rs.Close()
		seen = rs
		logger.Info().Msg("using redis for processed webhook events")
	}

	publisher := events.Publisher(events.Nop{})
	if cfg.AMQPURL != "" {
		ap, err := events.NewAMQPPublisher(cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		publisher = ap
		logger.Info().Msg("publishing billing events to AMQP")
	}
	defer publisher.Close()

	if cfg.StripeWebhookSecret == "" {
		logger.Warn().Msg("STRIPE_WEBHOOK_SECRET is empty; every webhook delivery will be rejected")
	}

	inTx := db.NewTxRunner(pool)
	stripeClient := processor.NewClient(processor.Config{
		SecretKey:  cfg.StripeSecretKey,
		APIBase:    cfg.StripeAPIBase,
		MaxRetries: 2,
		Logger:     logger,
	})

	benefitsSvc := benefits.NewService(benefits.NewRepoPG(pool), policy.BenefitsValidityDays, logger)
	claimsSvc := claims.NewService(claims.NewRepoPG(pool), inTx, logger)
	disputeSvc := dispute.NewService(dispute.NewRepoPG(pool), claimsSvc, inTx, policy.DeadlineWarningDays, logger)

	billingRepo := billing.NewRepoPG(pool)
	reconciler := billing.NewReconciler(billingRepo, stripeClient, seen, publisher, inTx, logger)
	billingSvc := billing.NewService(billingRepo, stripeClient, claimsSvc, policy.Tiers, billing.CheckoutURLs{
		Success: cfg.CheckoutSuccessURL,
		Cancel:  cfg.CheckoutCancelURL,
	}, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, db.TenantHeader},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}))
	}

	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	e.Use(middleware.Audit(logger))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	billing.NewWebhookHandler(webhook.NewVerifier(cfg.StripeWebhookSecret), reconciler, logger).RegisterRoutes(e)

	benefits.NewHandler(benefitsSvc).RegisterRoutes(apiV1)
	estimate.NewHandler(benefitsSvc, estimate.PolicyFrom(policy)).RegisterRoutes(apiV1)
	claims.NewHandler(claimsSvc).RegisterRoutes(apiV1)
	dispute.NewHandler(disputeSvc).RegisterRoutes(apiV1)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
