// Server runs the desktop unlock API: desktop registration and heartbeat, governance approvals
// and the admin surface. With no DATABASE_URL it runs on the in-memory store.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	adminhandler "github.com/commentors-net/Aegis-Mint/internal/admin/handler"
	approvalhandler "github.com/commentors-net/Aegis-Mint/internal/approval/handler"
	approvalrepo "github.com/commentors-net/Aegis-Mint/internal/approval/repository"
	approvalservice "github.com/commentors-net/Aegis-Mint/internal/approval/service"
	assignmentrepo "github.com/commentors-net/Aegis-Mint/internal/assignment/repository"
	"github.com/commentors-net/Aegis-Mint/internal/audit"
	audithandler "github.com/commentors-net/Aegis-Mint/internal/audit/handler"
	auditrepo "github.com/commentors-net/Aegis-Mint/internal/audit/repository"
	"github.com/commentors-net/Aegis-Mint/internal/config"
	"github.com/commentors-net/Aegis-Mint/internal/db"
	desktophandler "github.com/commentors-net/Aegis-Mint/internal/desktop/handler"
	desktoprepo "github.com/commentors-net/Aegis-Mint/internal/desktop/repository"
	desktopservice "github.com/commentors-net/Aegis-Mint/internal/desktop/service"
	healthhandler "github.com/commentors-net/Aegis-Mint/internal/health/handler"
	"github.com/commentors-net/Aegis-Mint/internal/keyrotation"
	"github.com/commentors-net/Aegis-Mint/internal/platform/rbac"
	"github.com/commentors-net/Aegis-Mint/internal/policy/engine"
	"github.com/commentors-net/Aegis-Mint/internal/security"
	"github.com/commentors-net/Aegis-Mint/internal/server"
	"github.com/commentors-net/Aegis-Mint/internal/store/memory"
	"github.com/commentors-net/Aegis-Mint/internal/telemetry"
	telemetryotel "github.com/commentors-net/Aegis-Mint/internal/telemetry/otel"
	"github.com/commentors-net/Aegis-Mint/internal/telemetry/producer"
	userrepo "github.com/commentors-net/Aegis-Mint/internal/user/repository"
)

// stores groups the repositories the services run on, backed by Postgres or memory.
type stores struct {
	desktops    desktoprepo.Repository
	assignments assignmentrepo.Repository
	users       userrepo.Repository
	audit       auditrepo.Repository
	approvals   approvalrepo.Store
	pinger      healthhandler.Pinger
	close       func() error
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogDebug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogJSON {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "aegis-server")
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL is not set; using the in-memory store")
		m := memory.New()
		return &stores{
			desktops:    m.Desktops(),
			assignments: m.Assignments(),
			users:       m.Users(),
			audit:       m.Audit(),
			approvals:   m,
			pinger:      healthhandler.PingFunc(m.Ping),
			close:       func() error { return nil },
		}, nil
	}
	conn, err := db.OpenContext(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		desktops:    desktoprepo.NewPostgresRepository(conn),
		assignments: assignmentrepo.NewPostgresRepository(conn),
		users:       userrepo.NewPostgresRepository(conn),
		audit:       auditrepo.NewPostgresRepository(conn),
		approvals:   approvalrepo.NewPostgresStore(conn),
		pinger:      conn,
		close:       conn.Close,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "aegis-server",
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Error("otel", "err", err)
		os.Exit(1)
	}
	providers.SetGlobal()

	emitters := telemetry.Fanout{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	var kafkaProducer *producer.KafkaProducer
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		kafkaProducer, err = producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		if err != nil {
			log.Error("kafka producer", "err", err)
			os.Exit(1)
		}
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		log.Info("telemetry events enabled", "brokers", cfg.TelemetryKafkaBrokers, "topic", cfg.TelemetryKafkaTopic)
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("db", "err", err)
		os.Exit(1)
	}

	tokens, err := security.LoadTokenVerifier(cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		log.Error("jwt verifier", "err", err)
		os.Exit(1)
	}
	policy, err := engine.NewOPAEvaluator(ctx)
	if err != nil {
		log.Error("policy engine", "err", err)
		os.Exit(1)
	}

	sink := audit.NewLogger(st.audit, audit.ClientIPFromContext).WithEmitter(emitters)
	manager := approvalservice.NewManager(st.approvals, sink)
	rotation := keyrotation.NewPolicy(cfg.RotationInterval(), st.desktops, sink)
	desktops := desktopservice.NewService(st.desktops, st.assignments, st.users, manager, rotation, sink,
		desktopservice.Defaults{
			RequiredApprovalsN: cfg.RequiredApprovalsDefault,
			UnlockMinutes:      cfg.UnlockMinutesDefault,
		})

	srv := server.New(&server.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		HealthGRPCAddr:           cfg.HealthGRPCAddr,
		Log:                      log,
		DrainDuration:            cfg.DrainDuration(),
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              30 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, server.RouterDeps{
		Desktop:       desktophandler.NewHandler(desktops),
		Authenticator: desktopservice.NewAuthenticator(st.desktops, sink, cfg.MaxDrift()),
		Governance:    approvalhandler.NewHandler(manager, desktops),
		Admin:         adminhandler.NewHandler(desktops),
		Audit:         audithandler.NewHandler(st.audit),
		Tokens:        tokens,
		Gate:          rbac.NewGate(st.users, policy),
		Telemetry:     emitters,
	}, server.Probes{Pinger: st.pinger, Policy: policy})

	srv.RunInBackground()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	srv.Shutdown()

	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		log.Warn("telemetry drain timed out", "timeout", telemetry.ShutdownDrainDuration)
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Warn("kafka producer close", "err", err)
		}
	}
	if err := st.close(); err != nil {
		log.Warn("db close", "err", err)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("otel shutdown", "err", err)
	}
	log.Info("server stopped")
}
