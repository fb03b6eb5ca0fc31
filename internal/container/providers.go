// Package container provides dependency injection and lifecycle
// management for the invoice processing service.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/checkpoint"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/dispatcher"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/port"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/stage"
	"github.com/rohithsiddi/invoice-processing-agent/internal/config"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/event"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/matching"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/external/erp"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/external/ocr"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/external/openai"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/external/procurement"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/notification"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/persistence/repository"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/persistence/sqlite"
	"github.com/rohithsiddi/invoice-processing-agent/pkg/database"
	"github.com/rohithsiddi/invoice-processing-agent/pkg/utils"
)

// DatabaseBundle holds database-related components
type DatabaseBundle struct {
	SqlDB          *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access
type RepositoryBundle struct {
	Instance   port.InstanceRepository
	Checkpoint port.CheckpointRepository
	Audit      port.AuditRepository
}

// ExternalBundle holds all external collaborator clients
type ExternalBundle struct {
	ToolSelector port.ToolSelector
	Extractor    port.OCRExtractor
	Procurement  port.ProcurementClient
	ERP          port.ERPClient
	Notifier     port.Notifier
}

// ProvideDatabase opens the SQLite database, runs pending migrations,
// and wraps the connection in the transaction manager.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.MigrationsDir != "" {
		migrator := database.NewMigrator(db, logger)
		if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		SqlDB:          db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Instance:   repository.NewInstanceRepository(sqlDB, logger),
		Checkpoint: repository.NewCheckpointRepository(sqlDB, logger),
		Audit:      repository.NewAuditRepository(sqlDB, logger),
	}, nil
}

// ProvideExternalClients creates the OCR, procurement, ERP, and
// notification adapters
func ProvideExternalClients(cfg *config.Config, logger *zap.Logger) (*ExternalBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := os.MkdirAll(cfg.Extraction.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &ExternalBundle{
		ToolSelector: openai.NewToolPicker(
			cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Temperature, cfg.OpenAI.MaxTokens, logger),
		Extractor: ocr.NewExtractor(cfg.Extraction.UploadDir, logger),
		Procurement: procurement.NewClient(
			cfg.Procurement.BaseURL, cfg.Procurement.APIKey, cfg.Procurement.Timeout, logger),
		ERP: erp.NewClient(
			cfg.ERP.BaseURL, cfg.ERP.APIKey, cfg.ERP.Timeout, logger),
		Notifier: notification.NewWebhookNotifier(
			cfg.Notification.WebhookURL, cfg.Notification.Timeout, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher with the audit trail
// subscribed to every event
func ProvideDispatcher(audit port.AuditRepository, logger *zap.Logger) *dispatcher.Dispatcher {
	disp := dispatcher.New(utils.NewKVLogger(logger, "dispatcher"))
	disp.SubscribeAll("audit-log", func(ctx context.Context, evt *event.Event) error {
		return audit.Append(ctx, evt)
	})
	return disp
}

// ProvideStageRegistry builds the pipeline handler registry from
// configuration and the external clients
func ProvideStageRegistry(cfg *config.Config, ext *ExternalBundle, logger *zap.Logger) (*stage.Registry, error) {
	matchCfg := matching.Config{
		Threshold:      cfg.Matching.Threshold,
		TolerancePct:   cfg.Matching.TolerancePct,
		VendorWeight:   cfg.Matching.VendorWeight,
		AmountWeight:   cfg.Matching.AmountWeight,
		LineItemWeight: cfg.Matching.LineItemWeight,
	}
	if err := matchCfg.Validate(); err != nil {
		return nil, err
	}

	stageLogger := utils.NewKVLogger(logger, "stage")

	return stage.NewRegistry(
		stage.NewIngestHandler(),
		stage.NewExtractHandler(ext.ToolSelector, ext.Extractor, cfg.Extraction.MinConfidence, stageLogger),
		stage.NewClassifyHandler(),
		stage.NewEnrichHandler(ext.Procurement, stageLogger),
		stage.NewValidateHandler(),
		stage.NewRetrieveHandler(ext.Procurement, stageLogger),
		stage.NewMatchHandler(matchCfg, stageLogger),
		stage.NewCheckpointHandler(),
		stage.NewHITLDecisionHandler(cfg.Matching.RejectReprocesses),
		stage.NewReconcileHandler(cfg.Matching.TolerancePct),
		stage.NewApproveHandler(cfg.Matching.AutoApproveThreshold),
		stage.NewPostHandler(ext.ERP, stageLogger),
		stage.NewNotifyHandler(ext.Notifier, cfg.Notification.APTeam, stageLogger),
		stage.NewCompleteHandler(),
	)
}

// ProvideCheckpointManager creates the checkpoint manager
func ProvideCheckpointManager(
	cfg *config.Config,
	repos *RepositoryBundle,
	tx port.TransactionManager,
	notifier port.Notifier,
	events port.EventSink,
	logger *zap.Logger,
) *checkpoint.Manager {
	return checkpoint.NewManager(
		repos.Checkpoint,
		repos.Instance,
		tx,
		notifier,
		events,
		cfg.Notification.Reviewers,
		cfg.Notification.ReviewBaseURL,
		utils.NewKVLogger(logger, "checkpoint"),
	)
}
