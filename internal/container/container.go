package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rohithsiddi/invoice-processing-agent/internal/application/checkpoint"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/dispatcher"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/orchestrator"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/service"
	"github.com/rohithsiddi/invoice-processing-agent/internal/application/stage"
	"github.com/rohithsiddi/invoice-processing-agent/internal/config"
	"github.com/rohithsiddi/invoice-processing-agent/internal/domain/workflow"
	"github.com/rohithsiddi/invoice-processing-agent/internal/infrastructure/report"
	httpserver "github.com/rohithsiddi/invoice-processing-agent/internal/interfaces/http"
	"github.com/rohithsiddi/invoice-processing-agent/pkg/utils"
)

// Container manages all application dependencies and lifecycle with
// ordered initialization and reverse-order teardown.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	database     *DatabaseBundle
	repositories *RepositoryBundle
	external     *ExternalBundle

	// Application
	dispatcher *dispatcher.Dispatcher
	registry   *stage.Registry
	manager    *checkpoint.Manager
	orch       orchestrator.Orchestrator
	queries    *service.QueryService
	workbooks  *report.WorkbookWriter

	// Interfaces
	server *httpserver.Server

	// Lifecycle
	mu     sync.Mutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations and repositories
// 2. External clients (OCR, procurement, ERP, notifications)
// 3. Event dispatcher with the audit trail subscriber
// 4. Checkpoint manager, stage registry and orchestrator
// 5. Query service and HTTP server
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	_, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.database = dbBundle

	repos, err := ProvideRepositories(dbBundle.SqlDB.DB, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	c.repositories = repos
	c.logger.Info("Database and repositories initialized")

	external, err := ProvideExternalClients(c.config, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.external = external
	c.logger.Info("External clients initialized")

	c.dispatcher = ProvideDispatcher(repos.Audit, c.logger)
	c.logger.Info("Event dispatcher initialized")

	c.manager = ProvideCheckpointManager(
		c.config, repos, dbBundle.TransactionMgr, external.Notifier, c.dispatcher, c.logger)

	registry, err := ProvideStageRegistry(c.config, external, c.logger)
	if err != nil {
		return fmt.Errorf("failed to build stage registry: %w", err)
	}
	c.registry = registry

	c.orch = orchestrator.New(
		repos.Instance,
		dbBundle.TransactionMgr,
		registry,
		workflow.NewInvoicePipeline(),
		c.manager,
		c.dispatcher,
		utils.NewKVLogger(c.logger, "orchestrator"),
	)
	c.logger.Info("Orchestrator initialized")

	c.queries = service.NewQueryService(repos.Instance, repos.Checkpoint, repos.Audit)
	c.workbooks = report.NewWorkbookWriter(c.logger)

	c.server = httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         c.config.Server.Host,
			Port:         c.config.Server.Port,
			ReadTimeout:  c.config.Server.ReadTimeout,
			WriteTimeout: c.config.Server.WriteTimeout,
		},
		c.orch,
		c.manager,
		c.queries,
		c.workbooks,
		c.config.Extraction.UploadDir,
		utils.NewKVLogger(c.logger, "http"),
	)
	c.server.SetHealthFunc(func() (bool, map[string]httpserver.ComponentHealth) {
		status := c.Health()
		components := make(map[string]httpserver.ComponentHealth, len(status.Components))
		for name, component := range status.Components {
			components[name] = httpserver.ComponentHealth{
				Healthy: component.Healthy,
				Message: component.Message,
			}
		}
		return status.Overall, components
	})
	c.logger.Info("HTTP server initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}

	// Drain in-flight event handlers before the database goes away
	if c.dispatcher != nil {
		c.dispatcher.Close()
		c.logger.Info("Dispatcher closed")
	}

	if c.database != nil {
		if err := c.database.SqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.database != nil {
		if err := c.database.SqlDB.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.orch != nil {
		status.Components["orchestrator"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["orchestrator"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	return status
}

// Server returns the HTTP server
func (c *Container) Server() *httpserver.Server {
	return c.server
}

// Orchestrator returns the workflow orchestrator
func (c *Container) Orchestrator() orchestrator.Orchestrator {
	return c.orch
}

// CheckpointManager returns the checkpoint manager
func (c *Container) CheckpointManager() *checkpoint.Manager {
	return c.manager
}

// Queries returns the read-side query service
func (c *Container) Queries() *service.QueryService {
	return c.queries
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}
