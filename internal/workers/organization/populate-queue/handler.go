package populatequeue

import (
	"context"
	"fmt"
	"time"

	"primary-organization/internal/common/config"
	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/metrics"
	"primary-organization/internal/common/workqueue"
)

const (
	WorkerName = "populate-queue"
)

type Handler struct {
	config  *Config
	logger  logger.Logger
	queue   workqueue.Queue
	service *Service
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Logger       logger.Logger
	Directory    Directory
	Queue        workqueue.Queue
	// Approved extends the configured approved organizations, e.g. with
	// names loaded from a registry file.
	Approved []string
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewStructured("info", "json")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}

	var cfg *Config
	if opts.CustomConfig != nil {
		cfg = opts.CustomConfig
	} else {
		cfg = createConfigFromAppConfig(opts.AppConfig)
	}
	cfg.Approved = append(cfg.Approved, opts.Approved...)

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigurationError("Invalid populate-queue configuration", err.Error())
	}

	log := opts.Logger.WithFields(map[string]interface{}{"worker": WorkerName})
	service := NewService(ServiceDependencies{
		Logger:    log,
		Directory: opts.Directory,
		Queue:     opts.Queue,
	}, cfg)

	return &Handler{
		config:  cfg,
		logger:  log,
		queue:   opts.Queue,
		service: service,
	}, nil
}

func createConfigFromAppConfig(appConfig *config.Config) *Config {
	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	workerCfg := config.GetWorkerConfig(appConfig, WorkerName)
	cfg.Enabled = workerCfg.Enabled
	if workerCfg.Timeout > 0 {
		cfg.Timeout = config.GetDuration(workerCfg.Timeout)
	}

	orgs := appConfig.Organizations
	cfg.Approved = append([]string(nil), orgs.Approved...)
	cfg.ExcludedIdentifiers = append([]string(nil), orgs.ExcludedIdentifiers...)
	if orgs.IdentifierType != "" {
		cfg.IdentifierType = orgs.IdentifierType
	}
	return cfg
}

// Run clears the items that were never started and enqueues the current
// population. A failed clear or directory lookup aborts the run.
func (h *Handler) Run(ctx context.Context) (*Summary, error) {
	if !h.config.Enabled {
		h.logger.Warn("Worker is disabled", nil)
		return &Summary{}, nil
	}

	start := time.Now()
	metrics.ItemsActive.WithLabelValues(WorkerName).Inc()
	defer metrics.ItemsActive.WithLabelValues(WorkerName).Dec()

	if err := h.queue.Clear(ctx, h.config.ClearStatus); err != nil {
		h.logger.Error("Failed to clear workqueue", map[string]interface{}{
			"status":    string(h.config.ClearStatus),
			"errorCode": string(errors.CodeOf(err)),
			"error":     err.Error(),
		})
		return &Summary{}, err
	}

	summary, err := h.service.Execute(ctx)
	recordSummary(summary)
	metrics.ItemDuration.WithLabelValues(WorkerName).Observe(time.Since(start).Seconds())

	fields := summary.fields()
	fields["duration"] = time.Since(start).String()
	if err != nil {
		fields["errorCode"] = string(errors.CodeOf(err))
		fields["error"] = err.Error()
		h.logger.Error("Populating workqueue failed", fields)
		return summary, err
	}

	h.logger.Info("Workqueue populated", fields)
	return summary, nil
}

func recordSummary(s *Summary) {
	metrics.ItemsEnqueued.WithLabelValues(metrics.ResultEnqueued).Add(float64(s.Enqueued))
	metrics.ItemsEnqueued.WithLabelValues(metrics.ResultDuplicate).Add(float64(s.Duplicates))
	metrics.ItemsEnqueued.WithLabelValues(metrics.ResultFailed).Add(float64(s.EnqueueFailed))
	metrics.ItemsEnqueued.WithLabelValues(metrics.ResultSkippedIdentifierType).Add(float64(s.SkippedIdentifierType))
	metrics.ItemsEnqueued.WithLabelValues(metrics.ResultSkippedExcluded).Add(float64(s.SkippedExcluded))
}

func (h *Handler) GetConfig() *Config {
	return h.config
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}
