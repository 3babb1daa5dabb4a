package setprimaryorganization

import (
	"context"
	"fmt"
	"time"

	"primary-organization/internal/common/config"
	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/metrics"
	"primary-organization/internal/common/notify"
	"primary-organization/internal/common/observability"
	"primary-organization/internal/common/tracking"
	"primary-organization/internal/common/workqueue"
	"primary-organization/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const (
	WorkerName = "set-primary-organization"
)

type Handler struct {
	config       *Config
	logger       logger.Logger
	queue        workqueue.Queue
	service      Executor
	errorHandler *errors.ErrorHandler
	notifier     notify.Notifier
	obs          *observability.Observability
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Logger       logger.Logger
	Queue        workqueue.Queue
	Citizens     Citizens
	Tracker      tracking.Tracker
	Notifier     notify.Notifier
	Obs          *observability.Observability
	// Service replaces the default Service, mainly in tests.
	Service Executor
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewStructured("info", "json")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if opts.Service == nil && opts.Citizens == nil {
		return nil, fmt.Errorf("citizens client is required")
	}
	if opts.Tracker == nil {
		opts.Tracker = tracking.NewNoopTracker(opts.Logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NoopNotifier{}
	}
	if opts.Obs == nil {
		opts.Obs = &observability.Observability{}
	}

	var cfg *Config
	if opts.CustomConfig != nil {
		cfg = opts.CustomConfig
	} else {
		cfg = createConfigFromAppConfig(opts.AppConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigurationError("Invalid set-primary-organization configuration", err.Error())
	}

	log := opts.Logger.WithFields(map[string]interface{}{"worker": WorkerName})

	service := opts.Service
	if service == nil {
		service = NewService(ServiceDependencies{
			Logger:   log,
			Citizens: opts.Citizens,
			Tracker:  opts.Tracker,
		}, cfg)
	}

	return &Handler{
		config:       cfg,
		logger:       log,
		queue:        opts.Queue,
		service:      service,
		errorHandler: errors.NewErrorHandler(log),
		notifier:     opts.Notifier,
		obs:          opts.Obs,
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
	if appConfig.Tracking.ProcessName != "" {
		cfg.ProcessName = appConfig.Tracking.ProcessName
	}
	cfg.TaskLabel = appConfig.Tracking.TaskLabel
	return cfg
}

// Run drains the work queue. Soft errors fail the item and the run goes
// on; any other error fails the item and ends the run.
func (h *Handler) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	if !h.config.Enabled {
		h.logger.Warn("Worker is disabled", nil)
		return summary, nil
	}

	start := time.Now()
	stats, err := workqueue.Drain(ctx, h.queue, func(ctx context.Context, item *workqueue.Item) error {
		return h.handleItem(ctx, item, summary)
	})
	summary.Processed = stats.Processed
	summary.Failed = stats.Failed

	fields := summary.fields()
	fields["duration"] = time.Since(start).String()
	if err != nil {
		fields["errorCode"] = string(errors.CodeOf(err))
		fields["error"] = err.Error()
		h.logger.Error("Processing aborted", fields)
	} else {
		h.logger.Info("Workqueue drained", fields)
	}

	h.notify(ctx, summary, err)
	return summary, err
}

func (h *Handler) handleItem(ctx context.Context, item *workqueue.Item, summary *Summary) error {
	start := time.Now()
	metrics.ItemsActive.WithLabelValues(WorkerName).Inc()
	defer metrics.ItemsActive.WithLabelValues(WorkerName).Dec()

	ctx, span := h.obs.StartSpan(ctx, "set-primary-organization.item",
		attribute.String("workitem.id", item.ID),
		attribute.String("workitem.reference", item.Reference),
	)

	var input Input
	output, err := h.process(ctx, item, &input)

	outcome := models.OutcomeFailed
	if err == nil {
		outcome = output.Outcome
		summary.record(outcome)
		span.SetAttributes(attribute.String("outcome", string(outcome)))
	} else {
		h.recordFailure(item, err, summary)
		err = h.errorHandler.HandleItemError(ctx, item, input, err)
	}

	observability.EndSpan(span, err)
	metrics.ItemsProcessed.WithLabelValues(string(outcome)).Inc()
	metrics.ItemDuration.WithLabelValues(WorkerName).Observe(time.Since(start).Seconds())
	h.obs.RecordItemProcessed(ctx, string(outcome))
	h.obs.RecordItemDuration(ctx, time.Since(start), string(outcome))
	return err
}

func (h *Handler) process(ctx context.Context, item *workqueue.Item, input *Input) (*Output, error) {
	if err := item.Decode(input); err != nil {
		return nil, errors.NewWorkItemError("Invalid work item data", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	return h.service.Execute(ctx, input)
}

func (h *Handler) recordFailure(item *workqueue.Item, err error, summary *Summary) {
	code := errors.CodeOf(err)
	metrics.ItemsFailed.WithLabelValues(string(code), errors.GetErrorCategory(code)).Inc()
	summary.Failures = append(summary.Failures, Failure{
		Reference: item.GetReference(),
		Code:      string(code),
		Message:   errors.Message(err),
	})
}

func (h *Handler) notify(ctx context.Context, summary *Summary, aborted error) {
	runSummary := summary.RunSummary(h.config.ProcessName, aborted)
	if err := h.notifier.NotifyRun(context.WithoutCancel(ctx), runSummary); err != nil {
		h.logger.Warn("Failed to send run summary notification", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) GetConfig() *Config {
	return h.config
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}
