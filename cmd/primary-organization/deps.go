package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"primary-organization/internal/common/ats"
	"primary-organization/internal/common/auth"
	"primary-organization/internal/common/aws"
	"primary-organization/internal/common/camunda"
	"primary-organization/internal/common/config"
	"primary-organization/internal/common/credentials"
	"primary-organization/internal/common/database"
	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/nexus"
	"primary-organization/internal/common/notify"
	"primary-organization/internal/common/tracking"
	"primary-organization/internal/common/workqueue"
	"primary-organization/pkg/registry"
)

const connectRetries = 5

var connectInitialInterval = 2 * time.Second

// Dependencies are the external collaborators of both phases.
type Dependencies struct {
	Queue    workqueue.Queue
	Nexus    *nexus.Client
	Tracker  tracking.Tracker
	Notifier notify.Notifier
	Approved []string

	closers []func() error
}

func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

// retryWithBackoff retries operation with exponential backoff until it
// succeeds, maxRetries is exhausted or ctx is done.
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries uint64, log logger.Logger, operationName string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = connectInitialInterval
	bo.MaxInterval = 30 * time.Second

	b := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)
	err := backoff.RetryNotify(operation, b, func(err error, next time.Duration) {
		log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
			"error":       err.Error(),
			"nextRetryIn": next.String(),
		})
	})
	if err != nil {
		return fmt.Errorf("%s failed: %w", operationName, err)
	}
	log.Info(operationName+" succeeded", nil)
	return nil
}

func buildDependencies(ctx context.Context, cfg *config.Config, log logger.Logger, populate bool) (*Dependencies, error) {
	deps := &Dependencies{}
	if err := deps.connect(ctx, cfg, log, populate); err != nil {
		deps.Close()
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) connect(ctx context.Context, cfg *config.Config, log logger.Logger, populate bool) error {
	var (
		atsClient *ats.Client
		err       error
	)
	if cfg.Queue.Backend == config.QueueBackendATS || cfg.Credentials.Source == config.CredentialSourceATS {
		atsClient = ats.NewClient(cfg.AutomationServer)
		if err = retryWithBackoff(ctx, func() error { return atsClient.Ping(ctx) }, connectRetries, log, "Automation server connection"); err != nil {
			return err
		}
	}

	if d.Queue, err = connectQueue(ctx, cfg, atsClient, d, log); err != nil {
		return err
	}

	var store credentials.Store
	if cfg.Credentials.Source == config.CredentialSourceATS {
		store = atsClient
	} else {
		store = credentials.NewStaticStore(cfg.Credentials)
	}

	if d.Nexus, err = connectNexus(ctx, cfg, store); err != nil {
		return err
	}

	if populate {
		d.Approved, err = loadApproved(cfg, log)
		return err
	}

	if d.Tracker, err = connectTracker(ctx, cfg, store, d, log); err != nil {
		return err
	}
	d.Notifier, err = buildNotifier(ctx, cfg, log)
	return err
}

func connectQueue(ctx context.Context, cfg *config.Config, atsClient *ats.Client, deps *Dependencies, log logger.Logger) (workqueue.Queue, error) {
	switch cfg.Queue.Backend {
	case config.QueueBackendATS:
		return atsClient.Workqueue(cfg.AutomationServer.EffectiveWorkqueueID()), nil

	case config.QueueBackendRedis:
		rc := database.NewRedis(cfg.Queue.Redis)
		deps.closers = append(deps.closers, rc.Close)
		if err := retryWithBackoff(ctx, func() error { return rc.Ping(ctx) }, connectRetries, log, "Redis connection"); err != nil {
			return nil, errors.NewQueueConnectionError("redis", err)
		}
		return workqueue.NewRedisQueue(rc.Client, cfg.Queue.Redis.Name), nil

	case config.QueueBackendZeebe:
		zc := cfg.Queue.Zeebe
		var client *camunda.Client
		err := retryWithBackoff(ctx, func() error {
			var err error
			client, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         zc.GatewayAddress,
				UsePlaintextConnection: zc.UsePlaintextConnection,
				RequestTimeout:         config.GetDuration(zc.RequestTimeout),
			})
			return err
		}, connectRetries, log, "Zeebe client initialization")
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		return camunda.NewQueue(client, camunda.QueueConfig{
			MessageName:    zc.MessageName,
			JobType:        zc.JobType,
			WorkerName:     zc.WorkerName,
			JobTimeout:     config.GetDuration(zc.JobTimeout),
			RequestTimeout: config.GetDuration(zc.RequestTimeout),
			MessageTTL:     config.GetDuration(zc.MessageTTL),
		}, log), nil
	}
	return nil, errors.NewConfigurationError("Unknown queue backend", cfg.Queue.Backend)
}

// connectNexus resolves the Nexus credential and builds an authorized client.
// The credential carries the instance name, the client id as username and
// the client secret as password.
func connectNexus(ctx context.Context, cfg *config.Config, store credentials.Store) (*nexus.Client, error) {
	cred, err := store.Get(ctx, cfg.Credentials.Nexus)
	if err != nil {
		return nil, err
	}
	instance, err := cred.Require("instance")
	if err != nil {
		return nil, err
	}

	timeout := config.GetDuration(cfg.Nexus.Timeout)
	keycloak := auth.NewKeycloakClient(ctx, auth.KeycloakConfig{
		TokenURL:     cfg.Nexus.ResolveTokenURL(instance),
		ClientID:     cred.Username,
		ClientSecret: cred.Password,
		Timeout:      timeout,
	})
	if _, err := keycloak.Token(); err != nil {
		return nil, err
	}

	return nexus.NewClient(cfg.Nexus.ResolveBaseURL(instance), timeout, keycloak.HTTPClient()), nil
}

func connectTracker(ctx context.Context, cfg *config.Config, store credentials.Store, deps *Dependencies, log logger.Logger) (tracking.Tracker, error) {
	tc := cfg.Tracking
	switch tc.Backend {
	case config.TrackingBackendPostgres:
		pgCfg := tc.Postgres
		cred, err := store.Get(ctx, cfg.Credentials.Tracking)
		switch {
		case err == nil:
			pgCfg.User = cred.Username
			pgCfg.Password = cred.Password
		case errors.IsCode(err, errors.ErrCodeCredentialNotFound) && pgCfg.User != "":
			log.Warn("Tracking credential not found, using configured database user", map[string]interface{}{
				"credential": cfg.Credentials.Tracking,
			})
		default:
			return nil, err
		}

		pg, err := database.NewPostgres(pgCfg)
		if err != nil {
			return nil, errors.NewTrackingFailedError(err)
		}
		deps.closers = append(deps.closers, pg.Close)
		if err := retryWithBackoff(ctx, func() error { return pg.Ping(ctx) }, connectRetries, log, "PostgreSQL connection"); err != nil {
			return nil, errors.NewTrackingFailedError(err)
		}
		return tracking.NewPostgresTracker(pg.DB, tc.ProcessName), nil

	case config.TrackingBackendElasticsearch:
		es, err := database.NewElasticsearch(tc.Elasticsearch)
		if err != nil {
			return nil, errors.NewTrackingFailedError(err)
		}
		if err := retryWithBackoff(ctx, func() error { return es.Ping(ctx) }, connectRetries, log, "Elasticsearch connection"); err != nil {
			return nil, errors.NewTrackingFailedError(err)
		}
		return tracking.NewElasticsearchTracker(es.Client, tc.Elasticsearch.Index, tc.ProcessName), nil

	case config.TrackingBackendNone:
		return tracking.NewNoopTracker(log), nil
	}
	return nil, errors.NewConfigurationError("Unknown tracking backend", tc.Backend)
}

func buildNotifier(ctx context.Context, cfg *config.Config, log logger.Logger) (notify.Notifier, error) {
	nc := cfg.Notifications
	if !nc.Enabled {
		return notify.NoopNotifier{}, nil
	}

	var (
		sesClient *aws.SESClient
		snsClient *aws.SNSClient
		err       error
	)
	if nc.Email.Enabled {
		if sesClient, err = aws.NewSESClient(ctx, nc.AWS.Region); err != nil {
			return nil, errors.NewNotificationSendFailedError("email", err)
		}
	}
	if nc.SNS.Enabled {
		if snsClient, err = aws.NewSNSClient(ctx, nc.AWS.Region); err != nil {
			return nil, errors.NewNotificationSendFailedError("sns", err)
		}
	}

	return notify.NewAWSNotifier(sesClient, snsClient, notify.Config{
		FromEmail: nc.Email.FromEmail,
		To:        nc.Email.To,
		TopicARN:  nc.SNS.TopicARN,
	}, log), nil
}

func loadApproved(cfg *config.Config, log logger.Logger) ([]string, error) {
	path := cfg.Organizations.ApprovedFile
	if path == "" {
		return nil, nil
	}
	names, err := registry.LoadApproved(path)
	if err != nil {
		return nil, errors.NewConfigurationError("Failed to load approved organizations", err.Error())
	}
	log.Info("Loaded approved organizations", map[string]interface{}{
		"file":  path,
		"count": len(names),
	})
	return names, nil
}
