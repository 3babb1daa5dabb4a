package setprimaryorganization

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"primary-organization/internal/common/config"
	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/notify"
	"primary-organization/internal/common/workqueue"
	"primary-organization/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockCitizens struct {
	mock.Mock
}

func (m *MockCitizens) GetCitizen(ctx context.Context, cpr string) (*models.Citizen, error) {
	args := m.Called(ctx, cpr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Citizen), args.Error(1)
}

func (m *MockCitizens) ListRelations(ctx context.Context, citizen models.Citizen) ([]models.OrganizationRelation, error) {
	args := m.Called(ctx, citizen)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrganizationRelation), args.Error(1)
}

func (m *MockCitizens) UpdateRelation(ctx context.Context, citizen models.Citizen, relation models.OrganizationRelation, primary bool, endDate *time.Time) (*models.OrganizationRelation, error) {
	args := m.Called(ctx, citizen, relation, primary, endDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrganizationRelation), args.Error(1)
}

type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) TrackTask(ctx context.Context, label string) error {
	return m.Called(ctx, label).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyRun(ctx context.Context, summary notify.RunSummary) error {
	return m.Called(ctx, summary).Error(0)
}

type MockService struct {
	mock.Mock
}

func (m *MockService) Execute(ctx context.Context, input *Input) (*Output, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Output), args.Error(1)
}

// memQueue keeps finalized items by reference.
type memQueue struct {
	pending   []*workqueue.Item
	completed map[string]bool
	failed    map[string]string
}

func newMemQueue(payloads ...interface{}) *memQueue {
	q := &memQueue{completed: map[string]bool{}, failed: map[string]string{}}
	for i, p := range payloads {
		raw, _ := json.Marshal(p)
		ref := fmt.Sprintf("item-%d", i)
		if wp, ok := p.(models.WorkItemPayload); ok {
			ref = wp.Reference()
		}
		q.pending = append(q.pending, workqueue.NewItem(q, fmt.Sprint(i+1), ref, raw))
	}
	return q
}

func (q *memQueue) Add(ctx context.Context, data interface{}, reference string) error { return nil }

func (q *memQueue) Clear(ctx context.Context, status workqueue.Status) error { return nil }

func (q *memQueue) Next(ctx context.Context) (*workqueue.Item, error) {
	if len(q.pending) == 0 {
		return nil, workqueue.ErrEmpty
	}
	item := q.pending[0]
	q.pending = q.pending[1:]
	return item, nil
}

func (q *memQueue) Complete(ctx context.Context, item *workqueue.Item) error {
	q.completed[item.Reference] = true
	return nil
}

func (q *memQueue) Fail(ctx context.Context, item *workqueue.Item, message string) error {
	q.failed[item.Reference] = message
	return nil
}

// ==========================
// Helpers
// ==========================

const taskLabel = "Angivelse af borgers primære organisation"

var (
	citizenA = &models.Citizen{
		ID:                42,
		PatientIdentifier: models.PatientIdentifier{Type: "cpr", Identifier: "010101-1234"},
	}
	payloadA = models.WorkItemPayload{CPR: "010101-1234", Organization: "Klinik A"}
)

func relation(id int64, org string, primary bool) models.OrganizationRelation {
	return models.OrganizationRelation{
		ID:                  id,
		Organization:        models.Organization{ID: id * 10, Name: org},
		PrimaryOrganization: primary,
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	cfg.TaskLabel = taskLabel
	return cfg
}

type fixture struct {
	citizens *MockCitizens
	tracker  *MockTracker
	notifier *MockNotifier
}

func newFixture() *fixture {
	f := &fixture{citizens: &MockCitizens{}, tracker: &MockTracker{}, notifier: &MockNotifier{}}
	f.notifier.On("NotifyRun", mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

func (f *fixture) handler(t *testing.T, q workqueue.Queue) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: testConfig(),
		Logger:       logger.NewTestLogger(t),
		Queue:        q,
		Citizens:     f.citizens,
		Tracker:      f.tracker,
		Notifier:     f.notifier,
	})
	require.NoError(t, err)
	return h
}

// ==========================
// NewHandler
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	tests := []struct {
		name    string
		opts    HandlerOptions
		wantErr bool
	}{
		{
			name: "custom config",
			opts: HandlerOptions{CustomConfig: testConfig(), Queue: newMemQueue(), Citizens: &MockCitizens{}},
		},
		{
			name: "app config",
			opts: HandlerOptions{
				AppConfig: &config.Config{Tracking: config.TrackingConfig{TaskLabel: taskLabel}},
				Queue:     newMemQueue(),
				Citizens:  &MockCitizens{},
			},
		},
		{
			name: "service override without citizens",
			opts: HandlerOptions{CustomConfig: testConfig(), Queue: newMemQueue(), Service: &MockService{}},
		},
		{
			name:    "missing task label",
			opts:    HandlerOptions{AppConfig: &config.Config{}, Queue: newMemQueue(), Citizens: &MockCitizens{}},
			wantErr: true,
		},
		{
			name:    "missing queue",
			opts:    HandlerOptions{CustomConfig: testConfig(), Citizens: &MockCitizens{}},
			wantErr: true,
		},
		{
			name:    "missing citizens",
			opts:    HandlerOptions{CustomConfig: testConfig(), Queue: newMemQueue()},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, h)
				return
			}
			require.NoError(t, err)
			assert.True(t, h.IsEnabled())
			assert.Equal(t, taskLabel, h.GetConfig().TaskLabel)
		})
	}
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	cfg := createConfigFromAppConfig(&config.Config{
		Tracking: config.TrackingConfig{ProcessName: "Primær organisation", TaskLabel: taskLabel},
		Workers:  map[string]config.WorkerConfig{WorkerName: {Enabled: true, Timeout: 2500}},
	})

	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "Primær organisation", cfg.ProcessName)
	assert.Equal(t, taskLabel, cfg.TaskLabel)
}

// ==========================
// Service
// ==========================

func TestService_Execute(t *testing.T) {
	t.Run("sets non-primary relation as primary", func(t *testing.T) {
		f := newFixture()
		rel := relation(7, "Klinik A", false)
		f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(citizenA, nil)
		f.citizens.On("ListRelations", mock.Anything, *citizenA).Return([]models.OrganizationRelation{relation(6, "Klinik B", true), rel}, nil)
		f.citizens.On("UpdateRelation", mock.Anything, *citizenA, rel, true, (*time.Time)(nil)).Return(&rel, nil).Once()
		f.tracker.On("TrackTask", mock.Anything, taskLabel).Return(nil).Once()

		svc := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), Citizens: f.citizens, Tracker: f.tracker}, testConfig())
		out, err := svc.Execute(context.Background(), &payloadA)

		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSucceeded, out.Outcome)
		assert.Equal(t, int64(7), out.RelationID)
		assert.Equal(t, 2, out.RelationsFound)
		f.citizens.AssertNumberOfCalls(t, "UpdateRelation", 1)
		f.tracker.AssertNumberOfCalls(t, "TrackTask", 1)
	})

	t.Run("already primary is skipped", func(t *testing.T) {
		f := newFixture()
		f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(citizenA, nil)
		f.citizens.On("ListRelations", mock.Anything, *citizenA).Return([]models.OrganizationRelation{relation(7, "Klinik A", true)}, nil)

		svc := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), Citizens: f.citizens, Tracker: f.tracker}, testConfig())
		out, err := svc.Execute(context.Background(), &payloadA)

		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSkippedAlreadyPrimary, out.Outcome)
		f.citizens.AssertNotCalled(t, "UpdateRelation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.tracker.AssertNotCalled(t, "TrackTask", mock.Anything, mock.Anything)
	})

	t.Run("no relation is skipped", func(t *testing.T) {
		f := newFixture()
		f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(citizenA, nil)
		f.citizens.On("ListRelations", mock.Anything, *citizenA).Return([]models.OrganizationRelation{relation(6, "Klinik B", false)}, nil)

		svc := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), Citizens: f.citizens, Tracker: f.tracker}, testConfig())
		out, err := svc.Execute(context.Background(), &payloadA)

		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSkippedNoRelation, out.Outcome)
		f.citizens.AssertNotCalled(t, "UpdateRelation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.tracker.AssertNotCalled(t, "TrackTask", mock.Anything, mock.Anything)
	})

	t.Run("invalid payload", func(t *testing.T) {
		tests := []struct {
			name  string
			input Input
		}{
			{"empty cpr", Input{Organization: "Klinik A"}},
			{"malformed cpr", Input{CPR: "01011-234", Organization: "Klinik A"}},
			{"empty organization", Input{CPR: "0101011234"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture()
				svc := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), Citizens: f.citizens, Tracker: f.tracker}, testConfig())

				_, err := svc.Execute(context.Background(), &tt.input)

				assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
				assert.True(t, errors.IsSoft(err))
				f.citizens.AssertNotCalled(t, "GetCitizen", mock.Anything, mock.Anything)
			})
		}
	})
}

func TestGetInputSchema(t *testing.T) {
	assert.NoError(t, validateInput(&Input{CPR: "0101011234", Organization: "Klinik A"}))
	assert.NoError(t, validateInput(&Input{CPR: "010101-1234", Organization: "Klinik A"}))
	assert.ElementsMatch(t, []string{"cpr", "organization"}, GetInputSchema().Required)
}

// ==========================
// Run
// ==========================

func TestHandler_Run_CompletesEveryOutcome(t *testing.T) {
	f := newFixture()
	citizenB := &models.Citizen{ID: 43, PatientIdentifier: models.PatientIdentifier{Type: "cpr", Identifier: "020202-2345"}}
	citizenC := &models.Citizen{ID: 44, PatientIdentifier: models.PatientIdentifier{Type: "cpr", Identifier: "030303-3456"}}
	rel := relation(7, "Klinik A", false)

	f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(citizenA, nil)
	f.citizens.On("GetCitizen", mock.Anything, "020202-2345").Return(citizenB, nil)
	f.citizens.On("GetCitizen", mock.Anything, "030303-3456").Return(citizenC, nil)
	f.citizens.On("ListRelations", mock.Anything, *citizenA).Return([]models.OrganizationRelation{rel}, nil)
	f.citizens.On("ListRelations", mock.Anything, *citizenB).Return([]models.OrganizationRelation{relation(8, "Klinik A", true)}, nil)
	f.citizens.On("ListRelations", mock.Anything, *citizenC).Return([]models.OrganizationRelation{}, nil)
	f.citizens.On("UpdateRelation", mock.Anything, *citizenA, rel, true, (*time.Time)(nil)).Return(&rel, nil).Once()
	f.tracker.On("TrackTask", mock.Anything, taskLabel).Return(nil).Once()

	q := newMemQueue(
		payloadA,
		models.WorkItemPayload{CPR: "020202-2345", Organization: "Klinik A"},
		models.WorkItemPayload{CPR: "030303-3456", Organization: "Klinik A"},
	)

	summary, err := f.handler(t, q).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.SkippedAlreadyPrimary)
	assert.Equal(t, 1, summary.SkippedNoRelation)
	assert.Zero(t, summary.Failed)
	assert.Len(t, q.completed, 3)
	assert.Empty(t, q.failed)
	f.tracker.AssertExpectations(t)
}

func TestHandler_Run_SoftErrorFailsItemAndContinues(t *testing.T) {
	f := newFixture()
	citizenB := &models.Citizen{ID: 43, PatientIdentifier: models.PatientIdentifier{Type: "cpr", Identifier: "020202-2345"}}

	f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(nil, errors.NewCitizenNotFoundError("010101-1234"))
	f.citizens.On("GetCitizen", mock.Anything, "020202-2345").Return(citizenB, nil)
	f.citizens.On("ListRelations", mock.Anything, *citizenB).Return([]models.OrganizationRelation{}, nil)

	q := newMemQueue(payloadA, models.WorkItemPayload{CPR: "020202-2345", Organization: "Klinik A"})

	summary, err := f.handler(t, q).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.SkippedNoRelation)
	assert.Contains(t, q.failed["010101-1234"], "010101-1234")
	assert.True(t, q.completed["020202-2345"])

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "CITIZEN_NOT_FOUND", summary.Failures[0].Code)

	f.notifier.AssertCalled(t, "NotifyRun", mock.Anything, mock.MatchedBy(func(s notify.RunSummary) bool {
		return s.Failed == 1 && s.Aborted == nil && len(s.Failures) == 1
	}))
}

func TestHandler_Run_InvalidItemDataIsSoft(t *testing.T) {
	f := newFixture()
	q := newMemQueue("not an object", payloadA)
	f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(citizenA, nil)
	f.citizens.On("ListRelations", mock.Anything, *citizenA).Return([]models.OrganizationRelation{}, nil)

	summary, err := f.handler(t, q).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, q.failed, "item-0")
	assert.True(t, q.completed["010101-1234"])
}

func TestHandler_Run_FatalErrorAborts(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		code  errors.ErrorCode
	}{
		{
			name: "nexus unavailable",
			setup: func(f *fixture) {
				f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(nil, errors.NewExternalServiceError("nexus", fmt.Errorf("503")))
			},
			code: errors.ErrCodeExternalService,
		},
		{
			name: "tracking failure",
			setup: func(f *fixture) {
				rel := relation(7, "Klinik A", false)
				f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(citizenA, nil)
				f.citizens.On("ListRelations", mock.Anything, *citizenA).Return([]models.OrganizationRelation{rel}, nil)
				f.citizens.On("UpdateRelation", mock.Anything, *citizenA, rel, true, (*time.Time)(nil)).Return(&rel, nil)
				f.tracker.On("TrackTask", mock.Anything, taskLabel).Return(errors.NewTrackingFailedError(fmt.Errorf("connection reset")))
			},
			code: errors.ErrCodeTrackingFailed,
		},
		{
			name: "unclassified error",
			setup: func(f *fixture) {
				f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(nil, fmt.Errorf("unexpected"))
			},
			code: errors.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			q := newMemQueue(payloadA, models.WorkItemPayload{CPR: "020202-2345", Organization: "Klinik A"})

			summary, err := f.handler(t, q).Run(context.Background())

			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Equal(t, 1, summary.Processed)
			assert.Equal(t, 1, summary.Failed)
			assert.NotEmpty(t, q.failed["010101-1234"])
			assert.Len(t, q.pending, 1, "second item must stay pending")
			f.citizens.AssertNotCalled(t, "GetCitizen", mock.Anything, "020202-2345")

			f.notifier.AssertCalled(t, "NotifyRun", mock.Anything, mock.MatchedBy(func(s notify.RunSummary) bool {
				return s.Aborted != nil
			}))
		})
	}
}

func TestHandler_Run_PanicFailsItem(t *testing.T) {
	svc := &MockService{}
	svc.On("Execute", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		panic("nil relation")
	})

	q := newMemQueue(payloadA)
	h, err := NewHandler(HandlerOptions{
		CustomConfig: testConfig(),
		Logger:       logger.NewTestLogger(t),
		Queue:        q,
		Service:      svc,
	})
	require.NoError(t, err)

	assert.Panics(t, func() { _, _ = h.Run(context.Background()) })
	assert.Equal(t, "panic: nil relation", q.failed["010101-1234"])
}

func TestHandler_Run_NotificationErrorIsNotFatal(t *testing.T) {
	f := &fixture{citizens: &MockCitizens{}, tracker: &MockTracker{}, notifier: &MockNotifier{}}
	f.notifier.On("NotifyRun", mock.Anything, mock.Anything).Return(errors.NewNotificationSendFailedError("email", fmt.Errorf("throttled")))
	f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(nil, errors.NewCitizenNotFoundError("010101-1234"))

	summary, err := f.handler(t, newMemQueue(payloadA)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
}

func TestHandler_Run_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	q := newMemQueue(payloadA)

	h, err := NewHandler(HandlerOptions{CustomConfig: cfg, Logger: logger.NewTestLogger(t), Queue: q, Citizens: &MockCitizens{}})
	require.NoError(t, err)

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Len(t, q.pending, 1)
}

func TestHandler_Run_RedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := workqueue.NewRedisQueue(client, "primary-organization")

	ctx := context.Background()
	require.NoError(t, q.Add(ctx, payloadA, payloadA.Reference()))
	require.NoError(t, q.Add(ctx, models.WorkItemPayload{CPR: "020202-2345", Organization: "Klinik A"}, "020202-2345"))

	f := newFixture()
	f.citizens.On("GetCitizen", mock.Anything, "010101-1234").Return(nil, errors.NewCitizenNotFoundError("010101-1234"))
	f.citizens.On("GetCitizen", mock.Anything, "020202-2345").Return(citizenA, nil)
	f.citizens.On("ListRelations", mock.Anything, *citizenA).Return([]models.OrganizationRelation{relation(7, "Klinik A", true)}, nil)

	summary, err := f.handler(t, q).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)

	status := func(ref string) (workqueue.Status, string) {
		id, err := client.HGet(ctx, "workqueue:primary-organization:refs", ref).Result()
		require.NoError(t, err)
		st, msg, err := q.Get(ctx, id)
		require.NoError(t, err)
		return st, msg
	}

	st, msg := status("010101-1234")
	assert.Equal(t, workqueue.StatusFailed, st)
	assert.Contains(t, msg, "010101-1234")

	st, _ = status("020202-2345")
	assert.Equal(t, workqueue.StatusCompleted, st)
}
