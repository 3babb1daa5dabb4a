package populatequeue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"primary-organization/internal/common/config"
	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/logger"
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

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Organization), args.Error(1)
}

func (m *MockDirectory) ListCitizens(ctx context.Context, org models.Organization) ([]models.Citizen, error) {
	args := m.Called(ctx, org)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Citizen), args.Error(1)
}

type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Add(ctx context.Context, data interface{}, reference string) error {
	return m.Called(ctx, data, reference).Error(0)
}

func (m *MockQueue) Clear(ctx context.Context, status workqueue.Status) error {
	return m.Called(ctx, status).Error(0)
}

func (m *MockQueue) Next(ctx context.Context) (*workqueue.Item, error) {
	return nil, workqueue.ErrEmpty
}

func (m *MockQueue) Complete(ctx context.Context, item *workqueue.Item) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockQueue) Fail(ctx context.Context, item *workqueue.Item, message string) error {
	return m.Called(ctx, item, message).Error(0)
}

// ==========================
// Helpers
// ==========================

var (
	klinikA = models.Organization{ID: 1, Name: "Klinik A"}
	klinikB = models.Organization{ID: 2, Name: "Klinik B"}
)

func citizen(id int64, idType, identifier string) models.Citizen {
	return models.Citizen{
		ID:                id,
		PatientIdentifier: models.PatientIdentifier{Type: idType, Identifier: identifier},
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	cfg.Approved = []string{"Klinik A"}
	cfg.ExcludedIdentifiers = []string{"221354-1242"}
	return cfg
}

func newRedisQueue(t *testing.T) *workqueue.RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return workqueue.NewRedisQueue(client, "primary-organization")
}

func newTestHandler(t *testing.T, dir Directory, q workqueue.Queue, cfg *Config) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: cfg,
		Logger:       logger.NewTestLogger(t),
		Directory:    dir,
		Queue:        q,
	})
	require.NoError(t, err)
	return h
}

func drainPayloads(t *testing.T, q workqueue.Queue) []models.WorkItemPayload {
	t.Helper()
	var out []models.WorkItemPayload
	_, err := workqueue.Drain(context.Background(), q, func(ctx context.Context, item *workqueue.Item) error {
		var p models.WorkItemPayload
		require.NoError(t, item.Decode(&p))
		out = append(out, p)
		return nil
	})
	require.NoError(t, err)
	return out
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
			opts: HandlerOptions{CustomConfig: testConfig(), Directory: &MockDirectory{}, Queue: &MockQueue{}},
		},
		{
			name: "app config",
			opts: HandlerOptions{
				AppConfig: &config.Config{Organizations: config.OrganizationsConfig{
					Approved:       []string{"Klinik A"},
					IdentifierType: "cpr",
				}},
				Directory: &MockDirectory{},
				Queue:     &MockQueue{},
			},
		},
		{
			name: "approved from registry only",
			opts: HandlerOptions{
				AppConfig: &config.Config{},
				Approved:  []string{"Klinik A"},
				Directory: &MockDirectory{},
				Queue:     &MockQueue{},
			},
		},
		{
			name:    "no approved organizations",
			opts:    HandlerOptions{AppConfig: &config.Config{}, Directory: &MockDirectory{}, Queue: &MockQueue{}},
			wantErr: true,
		},
		{
			name:    "missing directory",
			opts:    HandlerOptions{CustomConfig: testConfig(), Queue: &MockQueue{}},
			wantErr: true,
		},
		{
			name:    "missing queue",
			opts:    HandlerOptions{CustomConfig: testConfig(), Directory: &MockDirectory{}},
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
			assert.Contains(t, h.GetConfig().Approved, "Klinik A")
		})
	}
}

func TestCreateConfigFromAppConfig(t *testing.T) {
	cfg := createConfigFromAppConfig(&config.Config{
		Organizations: config.OrganizationsConfig{
			Approved:            []string{"Klinik A", "Klinik B"},
			ExcludedIdentifiers: []string{"010858-9995"},
		},
		Workers: map[string]config.WorkerConfig{
			WorkerName: {Enabled: false, Timeout: 5000},
		},
	})

	assert.False(t, cfg.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "cpr", cfg.IdentifierType)
	assert.Equal(t, []string{"Klinik A", "Klinik B"}, cfg.Approved)
	assert.Equal(t, []string{"010858-9995"}, cfg.ExcludedIdentifiers)
	assert.Equal(t, workqueue.StatusNew, cfg.ClearStatus)
}

// ==========================
// Run
// ==========================

func TestHandler_Run_EnqueuesApprovedCitizens(t *testing.T) {
	dir := &MockDirectory{}
	dir.On("ListOrganizations", mock.Anything).Return([]models.Organization{klinikA, klinikB}, nil)
	dir.On("ListCitizens", mock.Anything, klinikA).Return([]models.Citizen{
		citizen(10, "cpr", "010101-1234"),
		citizen(11, "cpr", "020202-2345"),
	}, nil)

	q := newRedisQueue(t)
	h := newTestHandler(t, dir, q, testConfig())

	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.OrganizationsMatched)
	assert.Equal(t, 2, summary.CitizensSeen)
	assert.Equal(t, 2, summary.Enqueued)
	dir.AssertNotCalled(t, "ListCitizens", mock.Anything, klinikB)

	assert.Equal(t, []models.WorkItemPayload{
		{CPR: "010101-1234", Organization: "Klinik A"},
		{CPR: "020202-2345", Organization: "Klinik A"},
	}, drainPayloads(t, q))
}

func TestHandler_Run_SkipsExcludedAndNonCPR(t *testing.T) {
	dir := &MockDirectory{}
	dir.On("ListOrganizations", mock.Anything).Return([]models.Organization{klinikA}, nil)
	dir.On("ListCitizens", mock.Anything, klinikA).Return([]models.Citizen{
		citizen(10, "cpr", "221354-1242"),
		citizen(11, "xeno", "XENO-1"),
		citizen(12, "cpr", "010101-1234"),
	}, nil)

	q := newRedisQueue(t)
	h := newTestHandler(t, dir, q, testConfig())

	summary, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.CitizensSeen)
	assert.Equal(t, 1, summary.Enqueued)
	assert.Equal(t, 1, summary.SkippedExcluded)
	assert.Equal(t, 1, summary.SkippedIdentifierType)

	payloads := drainPayloads(t, q)
	require.Len(t, payloads, 1)
	assert.Equal(t, "010101-1234", payloads[0].CPR)
}

func TestHandler_Run_DuplicateIsLoggedNotFatal(t *testing.T) {
	dir := &MockDirectory{}
	dir.On("ListOrganizations", mock.Anything).Return([]models.Organization{klinikA}, nil)
	dir.On("ListCitizens", mock.Anything, klinikA).Return([]models.Citizen{
		citizen(10, "cpr", "010101-1234"),
		citizen(11, "cpr", "020202-2345"),
	}, nil)

	q := &MockQueue{}
	q.On("Clear", mock.Anything, workqueue.StatusNew).Return(nil)
	q.On("Add", mock.Anything, mock.Anything, "010101-1234").Return(errors.NewDuplicateWorkItemError("010101-1234"))
	q.On("Add", mock.Anything, models.WorkItemPayload{CPR: "020202-2345", Organization: "Klinik A"}, "020202-2345").Return(nil)

	h := newTestHandler(t, dir, q, testConfig())

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Enqueued)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 0, summary.EnqueueFailed)
	q.AssertExpectations(t)
}

func TestHandler_Run_AddFailureContinues(t *testing.T) {
	dir := &MockDirectory{}
	dir.On("ListOrganizations", mock.Anything).Return([]models.Organization{klinikA}, nil)
	dir.On("ListCitizens", mock.Anything, klinikA).Return([]models.Citizen{
		citizen(10, "cpr", "010101-1234"),
		citizen(11, "cpr", "020202-2345"),
	}, nil)

	q := &MockQueue{}
	q.On("Clear", mock.Anything, workqueue.StatusNew).Return(nil)
	q.On("Add", mock.Anything, mock.Anything, "010101-1234").Return(errors.NewQueueConnectionError("ats", fmt.Errorf("503")))
	q.On("Add", mock.Anything, mock.Anything, "020202-2345").Return(nil)

	h := newTestHandler(t, dir, q, testConfig())

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Enqueued)
	assert.Equal(t, 1, summary.EnqueueFailed)
}

func TestHandler_Run_ClearsNewItemsFirst(t *testing.T) {
	q := newRedisQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Add(ctx, models.WorkItemPayload{CPR: "030303-3456", Organization: "Klinik A"}, "030303-3456"))

	dir := &MockDirectory{}
	dir.On("ListOrganizations", mock.Anything).Return([]models.Organization{klinikA}, nil)
	dir.On("ListCitizens", mock.Anything, klinikA).Return([]models.Citizen{citizen(10, "cpr", "010101-1234")}, nil)

	h := newTestHandler(t, dir, q, testConfig())
	_, err := h.Run(ctx)
	require.NoError(t, err)

	payloads := drainPayloads(t, q)
	require.Len(t, payloads, 1)
	assert.Equal(t, "010101-1234", payloads[0].CPR)
}

func TestHandler_Run_FatalErrors(t *testing.T) {
	t.Run("clear failure aborts before listing", func(t *testing.T) {
		dir := &MockDirectory{}
		q := &MockQueue{}
		q.On("Clear", mock.Anything, workqueue.StatusNew).Return(errors.NewQueueConnectionError("ats", fmt.Errorf("refused")))

		h := newTestHandler(t, dir, q, testConfig())
		_, err := h.Run(context.Background())

		assert.True(t, errors.IsCode(err, errors.ErrCodeQueueConnection))
		dir.AssertNotCalled(t, "ListOrganizations", mock.Anything)
	})

	t.Run("directory failure aborts", func(t *testing.T) {
		dir := &MockDirectory{}
		dir.On("ListOrganizations", mock.Anything).Return(nil, errors.NewExternalServiceError("nexus", fmt.Errorf("502")))
		q := &MockQueue{}
		q.On("Clear", mock.Anything, workqueue.StatusNew).Return(nil)

		h := newTestHandler(t, dir, q, testConfig())
		_, err := h.Run(context.Background())

		assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
		q.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("citizen listing failure aborts", func(t *testing.T) {
		dir := &MockDirectory{}
		dir.On("ListOrganizations", mock.Anything).Return([]models.Organization{klinikA}, nil)
		dir.On("ListCitizens", mock.Anything, klinikA).Return(nil, errors.NewTimeoutError("nexus", context.DeadlineExceeded))
		q := &MockQueue{}
		q.On("Clear", mock.Anything, workqueue.StatusNew).Return(nil)

		h := newTestHandler(t, dir, q, testConfig())
		summary, err := h.Run(context.Background())

		assert.Error(t, err)
		assert.Equal(t, 1, summary.OrganizationsMatched)
	})
}

func TestHandler_Run_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	q := &MockQueue{}

	h := newTestHandler(t, &MockDirectory{}, q, cfg)
	summary, err := h.Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, summary.Enqueued)
	q.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
}

func TestSummary_JSON(t *testing.T) {
	data, err := json.Marshal(Summary{Enqueued: 2, SkippedExcluded: 1})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"enqueued":2`)
	assert.Contains(t, string(data), `"skippedExcluded":1`)
}
