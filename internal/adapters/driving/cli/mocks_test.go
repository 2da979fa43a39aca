package cli

import (
	"bytes"
	"context"
	"net/http"
	"sort"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sercha-feed/internal/core/domain"
)

// execute runs rootCmd with fresh flag state and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags() {
	connectorType = ""
	connectorSchedule = ""
	connectorConfig = map[string]string{}
	historyLimit = 20
	runOnce = false
	runMetricsAddr = ""
	runWatchConfig = true
	for _, c := range []*cobra.Command{connectorAddCmd, historyCmd, runCmd} {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	}
}

// withServices swaps the package services for the duration of a test.
func withServices(t *testing.T, s Services) {
	t.Helper()
	old := Services{
		Connectors:  connectorService,
		Settings:    settingsService,
		Scheduler:   scheduler,
		Metrics:     metricsHandler,
		WatchConfig: configWatcher,
	}
	SetServices(s)
	t.Cleanup(func() { SetServices(old) })
}

// mockConnectorService implements driving.ConnectorService for testing.
type mockConnectorService struct {
	connectors map[string]domain.Connector
	schedules  map[string]*domain.Schedule
	history    []domain.TraversalResult
	err        error

	added         domain.Connector
	addedSchedule string
	calls         []string
	historyLimit  int
}

func newMockConnectorService() *mockConnectorService {
	return &mockConnectorService{
		connectors: make(map[string]domain.Connector),
		schedules:  make(map[string]*domain.Schedule),
	}
}

func (m *mockConnectorService) Add(_ context.Context, c domain.Connector, schedule string) error {
	if m.err != nil {
		return m.err
	}
	m.added = c
	m.addedSchedule = schedule
	m.connectors[c.Name] = c
	return nil
}

func (m *mockConnectorService) Get(_ context.Context, name string) (*domain.Connector, error) {
	c, ok := m.connectors[name]
	if !ok {
		return nil, domain.ErrConnectorNotFound
	}
	return &c, nil
}

func (m *mockConnectorService) List(_ context.Context) ([]domain.Connector, error) {
	if m.err != nil {
		return nil, m.err
	}
	list := make([]domain.Connector, 0, len(m.connectors))
	for _, c := range m.connectors {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *mockConnectorService) GetSchedule(_ context.Context, name string) (*domain.Schedule, error) {
	s, ok := m.schedules[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockConnectorService) SetSchedule(_ context.Context, schedule string) (*domain.Schedule, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, err := domain.ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	m.schedules[s.ConnectorName] = s
	return s, nil
}

func (m *mockConnectorService) record(call string) error {
	m.calls = append(m.calls, call)
	return m.err
}

func (m *mockConnectorService) Pause(_ context.Context, name string) error {
	return m.record("pause " + name)
}

func (m *mockConnectorService) Resume(_ context.Context, name string) error {
	return m.record("resume " + name)
}

func (m *mockConnectorService) Remove(_ context.Context, name string) error {
	return m.record("remove " + name)
}

func (m *mockConnectorService) ResetCheckpoint(_ context.Context, name string) error {
	return m.record("reset " + name)
}

func (m *mockConnectorService) Status(_ context.Context, name string) (*domain.ConnectorStatus, error) {
	return &domain.ConnectorStatus{ConnectorName: name}, nil
}

func (m *mockConnectorService) History(_ context.Context, _ string, limit int) ([]domain.TraversalResult, error) {
	m.historyLimit = limit
	return m.history, m.err
}

func (m *mockConnectorService) SupportedTypes() []string {
	return []string{"filesystem"}
}

// mockScheduler implements driving.TraversalScheduler for testing.
type mockScheduler struct {
	statuses []domain.ConnectorStatus
	err      error

	starts, stops, runOnces int
}

func (m *mockScheduler) Start(_ context.Context) error {
	m.starts++
	return m.err
}

func (m *mockScheduler) Stop() error {
	m.stops++
	return nil
}

func (m *mockScheduler) Tick(_ context.Context) {}

func (m *mockScheduler) RunOnce(_ context.Context) error {
	m.runOnces++
	return m.err
}

func (m *mockScheduler) RemoveConnector(_ context.Context, _ string) error {
	return nil
}

func (m *mockScheduler) Status(_ context.Context, name string) (*domain.ConnectorStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.statuses {
		if m.statuses[i].ConnectorName == name {
			return &m.statuses[i], nil
		}
	}
	return nil, domain.ErrConnectorNotFound
}

func (m *mockScheduler) StatusAll(_ context.Context) ([]domain.ConnectorStatus, error) {
	return m.statuses, m.err
}

// mockSettingsService implements driving.SettingsService for testing.
type mockSettingsService struct {
	keys   []domain.SettingKey
	values map[string]string
	setErr error
}

func (m *mockSettingsService) FeedConfig() (domain.FeedConfig, error) {
	return domain.DefaultFeedConfig(), nil
}

func (m *mockSettingsService) Keys() []domain.SettingKey {
	return m.keys
}

func (m *mockSettingsService) Get(key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", domain.ErrInvalidInput
	}
	return v, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

type okHandler struct{}

func (okHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
