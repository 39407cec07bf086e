package mocks

import (
	"gitlab.com/shutterbug/web/shutterbug-core/internal/adapters/config"
)

// MockConfigProvider implements config.Provider for tests and benchmarks.
type MockConfigProvider struct {
	config *config.Config
}

// NewMockConfigProvider creates a provider holding the defaults with logging
// turned down and the idle thread reaper disabled.
func NewMockConfigProvider() *MockConfigProvider {
	cfg := config.Defaults()
	cfg.Server.HTTPPort = 0
	cfg.Log.Level = "error" // Minimize I/O overhead during benchmarks
	cfg.API.BaseURL = "http://mock-api.invalid/api"
	cfg.Auth.AdminAPIKey = "benchmark-admin-key"
	cfg.Comments.ReaperIntervalSeconds = 0
	return &MockConfigProvider{config: cfg}
}

// Get returns the mock configuration.
func (m *MockConfigProvider) Get() *config.Config {
	return m.config
}

// Update applies fn to the held configuration, mimicking a hot reload.
func (m *MockConfigProvider) Update(fn func(*config.Config)) {
	next := *m.config
	fn(&next)
	m.config = &next
}
