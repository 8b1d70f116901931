package mocks

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"
	"github.com/wp-updater/wp-updater/pkg/types"
)

// Mock for wpcli.Session.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) SiteURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) CoreCheckUpdate(ctx context.Context) (types.UpdateCheckResult, error) {
	args := m.Called(ctx)

	result, ok := args.Get(0).(types.UpdateCheckResult)
	if !ok {
		return types.UpdateCheckResult{}, fmt.Errorf("type assertion to types.UpdateCheckResult failed")
	}

	return result, args.Error(1)
}

func (m *MockSession) PluginList(ctx context.Context) ([]types.PluginRecord, error) {
	args := m.Called(ctx)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	plugins, ok := args.Get(0).([]types.PluginRecord)
	if !ok {
		return nil, fmt.Errorf("type assertion to []types.PluginRecord failed")
	}

	return plugins, args.Error(1)
}

func (m *MockSession) ExportDB(ctx context.Context, dest string) error {
	args := m.Called(ctx, dest)
	return args.Error(0)
}

func (m *MockSession) UpdatePlugins(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSession) UpdateCore(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSession) UpdateCoreDB(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSession) VerifyCoreChecksums(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
