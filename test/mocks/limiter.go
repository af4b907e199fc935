package mocks

import "context"

// MockLimiter is a simple mock for the entry rate limiter
type MockLimiter struct {
	AllowFunc func(ctx context.Context, key string) error
}

func (m *MockLimiter) Allow(ctx context.Context, key string) error {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key)
	}
	return nil
}
