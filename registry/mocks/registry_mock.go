package mocks

import (
	"context"

	"github.com/anantham/tarotgallery/models"
	"github.com/stretchr/testify/mock"
)

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Add(ctx context.Context, entry models.GalleryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRegistry) List(ctx context.Context, offset, limit int) ([]models.GalleryEntry, int64, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).([]models.GalleryEntry), args.Get(1).(int64), args.Error(2)
}

func (m *MockRegistry) Get(ctx context.Context, locator string) (models.GalleryEntry, error) {
	args := m.Called(ctx, locator)
	return args.Get(0).(models.GalleryEntry), args.Error(1)
}
