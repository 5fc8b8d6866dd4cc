package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"itemwatch/internal/models"
	"itemwatch/internal/repository"
)

// CatalogService owns item registration. Items are created on first
// registration and never auto-deleted.
type CatalogService struct {
	Repo   repository.ItemRepository
	Logger *zap.Logger
}

type RegisterItemParams struct {
	Name      string
	MarketURL *string
}

func (s *CatalogService) RegisterItem(ctx context.Context, params RegisterItemParams) (*models.Item, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("catalog service not configured")
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, errors.New("item name must not be empty")
	}

	// Registration is idempotent on name: re-registering returns the
	// existing item untouched.
	existing, err := s.Repo.GetItemByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	item := &models.Item{
		ID:        uuid.NewString(),
		Name:      name,
		MarketURL: params.MarketURL,
	}
	if err := s.Repo.UpsertItem(ctx, item); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("item registered", zap.String("name", name), zap.String("id", item.ID))
	}
	return item, nil
}

func (s *CatalogService) GetItem(ctx context.Context, id string) (*models.Item, error) {
	if s == nil || s.Repo == nil {
		return nil, repository.ErrNotFound
	}
	return s.Repo.GetItemByID(ctx, id)
}

func (s *CatalogService) GetItemByName(ctx context.Context, name string) (*models.Item, error) {
	if s == nil || s.Repo == nil {
		return nil, repository.ErrNotFound
	}
	return s.Repo.GetItemByName(ctx, strings.TrimSpace(name))
}

func (s *CatalogService) ListItems(ctx context.Context) ([]models.Item, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListItems(ctx)
}
