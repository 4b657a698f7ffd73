package service

import (
	"context"

	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/rs/zerolog"
)

// HistoryService lists images previously generated for the current user
type HistoryService struct {
	gateway Gateway
	logger  zerolog.Logger
}

func NewHistoryService(deps Deps) *HistoryService {
	return &HistoryService{gateway: deps.Gateway, logger: deps.logger("history")}
}

func (s *HistoryService) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	resp, err := s.gateway.Get(ctx, backend.PathHistory)
	if err != nil {
		return nil, err
	}

	var entries []domain.HistoryEntry
	if err := resp.DecodeJSON(&entries); err != nil {
		return nil, err
	}
	s.logger.Debug().Int("count", len(entries)).Msg("history loaded")
	return entries, nil
}
