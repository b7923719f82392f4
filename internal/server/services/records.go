package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/repomanager"
)

// DefaultRecordsPageSize is used when a listing asks for a non-positive limit.
const DefaultRecordsPageSize = 10

// RecordService reads a user's chat history.
type RecordService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	maxPageSize int
}

func NewRecordService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *RecordService {
	maxPageSize := cfg.MaxRecordsPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultRecordsPageSize
	}
	return &RecordService{db: db, repomanager: m, maxPageSize: maxPageSize}
}

// ListRecords returns one page of the user's records, newest first. A
// negative page is read as 0, a non-positive limit as the default, and the
// limit is capped at the configured maximum.
func (s *RecordService) ListRecords(ctx context.Context, userID string, page, limit int) ([]*models.ChatRecord, error) {
	if page < 0 {
		page = 0
	}
	if limit <= 0 {
		limit = DefaultRecordsPageSize
	}
	limit = min(limit, s.maxPageSize)

	offset := uint64(page) * uint64(limit)
	return s.repomanager.ChatRecords(s.db).ListByUser(ctx, userID, offset, uint64(limit))
}

// ListRecordsInRange returns the user's records with start <= created_at <= end
// (unix milliseconds), newest first.
func (s *RecordService) ListRecordsInRange(ctx context.Context, userID string, start, end int64) ([]*models.ChatRecord, error) {
	if start > end {
		return nil, common.ErrInvalidRange
	}
	return s.repomanager.ChatRecords(s.db).ListByUserInRange(ctx, userID, start, end)
}

// Conversation looks up one of the user's conversations by identifier.
// Conversations of other users are reported as not found.
func (s *RecordService) Conversation(ctx context.Context, userID, identifier string) (*models.Conversation, error) {
	conv, err := s.repomanager.Conversations(s.db).GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return conv, nil
}
