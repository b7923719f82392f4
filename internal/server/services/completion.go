package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/dbx"
	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/dmitrijs2005/chatgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/chatgate/internal/server/upstream"
	"github.com/dmitrijs2005/chatgate/internal/timex"
)

// CompletionRequest is one chat turn. An empty Model, a non-positive
// MaxTokens and a nil Temperature fall back to the configured defaults; an
// empty Conversation starts a new one.
type CompletionRequest struct {
	Messages     []upstream.Message
	Conversation string
	Model        string
	MaxTokens    int
	Temperature  *float64
}

// CompletionResult is the assistant reply and the conversation it belongs to.
type CompletionResult struct {
	Content      string
	Conversation string
}

// CompletionService turns a chat transcript into an upstream reply and a
// persisted prompt/reply pair.
type CompletionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	pool        *CredentialPool
	client      upstream.Client
	logger      logging.Logger

	model       string
	maxTokens   int
	temperature float64

	now func() time.Time
}

func NewCompletionService(db *sql.DB, m repomanager.RepositoryManager, pool *CredentialPool,
	client upstream.Client, logger logging.Logger, cfg *config.Config) *CompletionService {
	return &CompletionService{
		db:          db,
		repomanager: m,
		pool:        pool,
		client:      client,
		logger:      logger,
		model:       cfg.GPTModel,
		maxTokens:   cfg.GPTMaxTokens,
		temperature: cfg.GPTTemperature,
		now:         time.Now,
	}
}

// Complete runs one completion for user.
//
// The prompt record is committed before the upstream call, so it survives an
// upstream failure. The reply record is written only on success. The
// credential taken for the call is released on every path.
//
// Errors returned to the caller are client-safe: input errors,
// common.ErrConversationForeign, common.ErrServiceBusy (no credential, rate
// limited, empty reply) or common.ErrTryLater for everything else. Details
// are logged.
func (s *CompletionService) Complete(ctx context.Context, user *models.User, req CompletionRequest) (*CompletionResult, error) {
	if len(req.Messages) == 0 {
		return nil, common.ErrEmptyMessages
	}
	prompt := upstream.LastContent(req.Messages)
	if prompt == "" {
		return nil, common.ErrEmptyPrompt
	}

	log := s.logger.With("user_id", user.ID)

	lease, err := s.pool.Lease(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrServiceBusy) {
			log.Warn(ctx, "no credential available")
			return nil, common.ErrServiceBusy
		}
		log.Error(ctx, "credential lease failed", "error", err)
		return nil, common.ErrTryLater
	}
	defer func() {
		if rerr := lease.Release(ctx); rerr != nil {
			log.Error(ctx, "credential release failed", "credential_id", lease.Credential().ID, "error", rerr)
		}
	}()

	var conv *models.Conversation
	var promptRec *models.ChatRecord
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var terr error
		conv, terr = s.resolveConversation(ctx, tx, user, req.Conversation)
		if terr != nil {
			return terr
		}
		promptRec, terr = s.repomanager.ChatRecords(tx).Create(ctx, &models.ChatRecord{
			UserID:         user.ID,
			ConversationID: conv.ID,
			Content:        prompt,
			Role:           models.RoleUser,
			CreatedAt:      timex.UnixMilli(s.now()),
		})
		return terr
	})
	if err != nil {
		if errors.Is(err, common.ErrConversationForeign) {
			return nil, err
		}
		log.Error(ctx, "prompt persistence failed", "error", err)
		return nil, common.ErrTryLater
	}

	log = log.With("conversation", conv.Identifier)

	res := s.client.Complete(ctx, lease.Credential().Secret, s.upstreamRequest(req))
	switch res.Outcome {
	case upstream.OutcomeRateLimited:
		log.Warn(ctx, "upstream rate limited", "credential_id", lease.Credential().ID, "error", res.Err)
		return nil, common.ErrServiceBusy
	case upstream.OutcomeFailed:
		log.Error(ctx, "upstream completion failed", "credential_id", lease.Credential().ID, "error", res.Err)
		return nil, common.ErrTryLater
	}
	if len(res.Choices) == 0 {
		log.Warn(ctx, "upstream returned no choices")
		return nil, common.ErrServiceBusy
	}

	content := strings.TrimSpace(res.Choices[0])
	createdAt := max(timex.UnixMilli(s.now()), promptRec.CreatedAt)

	if _, err := s.repomanager.ChatRecords(s.db).Create(ctx, &models.ChatRecord{
		UserID:         user.ID,
		ConversationID: conv.ID,
		Content:        content,
		Role:           models.RoleAssistant,
		CreatedAt:      createdAt,
	}); err != nil {
		log.Error(ctx, "reply persistence failed", "error", err)
		return nil, common.ErrTryLater
	}

	log.Debug(ctx, "completion done")

	return &CompletionResult{Content: content, Conversation: conv.Identifier}, nil
}

// resolveConversation finds the conversation by identifier or creates it.
// A conversation owned by someone else is never reused.
func (s *CompletionService) resolveConversation(ctx context.Context, tx dbx.DBTX, user *models.User, identifier string) (*models.Conversation, error) {
	repo := s.repomanager.Conversations(tx)

	if identifier != "" {
		conv, err := repo.GetByIdentifier(ctx, identifier)
		switch {
		case err == nil:
			if conv.UserID != user.ID {
				return nil, common.ErrConversationForeign
			}
			return conv, nil
		case !errors.Is(err, common.ErrorNotFound):
			return nil, err
		}
	} else {
		identifier = common.NewIdentifier()
	}

	conv, err := repo.Create(ctx, &models.Conversation{
		Identifier: identifier,
		UserID:     user.ID,
		CreatedAt:  timex.UnixMilli(s.now()),
	})
	if !errors.Is(err, common.ErrorAlreadyExists) {
		return conv, err
	}

	// a concurrent request created it first
	conv, err = repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if conv.UserID != user.ID {
		return nil, common.ErrConversationForeign
	}
	return conv, nil
}

func (s *CompletionService) upstreamRequest(req CompletionRequest) upstream.Request {
	out := upstream.Request{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: s.temperature,
	}
	if out.Model == "" {
		out.Model = s.model
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = s.maxTokens
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	return out
}
