package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/citadoc/internal/domain"
	"github.com/cloo-solutions/citadoc/internal/pagination"
	"github.com/cloo-solutions/citadoc/internal/telemetry"
)

// ConversationRepositoryInterface defines the repository interface for conversation persistence
type ConversationRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	LockForUpdate(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, m *domain.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	Messages(ctx context.Context, conversationID string) ([]domain.Message, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*ConversationPageResult, error)
}

type ConversationPageResult struct {
	Items      []*domain.Conversation
	NextCursor string
	HasMore    bool
}

// Generator produces an answer from a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// ChatConfig holds the read path settings.
type ChatConfig struct {
	TopK            int
	ProviderTimeout time.Duration
}

// ChatService answers questions from indexed documents and records the turns.
type ChatService struct {
	convRepo  ConversationRepositoryInterface
	txRunner  TxRunner
	retriever *Retriever
	assembler *ContextAssembler
	generator Generator
	resolver  *CitationResolver
	cfg       ChatConfig
	locks     *KeyedMutex
	uuidGen   UUIDGenerator
}

// NewChatService creates a new ChatService instance
func NewChatService(
	convRepo ConversationRepositoryInterface,
	txRunner TxRunner,
	retriever *Retriever,
	assembler *ContextAssembler,
	generator Generator,
	resolver *CitationResolver,
	cfg ChatConfig,
) *ChatService {
	return NewChatServiceWithUUIDGen(convRepo, txRunner, retriever, assembler, generator, resolver, cfg, &DefaultUUIDGenerator{})
}

// NewChatServiceWithUUIDGen creates a new ChatService with custom UUID generator (for testing)
func NewChatServiceWithUUIDGen(
	convRepo ConversationRepositoryInterface,
	txRunner TxRunner,
	retriever *Retriever,
	assembler *ContextAssembler,
	generator Generator,
	resolver *CitationResolver,
	cfg ChatConfig,
	uuidGen UUIDGenerator,
) *ChatService {
	return &ChatService{
		convRepo:  convRepo,
		txRunner:  txRunner,
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		resolver:  resolver,
		cfg:       cfg,
		locks:     NewKeyedMutex(),
		uuidGen:   uuidGen,
	}
}

// QueryInput is a user question, optionally continuing a conversation.
type QueryInput struct {
	Message        string
	ConversationID string
}

// QueryResult is a grounded answer with its resolved citations.
type QueryResult struct {
	ConversationID string
	Answer         string
	Citations      []domain.Citation
}

type ListConversationsInput struct {
	Cursor string
	Limit  int
}

type ListConversationsOutput struct {
	Items   []*domain.Conversation
	Cursor  string
	HasMore bool
}

// Query answers message against the indexed documents. The user message and
// the answer are stored together only after generation succeeds.
func (s *ChatService) Query(ctx context.Context, input QueryInput) (*QueryResult, error) {
	conversationID := strings.TrimSpace(input.ConversationID)
	ctx, span := telemetry.StartSpan(ctx, "ChatService.Query", telemetry.SpanAttributes{
		ConversationID: conversationID,
		Operation:      "query",
	})
	defer span.End()

	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message", domain.ErrMissingRequiredField)
	}

	var history []domain.Message
	if conversationID != "" {
		unlock, err := s.locks.Lock(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		if _, err := s.convRepo.GetByID(ctx, conversationID); err != nil {
			return nil, err
		}
		history, err = s.convRepo.RecentMessages(ctx, conversationID, s.assembler.historyLength)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation history: %w", err)
		}
	}

	sources, err := s.retriever.Retrieve(ctx, message, s.cfg.TopK)
	if err != nil {
		return nil, err
	}

	prompt := s.assembler.Assemble(sources, history, message)
	answer, err := s.generate(ctx, prompt)
	if err != nil {
		span.Fail(err)
		return nil, err
	}

	citations := s.resolver.Resolve(answer, sources)
	span.SetCount("citation_count", len(citations))

	isNew := conversationID == ""
	if isNew {
		conversationID = s.uuidGen.NewString()
	}
	now := time.Now().UTC()
	userMsg := &domain.Message{
		ID:             s.uuidGen.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        message,
		CreatedAt:      now,
	}
	assistantMsg := &domain.Message{
		ID:             s.uuidGen.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        answer,
		Citations:      citations,
		CreatedAt:      now,
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		convs := repos.Conversations()
		if isNew {
			conv := &domain.Conversation{
				ID:        conversationID,
				Title:     domain.TitleFromMessage(message),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := convs.Create(ctx, conv); err != nil {
				return fmt.Errorf("failed to create conversation: %w", err)
			}
		} else if err := convs.LockForUpdate(ctx, conversationID); err != nil {
			return err
		}
		if err := convs.AppendMessage(ctx, userMsg); err != nil {
			return fmt.Errorf("failed to save user message: %w", err)
		}
		if err := convs.AppendMessage(ctx, assistantMsg); err != nil {
			return fmt.Errorf("failed to save assistant message: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return nil, err
		}
		return nil, domain.ErrConversationWriteFailed.WithCause(err)
	}

	return &QueryResult{
		ConversationID: conversationID,
		Answer:         answer,
		Citations:      citations,
	}, nil
}

func (s *ChatService) generate(ctx context.Context, prompt Prompt) (string, error) {
	if s.generator == nil {
		return "", domain.ErrGenerationFailed.WithCause(errors.New("no generation provider configured"))
	}

	genCtx, cancel := withTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	answer, err := s.generator.Generate(genCtx, prompt.System, prompt.User)
	if err != nil {
		return "", domain.ErrGenerationFailed.WithCause(err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", domain.ErrGenerationFailed.WithCause(errors.New("empty answer"))
	}
	return answer, nil
}

// ListConversations returns conversations, most recently active first.
func (s *ChatService) ListConversations(ctx context.Context, input ListConversationsInput) (*ListConversationsOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChatService.ListConversations", telemetry.SpanAttributes{
		Operation: "list",
	})
	defer span.End()

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.ErrInvalidCursor
	}

	result, err := s.convRepo.ListWithCursor(ctx, cursor, pageLimit(input.Limit))
	if err != nil {
		return nil, err
	}

	return &ListConversationsOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

// Messages returns a conversation's messages in chronological order.
func (s *ChatService) Messages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChatService.Messages", telemetry.SpanAttributes{
		ConversationID: conversationID,
		Operation:      "messages",
	})
	defer span.End()

	if _, err := s.convRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.convRepo.Messages(ctx, conversationID)
}
