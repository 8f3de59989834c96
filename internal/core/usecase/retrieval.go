package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const defaultRetrievalTopK = 3

// Retriever finds the passages most similar to a query within one chunk set.
// A cached document with exactly the same chunks lends its index; any other
// chunk set gets a throwaway index for the request.
type Retriever struct {
	docs     ports.DocumentCache
	embedder ports.Embedder
	indexes  ports.IndexBuilder
	topK     int
}

func NewRetriever(docs ports.DocumentCache, embedder ports.Embedder, indexes ports.IndexBuilder, topK int) *Retriever {
	if topK <= 0 {
		topK = defaultRetrievalTopK
	}
	return &Retriever{docs: docs, embedder: embedder, indexes: indexes, topK: topK}
}

type retrieval struct {
	key      domain.CacheKey
	matched  bool
	indices  []int
	passages []string
}

func (r *Retriever) retrieve(ctx context.Context, query string, chunks []string) (retrieval, error) {
	out := retrieval{}

	var index domain.VectorIndex
	if key, ok := r.docs.FindKeyByChunks(chunks); ok {
		if entry, found := r.docs.Get(key); found && entry.HasIndex() {
			index = entry.Index
			out.key = key
			out.matched = true
		}
	}
	if index == nil {
		vectors, err := r.embedder.Embed(ctx, chunks)
		if err != nil {
			return out, fmt.Errorf("embed chunks: %w", err)
		}
		built, err := r.indexes.Build(vectors)
		if err != nil {
			return out, fmt.Errorf("build index: %w", err)
		}
		index = built
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return out, fmt.Errorf("embed query: %w", err)
	}

	indices, err := index.Search(queryVector, min(r.topK, len(chunks)))
	if err != nil {
		return out, fmt.Errorf("search index: %w", err)
	}
	out.indices = indices
	out.passages = make([]string, 0, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(chunks) {
			out.passages = append(out.passages, chunks[i])
		}
	}
	return out, nil
}

type QueryUseCase struct {
	retriever *Retriever
	generator ports.TextGenerator
}

var _ ports.DocumentQueryService = (*QueryUseCase)(nil)

func NewQueryUseCase(retriever *Retriever, generator ports.TextGenerator) *QueryUseCase {
	return &QueryUseCase{retriever: retriever, generator: generator}
}

func (uc *QueryUseCase) Answer(ctx context.Context, query string, chunks []string) (*domain.QueryAnswer, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query", errors.New("query is required"))
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query", errors.New("chunks are required"))
	}

	found, err := uc.retriever.retrieve(ctx, query, chunks)
	if err != nil {
		return nil, err
	}

	answer, err := uc.generator.Generate(ctx, buildQueryPrompt(query, found.passages))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.QueryAnswer{
		Answer:         strings.TrimSpace(answer),
		Sources:        found.indices,
		Model:          uc.generator.ModelName(),
		ProcessingTime: formatElapsed(time.Since(start)),
	}, nil
}

type ChatUseCase struct {
	retriever *Retriever
	sessions  ports.SessionRegistry
	model     ports.ChatModel
}

var _ ports.ChatService = (*ChatUseCase)(nil)

func NewChatUseCase(retriever *Retriever, sessions ports.SessionRegistry, model ports.ChatModel) *ChatUseCase {
	return &ChatUseCase{retriever: retriever, sessions: sessions, model: model}
}

// Stream answers the latest user message. Document mode retrieves context
// once per turn; the chosen session carries the conversation history.
func (uc *ChatUseCase) Stream(ctx context.Context, req domain.ChatRequest, emit func(fragment string) error) error {
	query, err := lastUserMessage(req.Messages)
	if err != nil {
		return err
	}

	mode := req.EffectiveMode()

	var (
		session domain.ChatSession
		prompt  string
	)
	switch mode {
	case domain.ChatModeDocument:
		if len(req.Chunks) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("chunks are required in document mode"))
		}
		found, err := uc.retriever.retrieve(ctx, query, req.Chunks)
		if err != nil {
			return err
		}
		key := found.key
		if !found.matched {
			key = domain.AdhocKey(req.Chunks)
		}
		session, err = uc.sessions.Session(ctx, key)
		if err != nil {
			return fmt.Errorf("chat session: %w", err)
		}
		prompt = buildDocumentChatPrompt(query, found.passages)
	case domain.ChatModeGeneral:
		if key := strings.TrimSpace(req.GeneralKey); key != "" {
			session, err = uc.sessions.Session(ctx, domain.GeneralKey(key))
		} else {
			session, err = uc.model.NewSession(ctx)
		}
		if err != nil {
			return fmt.Errorf("chat session: %w", err)
		}
		prompt = buildGeneralChatPrompt(query)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "chat", fmt.Errorf("unknown mode %q", mode))
	}

	if err := session.Send(ctx, prompt, emit); err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	return nil
}

func lastUserMessage(messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("messages are required"))
	}
	last := messages[len(messages)-1]
	if !strings.EqualFold(strings.TrimSpace(last.Role), "user") {
		return "", domain.WrapError(domain.ErrInvalidInput, "chat", fmt.Errorf("last message must come from user, got %q", last.Role))
	}
	content := strings.TrimSpace(last.Content)
	if content == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("message content is required"))
	}
	return content, nil
}
