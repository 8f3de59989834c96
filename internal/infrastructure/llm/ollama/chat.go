package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/infrastructure/resilience"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamLine struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}

// ChatModel opens sessions against /api/chat.
type ChatModel struct {
	client *Client
}

var _ ports.ChatModel = (*ChatModel)(nil)

func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

func (m *ChatModel) NewSession(context.Context) (domain.ChatSession, error) {
	return &ChatSession{id: uuid.NewString(), client: m.client}, nil
}

// ChatSession keeps the conversation history and replays it on every turn.
// Turns on one session are serialized.
type ChatSession struct {
	id     string
	client *Client

	mu      sync.Mutex
	history []chatMessage
}

var _ domain.ChatSession = (*ChatSession)(nil)

func (s *ChatSession) ID() string {
	return s.id
}

// Send streams the reply to prompt. History is only extended when the turn completes.
func (s *ChatSession) Send(ctx context.Context, prompt string, onFragment func(string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]chatMessage, 0, len(s.history)+1)
	messages = append(messages, s.history...)
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	resp, err := s.client.openStream(ctx, map[string]any{
		"model":    s.client.genModel,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reply, err := readChatStream(resp.Body, onFragment)
	if err != nil {
		return err
	}
	s.history = append(messages, chatMessage{Role: "assistant", Content: reply})
	return nil
}

func (s *ChatSession) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) / 2
}

// openStream establishes the streaming response. Only the connect phase is
// retried; once bytes flow the caller owns the body.
func (c *Client) openStream(ctx context.Context, payload any) (*http.Response, error) {
	connect := func(ctx context.Context) (*http.Response, error) {
		return c.send(ctx, c.streamClient, "/api/chat", payload, "chat")
	}

	var (
		resp *http.Response
		err  error
	)
	if c.executor != nil {
		resp, err = resilience.Call(ctx, c.executor, "ollama.chat", connect, classifyOllamaError)
	} else {
		resp, err = connect(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama chat", err)
	}
	return resp, nil
}

func readChatStream(body io.Reader, onFragment func(string) error) (string, error) {
	decoder := json.NewDecoder(body)
	var reply []byte
	for {
		var line chatStreamLine
		if err := decoder.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("chat stream ended before completion: %w", io.ErrUnexpectedEOF)
			}
			return "", fmt.Errorf("decode chat stream: %w", err)
		}
		if line.Error != "" {
			return "", fmt.Errorf("ollama chat stream: %s", line.Error)
		}
		if line.Message.Content != "" {
			reply = append(reply, line.Message.Content...)
			if err := onFragment(line.Message.Content); err != nil {
				return "", err
			}
		}
		if line.Done {
			return string(reply), nil
		}
	}
}
