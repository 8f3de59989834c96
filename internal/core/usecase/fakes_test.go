package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/infrastructure/cache/memory"
	"github.com/kirillkom/legal-lens/internal/infrastructure/redflag"
	"github.com/kirillkom/legal-lens/internal/infrastructure/vector/flat"
)

type extractorFake struct {
	mu    sync.Mutex
	text  string
	pages int
	err   error
	calls int
}

func (f *extractorFake) Extract(context.Context, []byte, string, string) (domain.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	return domain.Extraction{Text: f.text, PageCount: f.pages}, nil
}

func (f *extractorFake) CountPages([]byte, string, string) (int, error) {
	return f.pages, nil
}

func (f *extractorFake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type paragraphChunkerFake struct{}

func (paragraphChunkerFake) Split(text string) []string {
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// embedderFake maps text onto a few topic axes so similarity is predictable.
type embedderFake struct {
	mu         sync.Mutex
	err        error
	embedCalls int
	queryCalls int
}

func topicVector(text string) []float32 {
	lower := strings.ToLower(text)
	return []float32{
		float32(strings.Count(lower, "indemn")),
		float32(strings.Count(lower, "pay")),
		float32(strings.Count(lower, "terminat")),
		0.01,
	}
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = topicVector(text)
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.err != nil {
		return nil, f.err
	}
	return topicVector(text), nil
}

func (f *embedderFake) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls, f.queryCalls
}

type generatorFake struct {
	mu       sync.Mutex
	response string
	json     string
	err      error
	respond  func(prompt string) (string, error)
	prompts  []string
}

func (f *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		return respond(prompt)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *generatorFake) GenerateJSON(_ context.Context, prompt string, _ map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.json, nil
}

func (f *generatorFake) ModelName() string { return "fake-model" }

func (f *generatorFake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type summarizerFake struct {
	mu      sync.Mutex
	summary string
	err     error
	block   bool
	panics  bool
	calls   int
}

func (f *summarizerFake) Summarize(ctx context.Context, _ domain.SourceFile, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panics {
		panic("summarizer exploded")
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func (f *summarizerFake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type chatSessionFake struct {
	id      string
	reply   []string
	err     error
	mu      sync.Mutex
	prompts []string
}

func (s *chatSessionFake) ID() string { return s.id }

func (s *chatSessionFake) Send(_ context.Context, prompt string, onFragment func(string) error) error {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, fragment := range s.reply {
		if err := onFragment(fragment); err != nil {
			return err
		}
	}
	return nil
}

type chatModelFake struct {
	mu       sync.Mutex
	created  int
	sessions []*chatSessionFake
}

func (m *chatModelFake) NewSession(context.Context) (domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	session := &chatSessionFake{id: fmt.Sprintf("session-%d", m.created), reply: []string{"Hello", ", world"}}
	m.sessions = append(m.sessions, session)
	return session, nil
}

type blobsFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	deletes int
	putErr  error
}

func newBlobsFake() *blobsFake {
	return &blobsFake{objects: map[string][]byte{}}
}

func (b *blobsFake) Put(_ context.Context, key string, data io.Reader) error {
	if b.putErr != nil {
		return b.putErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	b.objects[key] = raw
	return nil
}

func (b *blobsFake) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get blob", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *blobsFake) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	delete(b.objects, key)
	return nil
}

func (b *blobsFake) SignedURL(key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (b *blobsFake) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type rendererFake struct {
	mu       sync.Mutex
	calls    int
	markdown string
}

func (r *rendererFake) RenderSummary(_ string, markdown string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.markdown = markdown
	return []byte("%PDF-1.3 fake"), nil
}

type eventsFake struct {
	mu     sync.Mutex
	events []domain.DocumentEvent
}

func (e *eventsFake) Publish(_ context.Context, event domain.DocumentEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *eventsFake) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, event := range e.events {
		out = append(out, event.Type)
	}
	return out
}

type snapshotsFake struct {
	mu    sync.Mutex
	items map[string]*domain.DocumentSnapshot
	saves int
}

func newSnapshotsFake() *snapshotsFake {
	return &snapshotsFake{items: map[string]*domain.DocumentSnapshot{}}
}

func (s *snapshotsFake) Load(_ context.Context, contentHash string) (*domain.DocumentSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.items[contentHash]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "load snapshot", errors.New(contentHash))
	}
	return snapshot, nil
}

func (s *snapshotsFake) Save(_ context.Context, snapshot *domain.DocumentSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.items[snapshot.ContentHash] = snapshot
	return nil
}

func (s *snapshotsFake) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type metricsFake struct {
	mu          sync.Mutex
	lookups     []string
	enrichments []string
}

func (m *metricsFake) RecordCacheLookup(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, source)
}

func (m *metricsFake) RecordEnrichment(step, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrichments = append(m.enrichments, step+":"+status)
}

func (m *metricsFake) RecordSessionEviction(string) {}

// recordingStarter keeps the tasks started by an upload so tests can wait on them.
type recordingStarter struct {
	inner *EnrichmentUseCase
	mu    sync.Mutex
	tasks []*EnrichmentTask
}

func (r *recordingStarter) Start(contentHash string) *EnrichmentTask {
	task := r.inner.Start(contentHash)
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
	return task
}

func (r *recordingStarter) Tasks() []*EnrichmentTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*EnrichmentTask(nil), r.tasks...)
}

// seedDocument caches chunks as a Ready document with a built index.
func seedDocument(docs *memory.DocumentCache, hash string, chunks []string, mutate func(*domain.DocumentEntry)) domain.DocumentEntry {
	vectors := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		vectors[i] = topicVector(chunk)
	}
	index, err := flat.Build(vectors)
	if err != nil {
		panic(err)
	}
	key := domain.DocumentKey(hash)
	docs.GetOrCreate(key)
	entry, err := docs.Merge(key, func(entry *domain.DocumentEntry) error {
		entry.Chunks = chunks
		entry.Embeddings = vectors
		entry.Index = index
		entry.RedFlags = redflag.NewScanner(redflag.DefaultKeywords).Scan(chunks)
		entry.State = domain.StateReady
		if mutate != nil {
			mutate(entry)
		}
		return nil
	})
	if err != nil {
		panic(err)
	}
	return entry
}
