package domain

import (
	"context"
	"time"
)

// EntryState tags where a cached document is in its lifecycle.
type EntryState string

const (
	StateProcessing        EntryState = "processing"
	StateReady             EntryState = "ready"
	StateEnrichmentPending EntryState = "enrichment_pending"
	StateEnrichmentDone    EntryState = "enrichment_done"
)

type RedFlag struct {
	ChunkIndex int    `json:"chunk_index"`
	Keyword    string `json:"keyword"`
	Text       string `json:"text"`
}

// SourceFile is the original upload, kept so a summary can be generated from it later.
type SourceFile struct {
	Bytes    []byte
	MimeType string
	FileName string
}

// VectorIndex answers top-k similarity queries over one document's chunk embeddings.
type VectorIndex interface {
	Search(query []float32, k int) ([]int, error)
	Len() int
}

// ChatSession is a stateful multi-turn conversation with the generation model.
type ChatSession interface {
	ID() string
	Send(ctx context.Context, prompt string, onFragment func(string) error) error
}

// DocumentEntry is owned by the document cache. Chunks, Embeddings and Index are
// set once when the entry becomes Ready and never change afterwards.
type DocumentEntry struct {
	Key         CacheKey
	ContentHash string
	State       EntryState

	Source    *SourceFile
	PageCount int

	Chunks     []string
	Embeddings [][]float32
	Index      VectorIndex
	RedFlags   []RedFlag

	Summary           string
	SummaryError      string
	Explanations      map[int]string
	ExplanationErrors map[int]string

	ExportBlobRef string
	ChatSession   ChatSession

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewDocumentEntry(key CacheKey) DocumentEntry {
	now := time.Now().UTC()
	entry := DocumentEntry{
		Key:               key,
		State:             StateProcessing,
		Explanations:      map[int]string{},
		ExplanationErrors: map[int]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if key.Scope() == ScopeDocument {
		entry.ContentHash = string(key)
	}
	return entry
}

// HasIndex reports whether retrieval can run against the entry.
func (e DocumentEntry) HasIndex() bool {
	return e.Index != nil && len(e.Chunks) > 0
}

func (e DocumentEntry) HasSummary() bool {
	return e.Summary != ""
}

// Clone returns a copy whose maps can be read without holding the cache lock.
// Chunks, embeddings and the source bytes are shared; they are immutable.
func (e DocumentEntry) Clone() DocumentEntry {
	out := e
	out.Explanations = make(map[int]string, len(e.Explanations))
	for k, v := range e.Explanations {
		out.Explanations[k] = v
	}
	out.ExplanationErrors = make(map[int]string, len(e.ExplanationErrors))
	for k, v := range e.ExplanationErrors {
		out.ExplanationErrors[k] = v
	}
	if e.RedFlags != nil {
		out.RedFlags = append([]RedFlag(nil), e.RedFlags...)
	}
	return out
}

// DocumentSnapshot is the durable form of a processed document.
type DocumentSnapshot struct {
	ContentHash string      `json:"content_hash"`
	FileName    string      `json:"file_name"`
	MimeType    string      `json:"mime_type"`
	PageCount   int         `json:"page_count"`
	Chunks      []string    `json:"chunks"`
	Embeddings  [][]float32 `json:"embeddings"`
	RedFlags    []RedFlag   `json:"red_flags"`
	CreatedAt   time.Time   `json:"created_at"`
}

// DocumentEvent is published when a document is cached or its enrichment finishes.
type DocumentEvent struct {
	Type        string    `json:"type"`
	ContentHash string    `json:"content_hash"`
	State       string    `json:"state"`
	SummaryOK   bool      `json:"summary_ok,omitempty"`
	Explained   int       `json:"explained,omitempty"`
	Failed      int       `json:"failed,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

const (
	EventDocumentCached   = "document.cached"
	EventDocumentEnriched = "document.enriched"
)
