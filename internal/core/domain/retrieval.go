package domain

type ExtractionPath string

const (
	PathFast   ExtractionPath = "fast"
	PathRobust ExtractionPath = "robust"
)

type CacheSource string

const (
	CacheSourceNone    CacheSource = "none"
	CacheSourceMemory  CacheSource = "memory"
	CacheSourceDurable CacheSource = "durable"
)

type Extraction struct {
	Text      string
	PageCount int
}

type UploadResult struct {
	ContentHash    string         `json:"content_hash"`
	FileName       string         `json:"file_name"`
	Chunks         []string       `json:"chunks"`
	RedFlags       []RedFlag      `json:"red_flags"`
	PageCount      int            `json:"page_count"`
	Path           ExtractionPath `json:"path"`
	CacheHit       bool           `json:"cache_hit"`
	CacheSource    CacheSource    `json:"cache_source"`
	State          EntryState     `json:"state"`
	ProcessingTime string         `json:"processing_time"`
}

type QueryAnswer struct {
	Answer         string `json:"answer"`
	Sources        []int  `json:"sources"`
	Model          string `json:"model,omitempty"`
	ProcessingTime string `json:"processing_time"`
}

type ChatMode string

const (
	ChatModeDocument ChatMode = "document"
	ChatModeGeneral  ChatMode = "general"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages   []ChatMessage `json:"messages"`
	Chunks     []string      `json:"chunks"`
	Mode       ChatMode      `json:"mode"`
	GeneralKey string        `json:"general_key,omitempty"`
}

// EffectiveMode resolves an unset mode: document when chunks are supplied,
// general otherwise.
func (r ChatRequest) EffectiveMode() ChatMode {
	if r.Mode != "" {
		return r.Mode
	}
	if len(r.Chunks) == 0 {
		return ChatModeGeneral
	}
	return ChatModeDocument
}

type ExplainRequest struct {
	ContentHash string `json:"content_hash,omitempty"`
	ChunkIndex  *int   `json:"chunk_index,omitempty"`
	Text        string `json:"text,omitempty"`
	Role        string `json:"role,omitempty"`
}

type Explanation struct {
	Explanation string `json:"explanation"`
	Model       string `json:"model,omitempty"`
	Cached      bool   `json:"cached"`
}

type RiskRequest struct {
	Text        string `json:"text,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	ChunkIndex  *int   `json:"chunk_index,omitempty"`
}

type RiskAnalysis struct {
	HasRisk  bool   `json:"has_risk"`
	Analysis string `json:"analysis"`
	Model    string `json:"model,omitempty"`
}

type ExportResult struct {
	ContentHash string `json:"content_hash"`
	URL         string `json:"url"`
	BlobRef     string `json:"blob_ref"`
	Reused      bool   `json:"reused"`
}

type ExportBatchItem struct {
	ContentHash string `json:"content_hash"`
	URL         string `json:"url,omitempty"`
	BlobRef     string `json:"blob_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

type EnrichmentStatus struct {
	ContentHash       string         `json:"content_hash"`
	State             EntryState     `json:"state"`
	HasSummary        bool           `json:"has_summary"`
	SummaryError      string         `json:"summary_error,omitempty"`
	RedFlags          []RedFlag      `json:"red_flags"`
	Explanations      map[int]string `json:"explanations"`
	ExplanationErrors map[int]string `json:"explanation_errors"`
	HasExport         bool           `json:"has_export"`
}

type CacheInfo struct {
	Documents  int                `json:"documents"`
	Sessions   int                `json:"sessions"`
	Embeddings int                `json:"embeddings"`
	States     map[EntryState]int `json:"states"`
}
