package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const (
	defaultMaxUploadBytes       = 50 << 20
	defaultFastPathMaxPages     = 15
	defaultFastExtractTimeout   = 2 * time.Minute
	defaultRobustExtractTimeout = 20 * time.Minute
	snapshotSaveTimeout         = 30 * time.Second
)

// EnrichmentStarter fires background enrichment for a newly cached document.
type EnrichmentStarter interface {
	Start(contentHash string) *EnrichmentTask
}

type UploadDeps struct {
	Docs      ports.DocumentCache
	Snapshots ports.SnapshotStore
	Blobs     ports.BlobStorage
	Extractor ports.TextExtractor
	Chunker   ports.Chunker
	Embedder  ports.Embedder
	Scanner   ports.RedFlagScanner
	Indexes   ports.IndexBuilder
	Pool      ports.WorkerPool
	Events    ports.EventPublisher
	Enricher  EnrichmentStarter
	Metrics   ports.CacheMetrics
}

type UploadOptions struct {
	MaxUploadBytes       int64
	AllowedPatterns      []string
	FastPathMaxPages     int
	FastExtractTimeout   time.Duration
	RobustExtractTimeout time.Duration
}

type UploadUseCase struct {
	deps UploadDeps
	opts UploadOptions

	inflight  singleflight.Group
	snapshots sync.WaitGroup
}

var _ ports.DocumentUploader = (*UploadUseCase)(nil)

func NewUploadUseCase(deps UploadDeps, opts UploadOptions) *UploadUseCase {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.FastPathMaxPages <= 0 {
		opts.FastPathMaxPages = defaultFastPathMaxPages
	}
	if opts.FastExtractTimeout <= 0 {
		opts.FastExtractTimeout = defaultFastExtractTimeout
	}
	if opts.RobustExtractTimeout <= 0 {
		opts.RobustExtractTimeout = defaultRobustExtractTimeout
	}
	return &UploadUseCase{deps: deps, opts: opts}
}

func (uc *UploadUseCase) Upload(ctx context.Context, fileName, mimeType string, body io.Reader) (*domain.UploadResult, error) {
	start := time.Now()

	if err := uc.checkFileName(fileName); err != nil {
		return nil, err
	}
	data, err := uc.readBody(body)
	if err != nil {
		return nil, err
	}

	hash := domain.ContentHash(data)
	// Identical concurrent uploads share one pipeline run; one caller going
	// away must not cancel it for the others.
	value, err, _ := uc.inflight.Do(hash, func() (any, error) {
		return uc.process(context.WithoutCancel(ctx), hash, fileName, mimeType, data)
	})
	if err != nil {
		return nil, err
	}

	result := *value.(*domain.UploadResult)
	result.ProcessingTime = formatElapsed(time.Since(start))
	return &result, nil
}

// WaitSnapshots blocks until background snapshot saves have finished.
func (uc *UploadUseCase) WaitSnapshots() {
	uc.snapshots.Wait()
}

func (uc *UploadUseCase) checkFileName(fileName string) error {
	name := strings.TrimSpace(filepath.Base(fileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file name is required"))
	}
	if len(uc.opts.AllowedPatterns) == 0 {
		return nil
	}
	lower := strings.ToLower(name)
	for _, pattern := range uc.opts.AllowedPatterns {
		if ok, err := doublestar.Match(strings.ToLower(pattern), lower); err == nil && ok {
			return nil
		}
	}
	return domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file type not allowed: %s", name))
}

func (uc *UploadUseCase) readBody(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file is required"))
	}
	data, err := io.ReadAll(io.LimitReader(body, uc.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file is empty"))
	}
	if int64(len(data)) > uc.opts.MaxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("file exceeds %d bytes", uc.opts.MaxUploadBytes))
	}
	return data, nil
}

func (uc *UploadUseCase) process(ctx context.Context, hash, fileName, mimeType string, data []byte) (*domain.UploadResult, error) {
	key := domain.DocumentKey(hash)

	if entry, ok := uc.deps.Docs.Get(key); ok && entry.HasIndex() {
		recordCacheLookup(uc.deps.Metrics, domain.CacheSourceMemory)
		return uc.result(entry, fileName, domain.CacheSourceMemory), nil
	}

	if entry, ok, err := uc.restoreSnapshot(ctx, key, fileName, mimeType, data); err != nil {
		return nil, err
	} else if ok {
		recordCacheLookup(uc.deps.Metrics, domain.CacheSourceDurable)
		uc.afterCached(ctx, entry)
		return uc.result(entry, fileName, domain.CacheSourceDurable), nil
	}

	recordCacheLookup(uc.deps.Metrics, domain.CacheSourceNone)
	_, created := uc.deps.Docs.GetOrCreate(key)
	entry, err := uc.processFresh(ctx, key, fileName, mimeType, data)
	if err != nil {
		if created {
			uc.deps.Docs.Delete(key)
		}
		return nil, err
	}

	uc.saveSnapshot(ctx, entry)
	uc.afterCached(ctx, entry)
	return uc.result(entry, fileName, domain.CacheSourceNone), nil
}

func (uc *UploadUseCase) restoreSnapshot(ctx context.Context, key domain.CacheKey, fileName, mimeType string, data []byte) (domain.DocumentEntry, bool, error) {
	if uc.deps.Snapshots == nil {
		return domain.DocumentEntry{}, false, nil
	}
	snapshot, err := uc.deps.Snapshots.Load(ctx, string(key))
	if err != nil {
		if !domain.IsKind(err, domain.ErrDocumentNotFound) {
			slog.Warn("snapshot_load_failed", "content_hash", string(key), "error", err)
		}
		return domain.DocumentEntry{}, false, nil
	}
	if len(snapshot.Chunks) == 0 || len(snapshot.Chunks) != len(snapshot.Embeddings) {
		slog.Warn("snapshot_invalid", "content_hash", string(key), "chunks", len(snapshot.Chunks), "embeddings", len(snapshot.Embeddings))
		return domain.DocumentEntry{}, false, nil
	}

	index, err := uc.deps.Indexes.Build(snapshot.Embeddings)
	if err != nil {
		slog.Warn("snapshot_index_failed", "content_hash", string(key), "error", err)
		return domain.DocumentEntry{}, false, nil
	}

	uc.deps.Docs.GetOrCreate(key)
	entry, err := uc.deps.Docs.Merge(key, func(entry *domain.DocumentEntry) error {
		entry.Source = &domain.SourceFile{Bytes: data, MimeType: mimeType, FileName: fileName}
		entry.PageCount = snapshot.PageCount
		entry.Chunks = snapshot.Chunks
		entry.Embeddings = snapshot.Embeddings
		entry.Index = index
		entry.RedFlags = nonNilFlags(snapshot.RedFlags)
		entry.State = domain.StateReady
		return nil
	})
	if err != nil {
		return domain.DocumentEntry{}, false, fmt.Errorf("restore snapshot: %w", err)
	}
	return entry, true, nil
}

func (uc *UploadUseCase) processFresh(ctx context.Context, key domain.CacheKey, fileName, mimeType string, data []byte) (domain.DocumentEntry, error) {
	pages, err := uc.deps.Extractor.CountPages(data, mimeType, fileName)
	if err != nil {
		slog.Warn("page_count_failed", "content_hash", string(key), "file_name", fileName, "error", err)
		pages = 0
	}
	path := uc.pathFor(pages)

	extraction, err := uc.extract(ctx, path, fileName, mimeType, data)
	if err != nil {
		return domain.DocumentEntry{}, err
	}
	if extraction.PageCount > 0 {
		pages = extraction.PageCount
	}

	chunks := uc.deps.Chunker.Split(extraction.Text)
	if len(chunks) == 0 {
		return domain.DocumentEntry{}, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("no extractable text"))
	}

	var (
		vectors [][]float32
		flags   []domain.RedFlag
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		out, err := uc.deps.Embedder.Embed(groupCtx, chunks)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(out) != len(chunks) {
			return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(out), len(chunks))
		}
		vectors = out
		return nil
	})
	group.Go(func() error {
		flags = nonNilFlags(uc.deps.Scanner.Scan(chunks))
		return nil
	})
	if err := group.Wait(); err != nil {
		return domain.DocumentEntry{}, err
	}

	index, err := uc.deps.Indexes.Build(vectors)
	if err != nil {
		return domain.DocumentEntry{}, fmt.Errorf("build index: %w", err)
	}

	entry, err := uc.deps.Docs.Merge(key, func(entry *domain.DocumentEntry) error {
		entry.Source = &domain.SourceFile{Bytes: data, MimeType: mimeType, FileName: fileName}
		entry.PageCount = pages
		entry.Chunks = chunks
		entry.Embeddings = vectors
		entry.Index = index
		entry.RedFlags = flags
		entry.State = domain.StateReady
		return nil
	})
	if err != nil {
		return domain.DocumentEntry{}, fmt.Errorf("cache document: %w", err)
	}

	slog.Info("document_cached",
		"content_hash", string(key),
		"file_name", fileName,
		"path", string(path),
		"pages", pages,
		"chunks", len(chunks),
		"red_flags", len(flags),
	)
	return entry, nil
}

func (uc *UploadUseCase) pathFor(pages int) domain.ExtractionPath {
	if pages > 0 && pages <= uc.opts.FastPathMaxPages {
		return domain.PathFast
	}
	return domain.PathRobust
}

// extract runs on the worker pool. The robust path stages the upload in blob
// storage for the duration of the long extraction.
func (uc *UploadUseCase) extract(ctx context.Context, path domain.ExtractionPath, fileName, mimeType string, data []byte) (domain.Extraction, error) {
	timeout := uc.opts.FastExtractTimeout
	if path == domain.PathRobust {
		timeout = uc.opts.RobustExtractTimeout
		if uc.deps.Blobs != nil {
			stagedKey := "uploads/" + uuid.NewString() + "-" + sanitizeFilename(fileName)
			if err := uc.deps.Blobs.Put(ctx, stagedKey, bytes.NewReader(data)); err != nil {
				return domain.Extraction{}, fmt.Errorf("stage upload: %w", err)
			}
			defer func() {
				if err := uc.deps.Blobs.Delete(context.WithoutCancel(ctx), stagedKey); err != nil {
					slog.Warn("staged_upload_delete_failed", "key", stagedKey, "error", err)
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var extraction domain.Extraction
	run := func(ctx context.Context) error {
		out, err := uc.deps.Extractor.Extract(ctx, data, mimeType, fileName)
		if err != nil {
			return err
		}
		extraction = out
		return nil
	}

	var err error
	if uc.deps.Pool != nil {
		err = uc.deps.Pool.Do(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Extraction{}, domain.WrapError(domain.ErrTemporary, "extract text", err)
		}
		return domain.Extraction{}, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(extraction.Text) == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return extraction, nil
}

func (uc *UploadUseCase) saveSnapshot(ctx context.Context, entry domain.DocumentEntry) {
	if uc.deps.Snapshots == nil {
		return
	}
	snapshot := &domain.DocumentSnapshot{
		ContentHash: entry.ContentHash,
		PageCount:   entry.PageCount,
		Chunks:      entry.Chunks,
		Embeddings:  entry.Embeddings,
		RedFlags:    entry.RedFlags,
		CreatedAt:   entry.CreatedAt,
	}
	if entry.Source != nil {
		snapshot.FileName = entry.Source.FileName
		snapshot.MimeType = entry.Source.MimeType
	}

	uc.snapshots.Add(1)
	go func() {
		defer uc.snapshots.Done()
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotSaveTimeout)
		defer cancel()
		if err := uc.deps.Snapshots.Save(saveCtx, snapshot); err != nil {
			slog.Error("snapshot_save_failed", "content_hash", snapshot.ContentHash, "error", err)
		}
	}()
}

func (uc *UploadUseCase) afterCached(ctx context.Context, entry domain.DocumentEntry) {
	publishEvent(ctx, uc.deps.Events, domain.DocumentEvent{
		Type:        domain.EventDocumentCached,
		ContentHash: entry.ContentHash,
		State:       string(entry.State),
	})
	if uc.deps.Enricher != nil {
		uc.deps.Enricher.Start(entry.ContentHash)
	}
}

func (uc *UploadUseCase) result(entry domain.DocumentEntry, fileName string, source domain.CacheSource) *domain.UploadResult {
	return &domain.UploadResult{
		ContentHash: entry.ContentHash,
		FileName:    fileName,
		Chunks:      entry.Chunks,
		RedFlags:    nonNilFlags(entry.RedFlags),
		PageCount:   entry.PageCount,
		Path:        uc.pathFor(entry.PageCount),
		CacheHit:    source != domain.CacheSourceNone,
		CacheSource: source,
		State:       entry.State,
	}
}

func nonNilFlags(flags []domain.RedFlag) []domain.RedFlag {
	if flags == nil {
		return []domain.RedFlag{}
	}
	return flags
}

func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
