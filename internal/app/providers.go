// Package app wires the components together and exposes the case-level
// operations the CLI and HTTP API share.
package app

import (
	"log/slog"
	"sync"

	"github.com/casegrounds/casegrounds/internal/answer"
	"github.com/casegrounds/casegrounds/internal/chunk"
	"github.com/casegrounds/casegrounds/internal/cite"
	"github.com/casegrounds/casegrounds/internal/config"
	"github.com/casegrounds/casegrounds/internal/docstore"
	"github.com/casegrounds/casegrounds/internal/embed"
	"github.com/casegrounds/casegrounds/internal/legal"
	"github.com/casegrounds/casegrounds/internal/llm"
	"github.com/casegrounds/casegrounds/internal/search"
	"github.com/casegrounds/casegrounds/internal/session"
	"github.com/casegrounds/casegrounds/internal/store"
)

// Providers aggregates every wired component. Construct it once at startup
// and share it across the CLI command or HTTP server lifetime.
type Providers struct {
	Config    *config.Config
	Docs      *docstore.Store
	Embedder  embed.Embedder
	Vectors   *store.VectorIndex
	Lexical   *store.LexicalIndex
	Chunker   *chunk.Chunker
	Retriever *search.Retriever
	Fetcher   *legal.Fetcher
	Searcher  *legal.Searcher
	Chat      llm.Chat
	Validator *cite.Validator
	Sessions  *session.Manager
	Engine    *answer.Engine

	logger *slog.Logger

	// caseLocks serializes mutations per case. Reads go lock-free; the
	// stores handle their own consistency.
	mu        sync.Mutex
	caseLocks map[string]*sync.Mutex
}

// NewProviders wires all components from the configuration.
func NewProviders(cfg *config.Config, logger *slog.Logger) (*Providers, error) {
	if logger == nil {
		logger = slog.Default()
	}

	docs, err := docstore.NewStore(cfg.Storage.CasesDir, logger)
	if err != nil {
		return nil, err
	}

	inner, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		BaseURL:    cfg.Embed.BaseURL,
		APIKey:     cfg.Embed.APIKey,
		Model:      cfg.Embed.Model,
		Dimensions: cfg.Embed.Dimension,
	})
	if err != nil {
		return nil, err
	}
	embedder := embed.NewCachedEmbedder(inner, cfg.Embed.CacheSize)

	vectors, err := store.NewVectorIndex(cfg.Storage.VectorDir, cfg.Embed.Dimension, logger)
	if err != nil {
		return nil, err
	}
	lexical := store.NewLexicalIndex(docs, cfg.Search.MaxChunksPerDoc, logger)

	chunker := chunk.New(chunk.Config{
		TargetWords:      cfg.Chunk.TargetWords,
		OverlapWords:     cfg.Chunk.OverlapWords,
		OCRTextThreshold: cfg.Chunk.OCRTextThreshold,
	}, nil, nil, &chunk.OCRMyPDFRunner{Timeout: cfg.Chunk.OCRTimeout, Logger: logger}, logger)

	retriever := search.NewRetriever(embedder, vectors, lexical, docs, search.Config{
		TopK:            cfg.Search.TopK,
		MaxChunksPerDoc: cfg.Search.MaxChunksPerDoc,
		DedupeThreshold: cfg.Search.DedupeThreshold,
		KeywordWeight:   cfg.Search.KeywordWeight,
		VectorWeight:    cfg.Search.VectorWeight,
	}, logger)

	cache, err := legal.NewCache(cfg.Storage.LegalCacheDir, logger)
	if err != nil {
		return nil, err
	}
	fetcher, err := legal.NewFetcher(cache, legal.FetcherConfig{
		Whitelist: cfg.Legal.WhitelistDomains,
		Timeout:   cfg.Legal.FetchTimeout,
		UserAgent: cfg.Legal.UserAgent,
	}, logger)
	if err != nil {
		return nil, err
	}
	searcher := legal.NewSearcher(fetcher, nil, logger)

	chat, err := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, err
	}

	validator := cite.NewValidator(docs, legal.NewWhitelist(cfg.Legal.WhitelistDomains))
	sessions := session.NewManager(cfg.Storage.CasesDir, logger)

	engine := answer.NewEngine(retriever, searcher, chat, validator, sessions, answer.Config{
		TopK:       cfg.Answer.RetrievalTopK,
		MaxRetries: cfg.Answer.MaxCitationRetries,
		Whitelist:  cfg.Legal.WhitelistDomains,
	}, logger)

	return &Providers{
		Config:    cfg,
		Docs:      docs,
		Embedder:  embedder,
		Vectors:   vectors,
		Lexical:   lexical,
		Chunker:   chunker,
		Retriever: retriever,
		Fetcher:   fetcher,
		Searcher:  searcher,
		Chat:      chat,
		Validator: validator,
		Sessions:  sessions,
		Engine:    engine,
		logger:    logger,
		caseLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Close releases held resources.
func (p *Providers) Close() error {
	err := p.Lexical.Close()
	if cerr := p.Embedder.Close(); err == nil {
		err = cerr
	}
	return err
}

// lock returns the mutation lock for a case, creating it on first use.
func (p *Providers) lock(caseID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.caseLocks[caseID]
	if !ok {
		l = &sync.Mutex{}
		p.caseLocks[caseID] = l
	}
	return l
}
