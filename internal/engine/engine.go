// Package engine wires the seven components (C1-C7) into the explicit,
// non-global Engine context the Design Notes call for: a persona-keyed
// registry of durable stores, vector indexes, write-path queues, and
// background worker handles, all reachable through Engine/Persona methods
// instead of package-level singletons.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/solidlime/memoryengine/internal/config"
	"github.com/solidlime/memoryengine/internal/embed"
	"github.com/solidlime/memoryengine/internal/store"
	"github.com/solidlime/memoryengine/internal/vecindex"
	"github.com/solidlime/memoryengine/internal/writepath"
)

// Engine is the top-level, explicit replacement for the donor system's
// global mutable singletons (embedding model, reranker, queue, dirty
// flag, config cache): one Engine is constructed at process startup and
// passed by reference to every request handler and background worker.
type Engine struct {
	Config   config.Config
	Loc      *time.Location
	Embedder embed.Embedder
	Reranker embed.Reranker
	Logger   *slog.Logger

	mu       sync.Mutex
	personas map[string]*Persona
}

// Persona bundles one persona's durable store, vector index, and
// write-path queue plus the shared background-worker timestamps §4.7
// requires (dirty is tracked by Queue itself, since the dirty flag and
// the queue that raises it are the same conceptual component here).
type Persona struct {
	Name   string
	DB     *store.DB
	Index  *vecindex.Index
	Queue  *writepath.Queue
	Writer *writepath.Writer

	mu                  sync.Mutex
	lastWriteTS         time.Time
	lastRebuildTS       time.Time
	lastSummarizationTS time.Time
	suggestions         []CleanupSuggestion

	stopWorkers func()
}

// New constructs an Engine from a resolved Config. The embedding model is
// loaded once and shared across personas per §4.4; this module's default
// is the deterministic HashEmbedder (see internal/embed for the Non-goals
// justification), sized from RerankerTopN-independent defaults.
func New(cfg config.Config) (*Engine, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}

	var reranker embed.Reranker
	if cfg.RerankerModel == "" {
		reranker = embed.IdentityReranker{}
	} else {
		reranker = embed.ScoreReranker{}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	return &Engine{
		Config:   cfg,
		Loc:      loc,
		Embedder: embed.NewHashEmbedder(256),
		Reranker: reranker,
		Logger:   logger,
		personas: make(map[string]*Persona),
	}, nil
}

// Persona returns the handle for name, opening its durable store and
// vector index on first access (migrating the legacy single-file layout
// if present) and starting its background workers.
func (e *Engine) Persona(name string) (*Persona, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.personas[name]; ok {
		return p, nil
	}

	if err := config.MigrateLegacyLayout(name); err != nil {
		return nil, fmt.Errorf("engine: migrating legacy layout for %s: %w", name, err)
	}

	db, err := store.Open(config.MemoryDBPath(name))
	if err != nil {
		return nil, fmt.Errorf("engine: opening store for persona %s: %w", name, err)
	}

	collection := e.Config.QdrantCollectionPrefix + config.SanitizePersona(name)
	index := vecindex.Open(db.SQL(), collection)

	queue := writepath.NewQueue(&writepath.VecApplier{Index: index, Embedder: e.Embedder}, e.Logger)

	p := &Persona{
		Name:  name,
		DB:    db,
		Index: index,
		Queue: queue,
		Writer: &writepath.Writer{
			DB:             db,
			Index:          index,
			Embedder:       e.Embedder,
			Queue:          queue,
			Loc:            e.Loc,
			DefaultPrivacy: e.Config.Privacy.DefaultLevel,
			AutoRedactPII:  e.Config.Privacy.AutoRedactPII,
		},
	}
	p.stopWorkers = e.startWorkers(p)

	e.personas[name] = p
	return p, nil
}

// Close drains every persona's queue, stops its background workers, and
// closes its durable store. Intended for graceful process shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for _, p := range e.personas {
		if p.stopWorkers != nil {
			p.stopWorkers()
		}
		p.Queue.Drain()
		if err := p.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.personas = make(map[string]*Persona)
	return firstErr
}

// markWrite records that a write just happened for this persona, reset
// by every successful Create/Update/Delete — consulted by the idle
// rebuilder and auto-summarizer's idle-detection logic (§4.7).
func (p *Persona) markWrite(now time.Time) {
	p.mu.Lock()
	p.lastWriteTS = now
	p.mu.Unlock()
}
