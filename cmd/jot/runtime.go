package main

import (
	"database/sql"
	"path/filepath"

	"github.com/hpungsan/jot/internal/audio"
	"github.com/hpungsan/jot/internal/config"
	"github.com/hpungsan/jot/internal/db"
	"github.com/hpungsan/jot/internal/llm"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/match"
	"github.com/hpungsan/jot/internal/notify"
	"github.com/hpungsan/jot/internal/pipeline"
	"github.com/hpungsan/jot/internal/resolve"
)

// languageModel is everything jot asks of the model provider.
type languageModel interface {
	pipeline.Transcriber
	pipeline.Classifier
	match.Embedder
	match.Completer
}

func defaultLLM(cfg *config.Config) (languageModel, error) {
	return llm.New(cfg, llm.Options{Location: cfg.Location()})
}

// cliEnv carries what every command needs. Commands that process captures
// build a runtime on top of it.
type cliEnv struct {
	db      *sql.DB
	cfg     *config.Config
	baseDir string
	log     *logger.Logger
	newLLM  func(cfg *config.Config) (languageModel, error)
}

func (e *cliEnv) audioStore() *audio.Store {
	return audio.NewStore(filepath.Join(e.baseDir, db.AudioDirName), e.cfg.MaxAudioBytes)
}

// runtime is the wired capture pipeline.
type runtime struct {
	matcher  match.DuplicateMatcher
	registry *notify.Registry
	audio    *audio.Store
	pipeline *pipeline.Pipeline
}

func (e *cliEnv) runtime() (*runtime, error) {
	model, err := e.newLLM(e.cfg)
	if err != nil {
		return nil, err
	}
	matcher, err := match.New(e.cfg, e.db, model, model, e.log, nil)
	if err != nil {
		return nil, err
	}
	targets := match.NewLexical(e.db, match.LexicalOptions{
		DuplicateThreshold: e.cfg.LexicalDuplicateThreshold,
		TargetThreshold:    e.cfg.LexicalTargetThreshold,
		Window:             e.cfg.DuplicateWindow(),
	})
	resolver := resolve.New(e.db, matcher, targets, resolve.Options{Location: e.cfg.Location()}, e.log)
	registry := notify.NewRegistry(e.cfg.WaitTimeout())
	store := e.audioStore()
	p := pipeline.New(e.db, model, model, resolver, store, registry, pipeline.Options{}, e.log)

	e.log.Debug("runtime ready", "matcher", matcher.Name())
	return &runtime{
		matcher:  matcher,
		registry: registry,
		audio:    store,
		pipeline: p,
	}, nil
}
