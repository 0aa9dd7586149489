// Package pipeline drives a capture from raw input to a resolved entity.
//
// Submissions persist the capture and return immediately; processing runs on
// its own goroutine. Within one capture the steps are strictly sequential:
// transcribe, classify, resolve, notify. The classification tag is written only
// after the entity exists, so a non-null tag means the entity is queryable.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/jot/internal/db"
	jerrors "github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/note"
	"github.com/hpungsan/jot/internal/notify"
	"github.com/hpungsan/jot/internal/resolve"
)

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Classifier maps text to a raw classification JSON payload.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// EntityResolver applies a parsed classification to the store.
type EntityResolver interface {
	Resolve(ctx context.Context, captureID string, res *note.ClassificationResult) (*resolve.Outcome, error)
}

// AudioStore persists and reads back uploaded recordings.
type AudioStore interface {
	Save(id, filename string, r io.Reader) (string, error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

// ErrNoise marks a transcript rejected as silence or noise.
var ErrNoise = errors.New("transcript is silence or noise")

// DefaultClaimTTL is how long a processing claim blocks other processes.
const DefaultClaimTTL = 10 * time.Minute

// errClaimLost marks a run that stopped because another process holds the capture.
var errClaimLost = errors.New("capture claimed by another process")

// Options configures a Pipeline.
type Options struct {
	Now   func() time.Time
	NewID func() string

	// Owner identifies this pipeline in capture claims. Defaults to a fresh ULID.
	Owner string

	// ClaimTTL is the lease after which another process may take over an
	// unfinished capture. Defaults to DefaultClaimTTL.
	ClaimTTL time.Duration
}

// Pipeline processes captures asynchronously.
type Pipeline struct {
	db          *sql.DB
	transcriber Transcriber
	classifier  Classifier
	resolver    EntityResolver
	audio       AudioStore
	notifier    *notify.Registry
	opts        Options
	log         *logger.Logger

	wg sync.WaitGroup
}

// New returns a Pipeline. transcriber and audio may be nil when only text
// captures are accepted.
func New(database *sql.DB, transcriber Transcriber, classifier Classifier, resolver EntityResolver,
	audio AudioStore, notifier *notify.Registry, opts Options, log *logger.Logger) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return ulid.Make().String() }
	}
	if opts.Owner == "" {
		opts.Owner = ulid.Make().String()
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = DefaultClaimTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		db:          database,
		transcriber: transcriber,
		classifier:  classifier,
		resolver:    resolver,
		audio:       audio,
		notifier:    notifier,
		opts:        opts,
		log:         log.With("component", "pipeline"),
	}
}

// SubmitText persists a text capture and starts processing it in the background.
func (p *Pipeline) SubmitText(ctx context.Context, text string) (*note.Capture, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, jerrors.NewInvalidRequest("text is required")
	}
	c := &note.Capture{
		ID:         p.opts.NewID(),
		CreatedAt:  p.opts.Now().Unix(),
		Transcript: &text,
		Stage:      note.StageTranscribed,
	}
	if err := db.InsertClaimedCapture(ctx, p.db, c, p.opts.Owner, c.CreatedAt); err != nil {
		return nil, err
	}
	p.start(ctx, c.ID)
	return c, nil
}

// SubmitAudio stores the recording, persists an audio capture and starts
// processing it in the background.
func (p *Pipeline) SubmitAudio(ctx context.Context, r io.Reader, filename string) (*note.Capture, error) {
	if p.audio == nil || p.transcriber == nil {
		return nil, jerrors.NewInvalidRequest("audio captures are not enabled")
	}
	id := p.opts.NewID()
	path, err := p.audio.Save(id, filename, r)
	if err != nil {
		return nil, err
	}
	c := &note.Capture{
		ID:        id,
		CreatedAt: p.opts.Now().Unix(),
		AudioPath: &path,
		Stage:     note.StageReceived,
	}
	if err := db.InsertClaimedCapture(ctx, p.db, c, p.opts.Owner, c.CreatedAt); err != nil {
		if rmErr := p.audio.Remove(path); rmErr != nil {
			p.log.Warn("remove orphaned audio", "path", path, "error", rmErr)
		}
		return nil, err
	}
	p.start(ctx, c.ID)
	return c, nil
}

// Resume restarts processing for captures left unfinished by a previous run.
// Captures another live process holds a fresh claim on are skipped. It
// returns how many captures were claimed and restarted.
func (p *Pipeline) Resume(ctx context.Context) (int, error) {
	pending, err := db.PendingCaptures(ctx, p.db)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range pending {
		ok, err := p.claim(ctx, c.ID)
		if err != nil {
			return n, err
		}
		if !ok {
			p.log.Debug("capture held elsewhere", "capture_id", c.ID)
			continue
		}
		p.start(ctx, c.ID)
		n++
	}
	return n, nil
}

// Wait blocks until every background run has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// start runs Process detached from the caller's cancellation; the caller has
// already been answered.
func (p *Pipeline) start(ctx context.Context, id string) {
	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("pipeline panic", "capture_id", id, "panic", r)
				p.fail(bg, id, fmt.Errorf("panic: %v", r))
			}
		}()
		if err := p.Process(bg, id); err != nil {
			p.log.Warn("capture failed", "capture_id", id, "error", err)
		}
	}()
}

// Process runs one capture to completion synchronously. Any failure marks the
// capture as error and is returned after subscribers are notified. A capture
// that is already tagged or held by another process is left alone.
func (p *Pipeline) Process(ctx context.Context, id string) error {
	ok, err := p.claim(ctx, id)
	if err != nil {
		return p.fail(ctx, id, fmt.Errorf("claim capture: %w", err))
	}
	if !ok {
		p.log.Debug("capture not claimable", "capture_id", id)
		return nil
	}
	c, err := db.GetCapture(ctx, p.db, id)
	if err != nil {
		if jerrors.Is(err, jerrors.ErrNotFound) {
			return err
		}
		return p.fail(ctx, id, fmt.Errorf("load capture: %w", err))
	}
	if c.Done() {
		return nil
	}
	log := p.log.With("capture_id", id)

	transcript, err := p.transcript(ctx, c, log)
	if err != nil {
		return p.fail(ctx, id, err)
	}
	if note.IsNoise(transcript) {
		log.Info("noise transcript rejected", "transcript", transcript)
		return p.fail(ctx, id, ErrNoise)
	}

	p.setStage(ctx, id, note.StageClassifying, log)
	raw, err := p.classifier.Classify(ctx, transcript)
	if err != nil {
		return p.fail(ctx, id, fmt.Errorf("classify: %w", err))
	}
	// The raw payload lands before the tag so failures keep it for diagnosis.
	if err := db.SetCaptureRawOutput(ctx, p.db, id, raw); err != nil {
		return p.fail(ctx, id, fmt.Errorf("store classifier output: %w", err))
	}
	res, err := note.ParseClassification([]byte(raw))
	if err != nil {
		return p.fail(ctx, id, fmt.Errorf("parse classification: %w", err))
	}
	log.Debug("classified", "type", res.Type, "category", res.Category)

	// Renew the lease before mutating entities; a long transcription may have
	// outlived it and let another process take over.
	ok, err = p.claim(ctx, id)
	if err != nil {
		return p.fail(ctx, id, fmt.Errorf("renew claim: %w", err))
	}
	if !ok {
		log.Warn("claim lost before resolve")
		return errClaimLost
	}
	p.setStage(ctx, id, note.StageResolving, log)
	out, err := p.resolver.Resolve(ctx, id, res)
	if err != nil {
		return p.fail(ctx, id, fmt.Errorf("resolve: %w", err))
	}

	if err := db.CompleteCapture(ctx, p.db, id, res.Type, res.Category); err != nil {
		return p.fail(ctx, id, fmt.Errorf("complete capture: %w", err))
	}
	log.Info("capture resolved",
		"classification", res.Type,
		"entity_id", out.EntityID,
		"duplicate", out.Duplicate,
		"matched", out.Matched,
	)
	p.notifier.Notify(id, notify.Result{Classification: res.Type, Category: res.Category})
	return nil
}

func (p *Pipeline) transcript(ctx context.Context, c *note.Capture, log *logger.Logger) (string, error) {
	if c.Transcript != nil {
		return *c.Transcript, nil
	}
	if c.AudioPath == nil {
		return "", errors.New("capture has neither audio nor transcript")
	}
	if p.transcriber == nil || p.audio == nil {
		return "", errors.New("audio capture without a transcriber")
	}

	p.setStage(ctx, c.ID, note.StageTranscribing, log)
	f, err := p.audio.Open(*c.AudioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	text, err := p.transcriber.Transcribe(ctx, f, *c.AudioPath)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if err := db.SetCaptureTranscript(ctx, p.db, c.ID, text); err != nil {
		return "", fmt.Errorf("store transcript: %w", err)
	}
	log.Debug("transcribed", "chars", len(text))
	return text, nil
}

// claim takes or renews this pipeline's lease on id.
func (p *Pipeline) claim(ctx context.Context, id string) (bool, error) {
	now := p.opts.Now()
	return db.ClaimCapture(ctx, p.db, id, p.opts.Owner, now.Unix(), now.Add(-p.opts.ClaimTTL).Unix())
}

// fail tags the capture as error, notifies subscribers and returns cause.
func (p *Pipeline) fail(ctx context.Context, id string, cause error) error {
	if err := db.CompleteCapture(ctx, p.db, id, note.ClassError, note.CategoryUnknown); err != nil {
		p.log.Error("failed to mark capture as error", "capture_id", id, "error", err)
	}
	p.notifier.Notify(id, notify.Result{Classification: note.ClassError, Category: note.CategoryUnknown})
	return cause
}

// setStage records progress; stage is diagnostic only, so failures are logged.
func (p *Pipeline) setStage(ctx context.Context, id string, stage note.Stage, log *logger.Logger) {
	if err := db.SetCaptureStage(ctx, p.db, id, stage); err != nil {
		log.Warn("failed to record stage", "stage", stage, "error", err)
		return
	}
	log.Debug("stage", "stage", stage)
}
