package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hpungsan/jot/internal/config"
	"github.com/hpungsan/jot/internal/notify"
)

var errStillProcessing = stderrors.New("capture still processing")

const (
	defaultPollInitial     = 250 * time.Millisecond
	defaultPollMaxInterval = 2 * time.Second
)

// WaitCaptureInput contains parameters for the WaitCapture operation.
// Zero durations fall back to the defaults from config.
type WaitCaptureInput struct {
	ID          string
	Initial     time.Duration
	MaxInterval time.Duration
	MaxWait     time.Duration
}

// WaitCaptureOutput contains the result of the WaitCapture operation.
type WaitCaptureOutput struct {
	ID       string        `json:"id"`
	Result   notify.Result `json:"result"`
	TimedOut bool          `json:"timed_out"`
}

// PollSchedule fills zero durations in input from cfg.
func PollSchedule(cfg *config.Config, input WaitCaptureInput) WaitCaptureInput {
	if input.Initial <= 0 {
		input.Initial = time.Duration(cfg.PollInitialMillis) * time.Millisecond
	}
	if input.MaxInterval <= 0 {
		input.MaxInterval = time.Duration(cfg.PollMaxIntervalMillis) * time.Millisecond
	}
	if input.MaxWait <= 0 {
		input.MaxWait = time.Duration(cfg.PollMaxWaitSeconds) * time.Second
	}
	return input
}

// WaitCapture polls a capture with exponential backoff until it carries a
// classification tag. If MaxWait passes first it returns the timeout result.
func WaitCapture(ctx context.Context, database *sql.DB, input WaitCaptureInput) (*WaitCaptureOutput, error) {
	id, err := ValidateID("capture", input.ID)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = input.Initial
	b.MaxInterval = input.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0

	out, err := backoff.Retry(ctx, func() (*FetchCaptureOutput, error) {
		fetched, err := FetchCapture(ctx, database, FetchCaptureInput{ID: id})
		if err != nil {
			// Missing rows and storage errors will not fix themselves.
			return nil, backoff.Permanent(err)
		}
		if !fetched.Done {
			return nil, errStillProcessing
		}
		return fetched, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(input.MaxWait))

	switch {
	case err == nil:
		return &WaitCaptureOutput{ID: id, Result: *out.Result}, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case stderrors.Is(err, errStillProcessing):
		return &WaitCaptureOutput{ID: id, Result: notify.TimeoutResult, TimedOut: true}, nil
	default:
		return nil, err
	}
}

// AwaitCapture waits for a capture to finish. The completion registry answers
// for captures this process runs; a backoff poll of the store answers for
// captures finished by another process. The first answer wins and the
// registry timeout bounds the wait. input.MaxWait is not used.
func AwaitCapture(ctx context.Context, database *sql.DB, registry *notify.Registry, input WaitCaptureInput) (*WaitCaptureOutput, error) {
	id, err := ValidateID("capture", input.ID)
	if err != nil {
		return nil, err
	}

	// Subscribe first so a completion between the read and the wait is not lost.
	sub := registry.Subscribe(id)
	fetched, err := FetchCapture(ctx, database, FetchCaptureInput{ID: id})
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	if fetched.Done {
		sub.Cancel()
		return &WaitCaptureOutput{ID: id, Result: *fetched.Result}, nil
	}

	pollCtx, stopPoll := context.WithCancel(ctx)
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		pollStore(pollCtx, database, sub, id, input)
	}()

	res, err := sub.Wait(ctx)
	stopPoll()
	<-polled
	if err != nil {
		return nil, err
	}
	return &WaitCaptureOutput{ID: id, Result: res, TimedOut: res == notify.TimeoutResult}, nil
}

// pollStore delivers the stored result to sub once the capture carries a tag.
// Read errors are skipped; the subscription timeout still ends the wait.
func pollStore(ctx context.Context, database *sql.DB, sub *notify.Subscription, id string, input WaitCaptureInput) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = input.Initial
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultPollInitial
	}
	b.MaxInterval = input.MaxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = defaultPollMaxInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0

	ticker := backoff.NewTicker(b)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticker.C:
			if !ok {
				return
			}
			fetched, err := FetchCapture(ctx, database, FetchCaptureInput{ID: id})
			if err != nil || !fetched.Done {
				continue
			}
			sub.Deliver(*fetched.Result)
			return
		}
	}
}
