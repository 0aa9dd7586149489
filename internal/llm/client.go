// Package llm talks to an OpenAI-compatible endpoint for transcription,
// classification, adjudication and embeddings.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hpungsan/jot/internal/config"
	jerrors "github.com/hpungsan/jot/internal/errors"
)

// Client wraps the OpenAI SDK client with the models jot uses.
type Client struct {
	api                openai.Client
	chatModel          string
	embeddingModel     string
	transcriptionModel string

	now func() time.Time
	loc *time.Location
}

// Options overrides the clock used for "today" in the classification prompt.
type Options struct {
	Now      func() time.Time
	Location *time.Location

	// RequestOptions are appended after the config-derived options.
	RequestOptions []option.RequestOption
}

// New builds a Client from cfg.LLM.
func New(cfg *config.Config, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.LLM.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm: api key required (set JOT_LLM_API_KEY or OPENAI_API_KEY)")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.LLM.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.LLM.BaseURL))
	}
	if cfg.LLM.TimeoutSeconds > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second))
	}
	reqOpts = append(reqOpts, opts.RequestOptions...)

	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = cfg.Location()
	}

	return &Client{
		api:                openai.NewClient(reqOpts...),
		chatModel:          cfg.LLM.ChatModel,
		embeddingModel:     cfg.LLM.EmbeddingModel,
		transcriptionModel: cfg.LLM.TranscriptionModel,
		now:                opts.Now,
		loc:                opts.Location,
	}, nil
}

// Transcribe converts recorded audio to text. filename's extension tells the
// service the container format.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	name := filepath.Base(filename)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := c.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, name, contentType),
		Model: openai.AudioModel(c.transcriptionModel),
	})
	if err != nil {
		return "", jerrors.NewUpstream("transcription", err)
	}
	return resp.Text, nil
}

// Classify returns the raw JSON classification for text.
func (c *Client) Classify(ctx context.Context, text string) (string, error) {
	return c.Complete(ctx, classificationPrompt(c.now().In(c.loc)), text)
}

// Complete runs one JSON-mode chat completion and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", jerrors.NewUpstream("chat completion", err)
	}
	if len(completion.Choices) == 0 {
		return "", jerrors.NewUpstream("chat completion", errors.New("no choices returned"))
	}
	return completion.Choices[0].Message.Content, nil
}

// Embed returns the embedding of text as float32.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, jerrors.NewUpstream("embedding", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, jerrors.NewUpstream("embedding", fmt.Errorf("empty embedding for %d chars", len(text)))
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
