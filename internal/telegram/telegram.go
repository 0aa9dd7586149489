// Package telegram turns chat messages into captures and answers each one
// with a single reply once processing finishes.
package telegram

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hpungsan/jot/internal/config"
	"github.com/hpungsan/jot/internal/errors"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/note"
	"github.com/hpungsan/jot/internal/notify"
	"github.com/hpungsan/jot/internal/ops"
)

// Telegram rejects messages longer than 4096 characters.
const maxMessageLen = 4000

// Capturer accepts text and voice captures.
type Capturer interface {
	SubmitText(ctx context.Context, text string) (*note.Capture, error)
	SubmitAudio(ctx context.Context, r io.Reader, filename string) (*note.Capture, error)
}

// Deps are the collaborators the channel needs. HTTPClient and NewBot are
// optional.
type Deps struct {
	DB         *sql.DB
	Config     *config.Config
	Capturer   Capturer
	Registry   *notify.Registry
	Log        *logger.Logger
	HTTPClient *http.Client
	NewBot     BotFactory
}

// Channel polls Telegram for messages from allowed senders.
type Channel struct {
	db        *sql.DB
	cfg       *config.Config
	capturer  Capturer
	registry  *notify.Registry
	log       *logger.Logger
	client    *http.Client
	newBot    BotFactory
	token     string
	allowFrom []string

	bot     Bot
	replies sync.WaitGroup
}

// New validates the configuration. The bot connects in Run.
func New(deps Deps) (*Channel, error) {
	token := strings.TrimSpace(deps.Config.Telegram.Token)
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	newBot := deps.NewBot
	if newBot == nil {
		newBot = defaultBotFactory
	}
	return &Channel{
		db:        deps.DB,
		cfg:       deps.Config,
		capturer:  deps.Capturer,
		registry:  deps.Registry,
		log:       log.With("component", "telegram"),
		client:    client,
		newBot:    newBot,
		token:     token,
		allowFrom: deps.Config.Telegram.AllowFrom,
	}, nil
}

// Run connects and handles updates until ctx is cancelled, then waits for
// pending replies.
func (c *Channel) Run(ctx context.Context) error {
	bot, err := c.newBot(c.token, c.client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	c.bot = bot

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)
	c.log.Info("telegram polling started", "bot", bot.GetSelf().UserName)

	defer func() {
		bot.StopReceivingUpdates()
		c.replies.Wait()
		c.log.Info("telegram stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			c.handleMessage(ctx, update.Message)
		}
	}
}

// allowed reports whether a sender may submit. An empty list allows everyone.
func (c *Channel) allowed(senderID, username string) bool {
	if len(c.allowFrom) == 0 {
		return true
	}
	if slices.Contains(c.allowFrom, senderID) {
		return true
	}
	return username != "" && slices.Contains(c.allowFrom, "@"+username)
}

func (c *Channel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !c.allowed(senderID, msg.From.UserName) {
		c.log.Warn("rejected telegram message", "sender_id", senderID)
		return
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		c.handleCommand(ctx, chatID, msg)
		return
	}

	var (
		capture *note.Capture
		err     error
	)
	switch {
	case msg.Voice != nil:
		capture, err = c.submitFile(ctx, msg.Voice.FileID, "voice.oga")
	case msg.Audio != nil:
		capture, err = c.submitFile(ctx, msg.Audio.FileID, msg.Audio.FileName)
	default:
		text := msg.Text
		if text == "" {
			text = msg.Caption
		}
		if strings.TrimSpace(text) == "" {
			return
		}
		capture, err = c.capturer.SubmitText(ctx, text)
	}
	if err != nil {
		c.log.Warn("telegram capture rejected", "chat_id", chatID, "error", err)
		c.send(chatID, msg.MessageID, failureText(err))
		return
	}

	c.log.Debug("telegram capture accepted", "chat_id", chatID, "capture_id", capture.ID)
	c.replies.Add(1)
	go func() {
		defer c.replies.Done()
		c.awaitReply(ctx, chatID, msg.MessageID, capture.ID)
	}()
}

func (c *Channel) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "digest":
		out, err := ops.Digest(ctx, c.db, ops.DigestInput{
			Now:      time.Now(),
			Location: c.cfg.Location(),
		})
		if err != nil {
			c.log.Warn("telegram digest failed", "error", err)
			c.send(chatID, msg.MessageID, "Sorry, I couldn't build the digest.")
			return
		}
		c.send(chatID, msg.MessageID, out.Markdown)
	default:
		c.send(chatID, msg.MessageID, helpText)
	}
}

const helpText = "Send me a text or voice note and I'll file it as a task or a thought.\n/digest shows what's due."

// submitFile downloads a Telegram file and streams it into an audio capture.
func (c *Channel) submitFile(ctx context.Context, fileID, fallbackName string) (*note.Capture, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, errors.NewUpstream("telegram", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(c.token), nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewUpstream("telegram", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewUpstream("telegram", fmt.Errorf("download file: unexpected status %d", resp.StatusCode))
	}

	name := path.Base(file.FilePath)
	if path.Ext(name) == "" {
		name = fallbackName
	}
	return c.capturer.SubmitAudio(ctx, resp.Body, name)
}

func (c *Channel) awaitReply(ctx context.Context, chatID int64, replyTo int, captureID string) {
	out, err := ops.AwaitCapture(ctx, c.db, c.registry, ops.PollSchedule(c.cfg, ops.WaitCaptureInput{ID: captureID}))
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("telegram wait failed", "capture_id", captureID, "error", err)
		}
		return
	}
	c.send(chatID, replyTo, replyText(out.Result))
}

// send delivers text in chunks under Telegram's message size limit.
func (c *Channel) send(chatID int64, replyTo int, text string) {
	for _, chunk := range chunks(text, maxMessageLen) {
		m := tgbotapi.NewMessage(chatID, chunk)
		m.ReplyToMessageID = replyTo
		if _, err := c.bot.Send(m); err != nil {
			c.log.Warn("telegram send failed", "chat_id", chatID, "error", err)
			return
		}
	}
}

// chunks splits s at newlines where possible so each piece fits in max bytes.
func chunks(s string, max int) []string {
	var out []string
	for len(s) > max {
		cut := strings.LastIndex(s[:max], "\n")
		if cut <= 0 {
			cut = max
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
		}
		out = append(out, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	if s != "" || len(out) == 0 {
		out = append(out, s)
	}
	return out
}

func replyText(res notify.Result) string {
	switch res.Classification {
	case note.ClassTaskCreate:
		return withCategory("Saved as task", res.Category)
	case note.ClassTaskUpdate:
		return withCategory("Updated task", res.Category)
	case note.ClassThought:
		return withCategory("Noted", res.Category)
	case note.ClassTimeout:
		return "Still working on that one. Check back in a bit."
	default:
		return "Sorry, I couldn't process that."
	}
}

func withCategory(msg string, category note.Category) string {
	if !category.Valid() {
		return msg
	}
	return fmt.Sprintf("%s (%s)", msg, category)
}

func failureText(err error) string {
	switch {
	case errors.Is(err, errors.ErrPayloadTooLarge):
		return "That recording is too long for me."
	case errors.Is(err, errors.ErrInvalidRequest):
		return "I can't take that kind of message yet."
	default:
		return "Sorry, I couldn't save that."
	}
}
