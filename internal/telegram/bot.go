// Package telegram lets a Telegram chat drive an edit session: each chat owns
// one session, photos become the original image and text the instruction.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"photostudio/internal/domain"
	"photostudio/internal/imagecodec"
	"photostudio/internal/infra"
	"photostudio/internal/session"
	"photostudio/internal/storage"
)

const maxCaptionLen = 1024

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Options tunes the bot.
type Options struct {
	HTTPClient     *http.Client
	Logger         *infra.Logger
	MaxUploadBytes int64
	TypingInterval time.Duration
}

// Bot routes chat updates to per-chat sessions.
type Bot struct {
	api        API
	sessions   *session.Registry
	httpClient *http.Client
	logger     *infra.Logger
	maxUpload  int64
	typing     time.Duration

	wg sync.WaitGroup
}

// New wires a bot around api and the shared session registry.
func New(api API, sessions *session.Registry, opts Options) *Bot {
	b := &Bot{
		api:        api,
		sessions:   sessions,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		maxUpload:  opts.MaxUploadBytes,
		typing:     opts.TypingInterval,
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if b.logger == nil {
		b.logger = infra.DiscardLogger()
	}
	if b.maxUpload <= 0 {
		b.maxUpload = imagecodec.DefaultMaxBytes
	}
	if b.typing <= 0 {
		b.typing = 5 * time.Second
	}
	return b
}

// Run handles updates until ctx ends or the channel closes, then waits for
// pending replies.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.Handle(ctx, update)
		}
	}
}

// Wait blocks until every background reply has been sent.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// Handle processes one update. Edits run in the background.
func (b *Bot) Handle(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	s := b.sessions.Open(SessionID(chatID))

	switch {
	case msg.IsCommand():
		b.command(ctx, chatID, s, msg)
	case msg.Photo != nil && len(*msg.Photo) > 0:
		photos := *msg.Photo
		// Telegram re-encodes photos as JPEG; the last size is the largest.
		b.upload(ctx, chatID, s, photos[len(photos)-1].FileID, "image/jpeg", msg.Caption)
	case msg.Document != nil:
		declared := msg.Document.MimeType
		if declared != "" && !strings.HasPrefix(declared, "image/") {
			b.reply(chatID, "Please send a photo or an image file.")
			return
		}
		b.upload(ctx, chatID, s, msg.Document.FileID, declared, msg.Caption)
	case strings.TrimSpace(msg.Text) != "":
		s.SetInstruction(msg.Text)
		if s.Snapshot().Original == nil {
			b.reply(chatID, "Instruction saved. Now send the photo you want to edit.")
			return
		}
		b.reply(chatID, "Instruction saved. Send /generate to apply it.")
	}
}

// SessionID is the registry key for a chat.
func SessionID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

func (b *Bot) command(ctx context.Context, chatID int64, s *session.Session, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.reply(chatID, helpText)
	case "templates":
		var sb strings.Builder
		sb.WriteString("Presets (use /template <id>):\n")
		for _, t := range s.Catalog().List() {
			fmt.Fprintf(&sb, "%s - %s\n", t.ID, t.Name)
		}
		b.reply(chatID, strings.TrimRight(sb.String(), "\n"))
	case "template":
		id := strings.TrimSpace(msg.CommandArguments())
		if id == "" {
			b.reply(chatID, "Usage: /template <id>. Use /templates to see the list.")
			return
		}
		if err := s.ApplyTemplate(id); err != nil {
			if errors.Is(err, domain.ErrUnknownTemplate) {
				b.reply(chatID, "Unknown template. Use /templates to see the list.")
				return
			}
			b.reply(chatID, domain.DisplayMessage(err))
			return
		}
		b.reply(chatID, "Instruction set: "+s.Snapshot().Instruction+"\nSend /generate to apply it.")
	case "generate":
		b.generate(ctx, chatID, s)
	case "cancel":
		if s.Cancel() {
			b.reply(chatID, "Cancelled.")
			return
		}
		b.reply(chatID, "Nothing to cancel.")
	default:
		b.reply(chatID, "Unknown command. Send /help for the list.")
	}
}

func (b *Bot) upload(ctx context.Context, chatID int64, s *session.Session, fileID, declared, caption string) {
	if err := b.loadFile(ctx, s, fileID, declared); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram: image upload failed")
		switch {
		case errors.Is(err, imagecodec.ErrTooLarge):
			b.reply(chatID, "That image is too large.")
		case errors.Is(err, domain.ErrUnsupportedInput):
			b.reply(chatID, "That file could not be read as an image.")
		default:
			b.reply(chatID, "Could not download the image. Please try again.")
		}
		return
	}
	if notice := s.Snapshot().Notice; notice != "" {
		b.reply(chatID, notice)
	}
	if strings.TrimSpace(caption) != "" {
		s.SetInstruction(caption)
		b.generate(ctx, chatID, s)
		return
	}
	if s.Snapshot().CanGenerate() {
		b.reply(chatID, "Got the image. Send /generate to apply your instruction, or a new instruction.")
		return
	}
	b.reply(chatID, "Got the image. Now describe the edit, or pick a preset with /templates.")
}

func (b *Bot) loadFile(ctx context.Context, s *session.Session, fileID, declared string) error {
	link, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("telegram: resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("telegram: build download: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: download status %d", resp.StatusCode)
	}
	if declared == "" {
		declared = resp.Header.Get("Content-Type")
	}
	return s.LoadImage(resp.Body, declared, b.maxUpload)
}

func (b *Bot) generate(ctx context.Context, chatID int64, s *session.Session) {
	call, err := s.Start(ctx)
	switch {
	case errors.Is(err, domain.ErrPrecondition):
		b.reply(chatID, "Please upload an image and enter an instruction.")
		return
	case errors.Is(err, domain.ErrAlreadyInFlight):
		b.reply(chatID, "An edit is already in progress. Send /cancel to stop it.")
		return
	case err != nil:
		b.reply(chatID, domain.DisplayMessage(err))
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.await(ctx, chatID, s, call)
	}()
}

func (b *Bot) await(ctx context.Context, chatID int64, s *session.Session, call *session.Call) {
	ticker := time.NewTicker(b.typing)
	defer ticker.Stop()

	b.action(chatID, tgbotapi.ChatTyping)
	for {
		select {
		case <-call.Done():
			b.deliver(chatID, s.Snapshot(), call.Generation())
			return
		case <-ticker.C:
			b.action(chatID, tgbotapi.ChatTyping)
		case <-ctx.Done():
			call.Cancel()
			return
		}
	}
}

func (b *Bot) deliver(chatID int64, st session.State, generation uint64) {
	if st.Generation != generation {
		return
	}
	switch st.Status {
	case session.Succeeded:
		img, err := imagecodec.FromEncoded(st.Result.EncodedImage)
		if err != nil {
			b.reply(chatID, domain.DisplayMessage(err))
			return
		}
		photo := tgbotapi.NewPhotoUpload(chatID, tgbotapi.FileBytes{Name: storage.ResultFilename, Bytes: img.Data})
		narrative := strings.TrimSpace(st.Result.Narrative)
		if len(narrative) <= maxCaptionLen {
			photo.Caption = narrative
			narrative = ""
		}
		if _, err := b.api.Send(photo); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: send photo failed")
			b.reply(chatID, "The edit finished but the image could not be sent.")
			return
		}
		if narrative != "" {
			b.reply(chatID, narrative)
		}
	case session.Failed:
		b.reply(chatID, st.Error)
	}
}

func (b *Bot) action(chatID int64, action string) {
	if _, err := b.api.Send(tgbotapi.NewChatAction(chatID, action)); err != nil {
		b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("telegram: chat action failed")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: send message failed")
	}
}

const helpText = `Send a photo, then tell me how to change it.

A caption on the photo is used as the instruction right away.
/templates - list preset instructions
/template <id> - use a preset
/generate - apply the instruction to the photo
/cancel - stop the edit in progress
/help - show this help`
