// Package bot turns chat updates into deck generation requests.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"slide-master/internal/domain"
	"slide-master/internal/integrations/telegram"
	"slide-master/internal/usecase"
)

const (
	// DefaultStartingBalance is granted to every new account.
	DefaultStartingBalance = 2
	// DefaultReferralBonus is credited to the inviter of a new account.
	DefaultReferralBonus = 1

	callbackGenerate = "gen:"
)

type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string, markup *telegram.InlineKeyboardMarkup) (telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	DeleteMessage(ctx context.Context, chatID string, messageID int64) error
}

type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (usecase.Outcome, error)
	SlideCounts() []int
}

type Accounts interface {
	Get(ctx context.Context, requesterID string) (domain.Account, error)
	Credit(ctx context.Context, requesterID string, amount int) (int, error)
	Ensure(ctx context.Context, requesterID string, initial int) (domain.Account, bool, error)
}

// TopicStore holds the topic between the topic message and the count button.
type TopicStore interface {
	Save(ctx context.Context, requesterID, topic string) error
	Take(ctx context.Context, requesterID string) (string, bool, error)
}

type Config struct {
	StartingBalance int
	ReferralBonus   int
	// Username is the bot's @name, used for invite links.
	Username string
	// Async runs generation in the background so the webhook can return at
	// once. Wait blocks until background jobs finish.
	Async bool
}

type Dependencies struct {
	Messenger Messenger
	Generator Generator
	Accounts  Accounts
	Topics    TopicStore
	Progress  *Progress
	Logger    *slog.Logger
}

// Bot dispatches Telegram updates.
type Bot struct {
	msgr     Messenger
	gen      Generator
	accounts Accounts
	topics   TopicStore
	progress *Progress
	log      *slog.Logger
	cfg      Config

	wg sync.WaitGroup
}

func New(deps Dependencies, cfg Config) (*Bot, error) {
	if deps.Messenger == nil {
		return nil, errors.New("bot: messenger must not be nil")
	}
	if deps.Generator == nil {
		return nil, errors.New("bot: generator must not be nil")
	}
	if deps.Accounts == nil {
		return nil, errors.New("bot: account store must not be nil")
	}
	if deps.Topics == nil {
		return nil, errors.New("bot: topic store must not be nil")
	}
	if cfg.StartingBalance < 0 || cfg.ReferralBonus < 0 {
		return nil, errors.New("bot: balances must not be negative")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		msgr:     deps.Messenger,
		gen:      deps.Generator,
		accounts: deps.Accounts,
		topics:   deps.Topics,
		progress: deps.Progress,
		log:      log,
		cfg:      cfg,
	}, nil
}

// Wait blocks until every background generation has returned.
func (b *Bot) Wait() { b.wg.Wait() }

// HandleUpdate routes one update. Errors are returned only for failures
// worth a webhook retry; user-facing problems are answered in chat.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) error {
	switch {
	case u.CallbackQuery != nil:
		return b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil && !u.Message.From.IsBot:
		return b.handleMessage(ctx, u.Message)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, m *telegram.Message) error {
	body := strings.TrimSpace(m.Text)
	if body == "" {
		return nil
	}
	requester := strconv.FormatInt(m.From.ID, 10)
	chat := strconv.FormatInt(m.Chat.ID, 10)
	lang := usecase.NormalizeLanguage(m.From.LanguageCode)

	if cmd, arg, ok := parseCommand(body); ok {
		switch cmd {
		case "start":
			return b.start(ctx, requester, chat, lang, arg)
		case "balance", "profile":
			return b.balance(ctx, requester, chat, lang)
		case "invite", "ref":
			return b.invite(ctx, requester, chat, lang)
		default:
			return b.send(ctx, chat, text(lang, textWelcome), nil)
		}
	}
	return b.topic(ctx, requester, chat, lang, body)
}

func (b *Bot) start(ctx context.Context, requester, chat, lang, arg string) error {
	_, created, err := b.accounts.Ensure(ctx, requester, b.cfg.StartingBalance)
	if err != nil {
		return fmt.Errorf("bot: ensure account: %w", err)
	}
	if created {
		b.log.Info("account created", "requester_id", requester)
		if ref := referrer(arg, requester); ref != "" && b.cfg.ReferralBonus > 0 {
			if _, err := b.accounts.Credit(ctx, ref, b.cfg.ReferralBonus); err != nil {
				b.log.Warn("referral credit failed", "requester_id", requester, "referrer_id", ref, "err", err)
			} else {
				b.log.Info("referral credited", "requester_id", requester, "referrer_id", ref)
				_ = b.send(ctx, ref, textf(lang, textReferralBonus, b.cfg.ReferralBonus), nil)
			}
		}
	}
	return b.send(ctx, chat, text(lang, textWelcome), nil)
}

func (b *Bot) balance(ctx context.Context, requester, chat, lang string) error {
	acct, err := b.accounts.Get(ctx, requester)
	if err != nil {
		return fmt.Errorf("bot: get account: %w", err)
	}
	if acct.Unlimited {
		return b.send(ctx, chat, textf(lang, textUnlimited, requester), nil)
	}
	return b.send(ctx, chat, textf(lang, textBalance, requester, acct.Balance), nil)
}

func (b *Bot) invite(ctx context.Context, requester, chat, lang string) error {
	if b.cfg.Username == "" {
		return b.send(ctx, chat, text(lang, textWelcome), nil)
	}
	link := "https://t.me/" + strings.TrimPrefix(b.cfg.Username, "@") + "?start=" + requester
	return b.send(ctx, chat, textf(lang, textReferral, link), nil)
}

func (b *Bot) topic(ctx context.Context, requester, chat, lang, topic string) error {
	acct, err := b.accounts.Get(ctx, requester)
	if err != nil {
		return fmt.Errorf("bot: get account: %w", err)
	}
	if !acct.CanGenerate() {
		return b.send(ctx, chat, text(lang, textNoBalance), nil)
	}
	if err := b.topics.Save(ctx, requester, topic); err != nil {
		return fmt.Errorf("bot: save topic: %w", err)
	}
	return b.send(ctx, chat, textf(lang, textAskCount, topic), countKeyboard(b.gen.SlideCounts()))
}

func (b *Bot) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) error {
	if err := b.msgr.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
		b.log.Debug("failed to answer callback", "err", err)
	}
	count, ok := parseGenerate(cq.Data)
	if !ok || cq.Message == nil {
		return nil
	}
	requester := strconv.FormatInt(cq.From.ID, 10)
	chat := strconv.FormatInt(cq.Message.Chat.ID, 10)
	lang := usecase.NormalizeLanguage(cq.From.LanguageCode)

	if err := b.msgr.DeleteMessage(ctx, chat, cq.Message.MessageID); err != nil {
		b.log.Debug("failed to delete count keyboard", "err", err)
	}

	topic, ok, err := b.topics.Take(ctx, requester)
	if err != nil {
		return fmt.Errorf("bot: take topic: %w", err)
	}
	if !ok {
		return b.send(ctx, chat, text(lang, textTopicExpired), nil)
	}

	req := domain.GenerationRequest{
		RequesterID: requester,
		ChatID:      chat,
		Topic:       topic,
		SlideCount:  count,
		Language:    lang,
	}
	if !b.cfg.Async {
		b.generate(ctx, req)
		return nil
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.generate(context.WithoutCancel(ctx), req)
	}()
	return nil
}

func (b *Bot) generate(ctx context.Context, req domain.GenerationRequest) {
	out, err := b.gen.Generate(ctx, req)
	if b.progress != nil {
		b.progress.Done(ctx, req)
	}
	if err != nil {
		notice, ok := failureNotice(req.Language, err)
		if !ok {
			return
		}
		_ = b.send(ctx, req.ChatID, notice, b.restoreTopic(ctx, req, err))
		return
	}
	if out.Anomaly != nil {
		_ = b.send(ctx, req.ChatID, textf(req.Language, textAnomaly, out.Anomaly.Balance), nil)
	}
}

// restoreTopic puts the topic back when the job was refused before any work
// started, so the requester can retry from the returned keyboard.
func (b *Bot) restoreTopic(ctx context.Context, req domain.GenerationRequest, err error) *telegram.InlineKeyboardMarkup {
	switch usecase.CodeOf(err) {
	case usecase.ErrorInProgress, usecase.ErrorInsufficientCredit:
	default:
		return nil
	}
	if err := b.topics.Save(ctx, req.RequesterID, req.Topic); err != nil {
		b.log.Warn("failed to restore topic", "requester_id", req.RequesterID, "err", err)
		return nil
	}
	return countKeyboard(b.gen.SlideCounts())
}

func (b *Bot) send(ctx context.Context, chat, msg string, markup *telegram.InlineKeyboardMarkup) error {
	if _, err := b.msgr.SendMessage(ctx, chat, msg, markup); err != nil {
		b.log.Warn("failed to send message", "chat_id", chat, "err", err)
		return fmt.Errorf("bot: send message: %w", err)
	}
	return nil
}

// parseCommand splits "/cmd@bot arg" into its lower-cased name and argument.
func parseCommand(text string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest), head != ""
}

// referrer returns arg when it names another numeric account.
func referrer(arg, requester string) string {
	if arg == "" || arg == requester {
		return ""
	}
	if _, err := strconv.ParseInt(arg, 10, 64); err != nil {
		return ""
	}
	return arg
}

func parseGenerate(data string) (int, bool) {
	raw, ok := strings.CutPrefix(data, callbackGenerate)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func countKeyboard(counts []int) *telegram.InlineKeyboardMarkup {
	row := make([]telegram.InlineKeyboardButton, 0, len(counts))
	for _, n := range counts {
		s := strconv.Itoa(n)
		row = append(row, telegram.InlineKeyboardButton{Text: s, CallbackData: callbackGenerate + s})
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{row}}
}
