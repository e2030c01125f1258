package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slide-master/internal/domain"
	"slide-master/internal/integrations/telegram"
	"slide-master/internal/repository"
	"slide-master/internal/usecase"
)

type sentMessage struct {
	chat   string
	text   string
	markup *telegram.InlineKeyboardMarkup
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	deleted  []int64
	answered []string
	sendErr  error
	nextID   int64
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID, text string, markup *telegram.InlineKeyboardMarkup) (telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return telegram.Message{}, f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{chat: chatID, text: text, markup: markup})
	return telegram.Message{MessageID: f.nextID}, nil
}

func (f *fakeMessenger) AnswerCallbackQuery(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _ string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMessenger) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeGenerator struct {
	mu       sync.Mutex
	out      usecase.Outcome
	err      error
	lastReq  domain.GenerationRequest
	calls    int
	progress *Progress
}

func (f *fakeGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (usecase.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.progress != nil && f.err == nil {
		f.progress.Working(ctx, req)
	}
	return f.out, f.err
}

func (f *fakeGenerator) SlideCounts() []int { return []int{5, 7, 10} }

type harness struct {
	bot      *Bot
	msgr     *fakeMessenger
	gen      *fakeGenerator
	accounts *repository.MemoryAccounts
	topics   *repository.MemoryTopics
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		msgr:     &fakeMessenger{},
		accounts: repository.NewMemoryAccounts(),
		topics:   repository.NewMemoryTopics(time.Minute),
	}
	progress := NewProgress(h.msgr, nil)
	h.gen = &fakeGenerator{progress: progress}
	if cfg.StartingBalance == 0 {
		cfg.StartingBalance = DefaultStartingBalance
	}
	if cfg.ReferralBonus == 0 {
		cfg.ReferralBonus = DefaultReferralBonus
	}
	b, err := New(Dependencies{
		Messenger: h.msgr,
		Generator: h.gen,
		Accounts:  h.accounts,
		Topics:    h.topics,
		Progress:  progress,
	}, cfg)
	require.NoError(t, err)
	h.bot = b
	return h
}

func message(from int64, lang, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: from, LanguageCode: lang},
		Chat:      telegram.Chat{ID: from},
		Text:      text,
	}}
}

func callback(from int64, lang, data string) telegram.Update {
	return telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb-" + strconv.FormatInt(from, 10),
		From:    telegram.User{ID: from, LanguageCode: lang},
		Message: &telegram.Message{MessageID: 77, Chat: telegram.Chat{ID: from}},
		Data:    data,
	}}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Dependencies{}, Config{})
	require.Error(t, err)

	_, err = New(Dependencies{
		Messenger: &fakeMessenger{}, Generator: &fakeGenerator{},
		Accounts: repository.NewMemoryAccounts(), Topics: repository.NewMemoryTopics(time.Minute),
	}, Config{StartingBalance: -1})
	require.Error(t, err)
}

func TestStart_CreatesAccountAndCreditsReferrer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	_, _, err := h.accounts.Ensure(ctx, "100", 2)
	require.NoError(t, err)

	require.NoError(t, h.bot.HandleUpdate(ctx, message(200, "en", "/start 100")))

	acct, err := h.accounts.Get(ctx, "200")
	require.NoError(t, err)
	require.Equal(t, DefaultStartingBalance, acct.Balance)

	ref, err := h.accounts.Get(ctx, "100")
	require.NoError(t, err)
	require.Equal(t, 3, ref.Balance)
	require.Contains(t, h.msgr.last().text, "Slide Master AI")

	// A second /start must not pay the referrer again.
	require.NoError(t, h.bot.HandleUpdate(ctx, message(200, "en", "/start 100")))
	ref, _ = h.accounts.Get(ctx, "100")
	require.Equal(t, 3, ref.Balance)
}

func TestStart_IgnoresSelfAndNonNumericReferrer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	require.NoError(t, h.bot.HandleUpdate(ctx, message(300, "uz", "/start 300")))
	acct, _ := h.accounts.Get(ctx, "300")
	require.Equal(t, 2, acct.Balance)

	require.NoError(t, h.bot.HandleUpdate(ctx, message(301, "uz", "/start@SlideBot abc")))
	acct, _ = h.accounts.Get(ctx, "301")
	require.Equal(t, 2, acct.Balance)
}

func TestBalanceAndInvite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{Username: "@SlideMasterBot"})
	_, _, _ = h.accounts.Ensure(ctx, "5", 4)

	require.NoError(t, h.bot.HandleUpdate(ctx, message(5, "ru", "/balance")))
	require.Equal(t, "👤 ID: 5\n💰 Баланс: 4", h.msgr.last().text)

	require.NoError(t, h.accounts.SetUnlimited(ctx, "5", true))
	require.NoError(t, h.bot.HandleUpdate(ctx, message(5, "en", "/balance")))
	require.Contains(t, h.msgr.last().text, "unlimited")

	require.NoError(t, h.bot.HandleUpdate(ctx, message(5, "en", "/invite")))
	require.Contains(t, h.msgr.last().text, "https://t.me/SlideMasterBot?start=5")
}

func TestTopic_OffersCounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	_, _, _ = h.accounts.Ensure(ctx, "7", 1)

	require.NoError(t, h.bot.HandleUpdate(ctx, message(7, "en", "<b>Black holes</b>")))
	last := h.msgr.last()
	require.Contains(t, last.text, "<b>Black holes</b>")
	require.NotNil(t, last.markup)
	row := last.markup.InlineKeyboard[0]
	require.Len(t, row, 3)
	require.Equal(t, "gen:10", row[2].CallbackData)

	topic, ok, err := h.topics.Take(ctx, "7")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "<b>Black holes</b>", topic)
}

func TestTopic_NoBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	require.NoError(t, h.bot.HandleUpdate(ctx, message(8, "en", "Comets")))
	require.Equal(t, "⚠️ Insufficient balance!", h.msgr.last().text)
	_, ok, _ := h.topics.Take(ctx, "8")
	require.False(t, ok)
}

func TestGenerateCallback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	require.NoError(t, h.topics.Save(ctx, "9", "Volcanoes"))
	h.gen.out = usecase.Outcome{Stage: usecase.StageSettled, Slides: 7}

	require.NoError(t, h.bot.HandleUpdate(ctx, callback(9, "ru", "gen:7")))
	require.Equal(t, domain.GenerationRequest{
		RequesterID: "9", ChatID: "9", Topic: "Volcanoes", SlideCount: 7, Language: "ru",
	}, h.gen.lastReq)
	require.Equal(t, []string{"cb-9"}, h.msgr.answered)
	// Keyboard message, then the progress notice.
	require.Equal(t, []int64{77, 1}, h.msgr.deleted)
	require.Equal(t, "🧠 AI работает...", h.msgr.last().text)
}

func TestGenerateCallback_TopicExpired(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.bot.HandleUpdate(context.Background(), callback(9, "en", "gen:7")))
	require.Equal(t, 0, h.gen.calls)
	require.Contains(t, h.msgr.last().text, "Topic not found")
}

func TestGenerateCallback_IgnoresUnknownData(t *testing.T) {
	h := newHarness(t, Config{})
	for _, data := range []string{"", "gen:", "gen:x", "gen:-5", "setlang_ru"} {
		require.NoError(t, h.bot.HandleUpdate(context.Background(), callback(9, "en", data)))
	}
	require.Equal(t, 0, h.gen.calls)
}

func TestGenerateCallback_FailureNotices(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&usecase.Error{Code: usecase.ErrorInsufficientCredit, Reason: "no_balance"}, "⚠️ Insufficient balance!"},
		{&usecase.Error{Code: usecase.ErrorInProgress, Reason: "job_in_progress"}, "still being prepared"},
		{&usecase.Error{Code: usecase.ErrorMalformedResponse, Reason: "invalid_json"}, "Something went wrong"},
		{&usecase.Error{Code: usecase.ErrorUpstream, Reason: "model_timeout", Err: errors.New("secret detail")}, "Something went wrong"},
		{&usecase.Error{Code: usecase.ErrorDelivery, Reason: "send_error"}, "Something went wrong"},
	}
	for _, tc := range cases {
		t.Run(string(usecase.CodeOf(tc.err)), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, Config{})
			require.NoError(t, h.topics.Save(ctx, "1", "Topic"))
			h.gen.err = tc.err

			require.NoError(t, h.bot.HandleUpdate(ctx, callback(1, "en", "gen:5")))
			last := h.msgr.last().text
			require.Contains(t, last, tc.want)
			require.False(t, strings.Contains(last, "secret detail"))
		})
	}
}

func TestGenerateCallback_RefusedJobKeepsTopic(t *testing.T) {
	for _, code := range []usecase.ErrorCode{usecase.ErrorInProgress, usecase.ErrorInsufficientCredit} {
		t.Run(string(code), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, Config{})
			require.NoError(t, h.topics.Save(ctx, "1", "Glaciers"))
			h.gen.err = &usecase.Error{Code: code}

			require.NoError(t, h.bot.HandleUpdate(ctx, callback(1, "en", "gen:5")))
			require.NotNil(t, h.msgr.last().markup)

			topic, ok, err := h.topics.Take(ctx, "1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "Glaciers", topic)
		})
	}
}

func TestGenerateCallback_FailedJobDropsTopic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	require.NoError(t, h.topics.Save(ctx, "1", "Glaciers"))
	h.gen.err = &usecase.Error{Code: usecase.ErrorMalformedResponse, Reason: "invalid_json"}

	require.NoError(t, h.bot.HandleUpdate(ctx, callback(1, "en", "gen:5")))
	require.Nil(t, h.msgr.last().markup)

	_, ok, err := h.topics.Take(ctx, "1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGenerateCallback_CanceledIsSilent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	require.NoError(t, h.topics.Save(ctx, "1", "Topic"))
	h.gen.err = &usecase.Error{Code: usecase.ErrorInternal, Reason: "canceled"}

	require.NoError(t, h.bot.HandleUpdate(ctx, callback(1, "en", "gen:5")))
	require.Empty(t, h.msgr.sent)
}

func TestGenerateCallback_AnomalyNotice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	require.NoError(t, h.topics.Save(ctx, "1", "Topic"))
	h.gen.out = usecase.Outcome{
		Stage:   usecase.StageSettled,
		Anomaly: &domain.ReconciliationAnomaly{JobID: "j", RequesterID: "1", Balance: 0, Reason: "balance_exhausted"},
	}

	require.NoError(t, h.bot.HandleUpdate(ctx, callback(1, "en", "gen:5")))
	require.Contains(t, h.msgr.last().text, "charge could not be applied. Balance: 0.")
}

func TestGenerateCallback_Async(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, Config{Async: true})
	require.NoError(t, h.topics.Save(ctx, "1", "Topic"))

	require.NoError(t, h.bot.HandleUpdate(ctx, callback(1, "en", "gen:5")))
	cancel()
	h.bot.Wait()

	h.gen.mu.Lock()
	defer h.gen.mu.Unlock()
	require.Equal(t, 1, h.gen.calls)
}

func TestSendFailureIsReturned(t *testing.T) {
	h := newHarness(t, Config{})
	h.msgr.sendErr = errors.New("blocked by user")
	err := h.bot.HandleUpdate(context.Background(), message(1, "en", "/help"))
	require.ErrorContains(t, err, "bot: send message")
}

func TestIgnoresBotsAndEmptyUpdates(t *testing.T) {
	h := newHarness(t, Config{})
	u := message(1, "en", "/start")
	u.Message.From.IsBot = true
	require.NoError(t, h.bot.HandleUpdate(context.Background(), u))
	require.NoError(t, h.bot.HandleUpdate(context.Background(), telegram.Update{UpdateID: 1}))
	require.Empty(t, h.msgr.sent)
}

func TestCaption(t *testing.T) {
	d := domain.Deck{Topic: "Black holes", Slides: make([]domain.SlideSpec, 3)}
	require.Equal(t, "✅ Done!\n📝 Black holes\n🖼 3 slides", Caption("en", d))
	require.Equal(t, "✅ Tayyor!", Caption("xx", domain.Deck{}))
}

func TestParseCommand(t *testing.T) {
	cmd, arg, ok := parseCommand("/Start@SlideBot  42 ")
	require.True(t, ok)
	require.Equal(t, "start", cmd)
	require.Equal(t, "42", arg)

	_, _, ok = parseCommand("hello /start")
	require.False(t, ok)
	_, _, ok = parseCommand("/")
	require.False(t, ok)
}
