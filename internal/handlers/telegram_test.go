package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clothshop/internal/auth"
	"clothshop/internal/db"
	"clothshop/internal/media"
	"clothshop/internal/models"
	"clothshop/internal/notify"
	"clothshop/internal/repo"
	"clothshop/internal/service"
)

const (
	moderatorID = int64(100)
	buyerID     = int64(555)
	adminChatID = int64(-1001)
	ordersChat  = int64(-2002)
)

type fakeBot struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	albums   []tgbotapi.MediaGroupConfig
	editErr  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && b.editErr != nil {
		return tgbotapi.Message{}, b.editErr
	}
	b.nextID++
	b.sent = append(b.sent, c)
	return tgbotapi.Message{MessageID: b.nextID}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) SendMediaGroup(c tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.albums = append(b.albums, c)
	msgs := make([]tgbotapi.Message, len(c.Media))
	for i := range msgs {
		b.nextID++
		msgs[i].MessageID = b.nextID
	}
	return msgs, nil
}

// texts returns the text of every message and edit sent to chatID.
func (b *fakeBot) texts(chatID int64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		case tgbotapi.EditMessageTextConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		case tgbotapi.PhotoConfig:
			if m.ChatID == chatID {
				out = append(out, m.Caption)
			}
		}
	}
	return out
}

func (b *fakeBot) last(chatID int64) string {
	texts := b.texts(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// alerts returns the callback answers.
func (b *fakeBot) alerts() []tgbotapi.CallbackConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range b.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok && cb.Text != "" {
			out = append(out, cb)
		}
	}
	return out
}

type fixture struct {
	ctx     context.Context
	db      *db.DB
	bot     *fakeBot
	files   *media.Store
	admin   *service.AdminService
	svc     Services
	handler *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	_, err = d.Migrate(ctx)
	require.NoError(t, err)

	bot := &fakeBot{}
	files := media.NewStore(t.TempDir())
	policy := auth.NewPolicy([]int64{moderatorID}, adminChatID)
	notifier := notify.New(bot, ordersChat, adminChatID, policy.Moderators())
	svc := Services{
		Catalog:    service.NewCatalogService(d, files),
		Carts:      service.NewCartService(d),
		Orders:     service.NewOrderService(d, policy, notifier),
		Currency:   service.NewCurrencyService(d, "RUB", 1),
		Moderation: service.NewModerationService(d, policy, notifier),
	}
	h, err := NewHandler(bot, svc, policy, auth.NewTokens([]byte("test-secret")), files, "http://shop.test/")
	require.NoError(t, err)

	return &fixture{
		ctx:     ctx,
		db:      d,
		bot:     bot,
		files:   files,
		admin:   service.NewAdminService(d, files),
		svc:     svc,
		handler: h,
	}
}

func (f *fixture) seedItem(t *testing.T, name, price string) *models.Item {
	t.Helper()
	category, err := f.admin.CreateCategory(f.ctx, "Shoes", nil)
	if errors.Is(err, service.ErrConflict) {
		category, err = repo.NewCategoryRepo(f.db).CategoryByName(f.ctx, "Shoes")
	}
	require.NoError(t, err)

	rub, err := repo.NewCurrencyRepo(f.db).CurrencyByName(f.ctx, "RUB")
	require.NoError(t, err)
	item, err := f.admin.CreateItem(f.ctx, service.ItemInput{
		CategoryID:    category.ID,
		Name:          name,
		Sizes:         "40,42",
		StockQuantity: 3,
		Prices:        map[int64]string{rub.ID: price},
	})
	require.NoError(t, err)
	return item
}

func user(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, FirstName: "Ann", UserName: "ann"}
}

func (f *fixture) click(from int64, data string) {
	f.handler.HandleUpdate(f.ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: user(from),
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 1,
			Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
			Text:      "previous view",
		},
	}})
}

func (f *fixture) command(from *tgbotapi.User, chat *tgbotapi.Chat, text string, channel bool) {
	cmd := strings.SplitN(text, " ", 2)[0]
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      from,
		Chat:      chat,
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
	if channel {
		f.handler.HandleUpdate(f.ctx, tgbotapi.Update{ChannelPost: msg})
		return
	}
	f.handler.HandleUpdate(f.ctx, tgbotapi.Update{Message: msg})
}

func private(id int64) *tgbotapi.Chat { return &tgbotapi.Chat{ID: id, Type: "private"} }

func TestStartShowsMainMenu(t *testing.T) {
	f := newFixture(t)
	f.command(user(buyerID), private(buyerID), "/start", false)

	assert.Contains(t, f.bot.last(buyerID), "Добро пожаловать")
	msg, ok := f.bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	keyboard := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "catalog", *keyboard.InlineKeyboard[0][0].CallbackData)
}

func TestPlainTextGetsHint(t *testing.T) {
	f := newFixture(t)
	f.handler.HandleUpdate(f.ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		From: user(buyerID), Chat: private(buyerID), Text: "hello",
	}})
	assert.Equal(t, "🤖 Используйте кнопки меню для навигации", f.bot.last(buyerID))
}

func TestCatalogBrowsing(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem(t, "Sneaker", "100")

	f.click(buyerID, "catalog")
	assert.Contains(t, f.bot.last(buyerID), "Выберите категорию")

	f.click(buyerID, "category_"+itoa(item.CategoryID))
	assert.Contains(t, f.bot.last(buyerID), "• Sneaker - 100.00 RUB")

	f.click(buyerID, "item_"+itoa(item.ID))
	assert.Contains(t, f.bot.last(buyerID), "🏷️ Sneaker")
	assert.Contains(t, f.bot.last(buyerID), "В наличии: 3")

	f.click(buyerID, "category_999")
	assert.Contains(t, f.bot.last(buyerID), "Категория не найдена")
}

func TestCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem(t, "Sneaker", "100")

	f.click(buyerID, "size_"+itoa(item.ID)+"_42")
	f.click(buyerID, "size_"+itoa(item.ID)+"_40")
	lines, err := f.svc.Carts.ListCart(f.ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	f.click(buyerID, "cart")
	assert.Contains(t, f.bot.last(buyerID), "Итого: 200.00 RUB")

	f.click(buyerID, "checkout")
	assert.Contains(t, f.bot.last(buyerID), "Подтверждение заказа")

	f.click(buyerID, "confirm_order")
	assert.Contains(t, f.bot.last(buyerID), "оформлен")
	assert.Contains(t, f.bot.last(ordersChat), "НОВЫЙ ЗАКАЗ")

	orders, err := f.svc.Orders.UserOrders(f.ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 200.0, orders[0].TotalPrice)

	lines, err = f.svc.Carts.ListCart(f.ctx, buyerID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestConfirmWithoutCheckoutExpires(t *testing.T) {
	f := newFixture(t)
	f.click(buyerID, "confirm_order")
	assert.Equal(t, sessionExpired, f.bot.last(buyerID))
}

func TestCartChangeDropsPendingCheckout(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem(t, "Sneaker", "100")

	f.click(buyerID, "size_"+itoa(item.ID)+"_42")
	f.click(buyerID, "checkout")
	f.click(buyerID, "size_"+itoa(item.ID)+"_40")
	f.click(buyerID, "confirm_order")

	assert.Equal(t, sessionExpired, f.bot.last(buyerID))
}

func TestRemoveAndClearCart(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem(t, "Sneaker", "100")

	f.click(buyerID, "size_"+itoa(item.ID)+"_42")
	f.click(buyerID, "size_"+itoa(item.ID)+"_42")
	f.click(buyerID, "remove_"+itoa(item.ID)+"_42")
	lines, err := f.svc.Carts.ListCart(f.ctx, buyerID)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	f.click(buyerID, "clear_cart")
	lines, err = f.svc.Carts.ListCart(f.ctx, buyerID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	f.click(buyerID, "cart")
	assert.Equal(t, emptyCartText, f.bot.last(buyerID))
}

func TestSelectCurrency(t *testing.T) {
	f := newFixture(t)
	byn, err := repo.NewCurrencyRepo(f.db).CurrencyByName(f.ctx, "BYN")
	require.NoError(t, err)

	f.click(buyerID, "select_currency")
	assert.Contains(t, f.bot.last(buyerID), "Выберите валюту")

	f.click(buyerID, "currency_"+itoa(byn.ID))
	assert.Contains(t, f.bot.last(buyerID), "Валюта изменена на BYN")

	current, err := f.svc.Currency.GetUserCurrency(f.ctx, buyerID)
	require.NoError(t, err)
	assert.Equal(t, "BYN", current.Code)

	f.click(buyerID, "profile")
	assert.Contains(t, f.bot.last(buyerID), "100 RUB = 3.70 BYN")
}

func TestUnknownCallback(t *testing.T) {
	f := newFixture(t)
	f.click(buyerID, "nonsense")
	assert.Equal(t, unknownCommand, f.bot.last(buyerID))
}

func TestBannedUserIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Moderation.Ban(f.ctx, auth.Actor{Web: true}, buyerID)
	require.NoError(t, err)

	f.click(buyerID, "catalog")
	assert.Equal(t, notify.BannedText, f.bot.last(buyerID))

	f.command(user(buyerID), private(buyerID), "/start", false)
	assert.Equal(t, notify.BannedText, f.bot.last(buyerID))
}

func TestBanLookupFailureStopsFlow(t *testing.T) {
	f := newFixture(t)
	f.seedItem(t, "Sneaker", "100")
	_, err := f.svc.Moderation.Ban(f.ctx, auth.Actor{Web: true}, buyerID)
	require.NoError(t, err)
	_, err = f.db.ExecContext(f.ctx, "ALTER TABLE banned_users RENAME TO banned_users_old")
	require.NoError(t, err)

	before := len(f.bot.texts(buyerID))
	f.click(buyerID, "catalog")
	assert.Equal(t, []string{genericFailure}, f.bot.texts(buyerID)[before:])

	f.command(user(buyerID), private(buyerID), "/start", false)
	assert.Equal(t, genericFailure, f.bot.last(buyerID))
}

func TestBanCommand(t *testing.T) {
	f := newFixture(t)
	adminChat := &tgbotapi.Chat{ID: adminChatID, Type: "supergroup"}

	f.command(user(moderatorID), adminChat, "/ban 555", false)
	assert.Equal(t, "✅ Пользователь 555 заблокирован.", f.bot.last(adminChatID))

	f.command(user(moderatorID), adminChat, "/ban 555", false)
	assert.Equal(t, "⚠️ Пользователь 555 уже заблокирован.", f.bot.last(adminChatID))

	f.command(user(moderatorID), adminChat, "/ban abc", false)
	assert.Equal(t, "❌ Использование: /ban <user_id>", f.bot.last(adminChatID))

	f.command(user(buyerID), adminChat, "/unban 555", false)
	assert.Equal(t, "🚫 У вас нет прав для выполнения этой команды.", f.bot.last(adminChatID))

	f.command(nil, adminChat, "/unban 555", true)
	assert.Equal(t, "✅ Пользователь 555 разблокирован.", f.bot.last(adminChatID))

	f.command(user(moderatorID), adminChat, "/unban 555", false)
	assert.Equal(t, "⚠️ Пользователь 555 не был заблокирован.", f.bot.last(adminChatID))
}

func TestBanCommandOutsideAdminChatIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.command(user(moderatorID), private(moderatorID), "/ban 555", false)

	assert.Empty(t, f.bot.texts(moderatorID))
	banned, err := f.svc.Moderation.IsBanned(f.ctx, buyerID)
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestOrderDecision(t *testing.T) {
	f := newFixture(t)
	item := f.seedItem(t, "Sneaker", "100")
	f.click(buyerID, "size_"+itoa(item.ID)+"_42")
	f.click(buyerID, "checkout")
	f.click(buyerID, "confirm_order")
	orders, err := f.svc.Orders.UserOrders(f.ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	data := notify.AcceptOrderPrefix + itoa(orders[0].ID)

	decide := func(from int64, data string) {
		f.handler.HandleUpdate(f.ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb",
			From: user(from),
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: 9,
				Chat:      &tgbotapi.Chat{ID: ordersChat, Type: "channel"},
				Text:      "НОВЫЙ ЗАКАЗ #1",
			},
		}})
	}

	decide(buyerID, data)
	alerts := f.bot.alerts()
	require.NotEmpty(t, alerts)
	assert.Equal(t, noRightsAlert, alerts[len(alerts)-1].Text)
	assert.True(t, alerts[len(alerts)-1].ShowAlert)

	decide(moderatorID, data)
	assert.Contains(t, f.bot.last(ordersChat), "Статус:</b> ✅ принят (@ann)")
	assert.Contains(t, f.bot.last(buyerID), "принят")

	decide(moderatorID, notify.RejectOrderPrefix+itoa(orders[0].ID))
	alerts = f.bot.alerts()
	assert.Equal(t, orderClosedAlert, alerts[len(alerts)-1].Text)

	decide(moderatorID, notify.AcceptOrderPrefix+"9999")
	alerts = f.bot.alerts()
	assert.Equal(t, orderGoneAlert, alerts[len(alerts)-1].Text)
}

func TestOrdersCommand(t *testing.T) {
	f := newFixture(t)
	f.command(user(buyerID), private(buyerID), "/orders", false)
	assert.Equal(t, "📦 У вас пока нет заказов.", f.bot.last(buyerID))
}

func TestWebLogin(t *testing.T) {
	f := newFixture(t)

	f.command(user(buyerID), private(buyerID), "/weblogin", false)
	assert.Contains(t, f.bot.last(buyerID), "нет прав")

	f.command(user(moderatorID), private(moderatorID), "/weblogin", false)
	text := f.bot.last(moderatorID)
	require.Contains(t, text, "http://shop.test/admin/magic?token=")

	token := text[strings.Index(text, "token=")+len("token="):]
	claims, err := auth.NewTokens([]byte("test-secret")).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, moderatorID, claims.UserID)
}

func TestEditFallsBackToNewMessage(t *testing.T) {
	f := newFixture(t)
	f.bot.editErr = errors.New("Bad Request: message can't be edited")

	f.click(buyerID, "main")
	assert.Contains(t, f.bot.last(buyerID), "Главное меню")

	var deleted bool
	for _, r := range f.bot.requests {
		if d, ok := r.(tgbotapi.DeleteMessageConfig); ok && d.MessageID == 1 {
			deleted = true
		}
	}
	assert.True(t, deleted)
}

func TestHandleUpdatesStopsOnClose(t *testing.T) {
	f := newFixture(t)
	updates := make(chan tgbotapi.Update, 1)
	updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: user(buyerID), Chat: private(buyerID), Text: "hi"}}
	close(updates)

	f.handler.HandleUpdates(f.ctx, updates)
	assert.Len(t, f.bot.texts(buyerID), 1)
}

func TestParseItemSize(t *testing.T) {
	id, size, ok := parseItemSize("size_12_XL_tall", "size_")
	require.True(t, ok)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, "XL_tall", size)

	_, _, ok = parseItemSize("size_12", "size_")
	assert.False(t, ok)
	_, _, ok = parseItemSize("size_x_42", "size_")
	assert.False(t, ok)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
