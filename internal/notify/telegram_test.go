package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clothshop/internal/models"
)

type fakeSender struct {
	failFor map[int64]bool
	sent    []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, nil
	}
	if f.failFor[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("Bad Request: chat not found")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func testOrder() *models.Order {
	return &models.Order{
		ID:     7,
		UserID: 555,
		Data: models.OrderData{
			Items: []models.OrderLine{
				{ItemID: 1, Name: "Sneaker <limited>", Size: "42", Quantity: 1, Price: decimal.NewFromInt(100)},
				{ItemID: 2, Name: "Cap", Quantity: 1, Price: decimal.RequireFromString("9.5")},
			},
			UserID: 555,
		},
		TotalPrice:   109.5,
		CurrencyCode: "RUB",
		Status:       models.OrderPending,
		CreatedAt:    time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}
}

var testBuyer = models.Buyer{ID: 555, Username: "buyer", FullName: "Test & Co"}

func TestFormatOrderNotification(t *testing.T) {
	text := FormatOrderNotification(testBuyer, testOrder())

	assert.Contains(t, text, "НОВЫЙ ЗАКАЗ</b> #7")
	assert.Contains(t, text, "Имя: Test &amp; Co")
	assert.Contains(t, text, "Username: @buyer")
	assert.Contains(t, text, "1. Sneaker &lt;limited&gt;")
	assert.Contains(t, text, "Размер: 42")
	assert.Contains(t, text, "Цена: 9.50 RUB")
	assert.Contains(t, text, "Итого:</b> 109.50 RUB")
	assert.Equal(t, 1, strings.Count(text, "Размер:"))
}

func TestOrderCreatedGoesToChannel(t *testing.T) {
	bot := &fakeSender{}
	n := New(bot, -100, -200, []int64{1, 2})

	require.NoError(t, n.OrderCreated(context.Background(), testBuyer, testOrder()))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(-100), bot.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, bot.sent[0].ParseMode)

	keyboard, ok := bot.sent[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "accept_order_7", *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "reject_order_7", *keyboard.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "tg://user?id=555", *keyboard.InlineKeyboard[1][0].URL)
}

func TestOrderCreatedFallsBackToOperators(t *testing.T) {
	bot := &fakeSender{failFor: map[int64]bool{-100: true, 2: true}}
	n := New(bot, -100, -200, []int64{1, 2})

	require.NoError(t, n.OrderCreated(context.Background(), testBuyer, testOrder()))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(1), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "отправка в канал не удалась")
}

func TestOrderCreatedWithoutRecipients(t *testing.T) {
	bot := &fakeSender{failFor: map[int64]bool{1: true}}

	err := New(bot, 0, 0, nil).OrderCreated(context.Background(), testBuyer, testOrder())
	assert.ErrorIs(t, err, ErrNoRecipients)

	err = New(bot, 0, 0, []int64{1}).OrderCreated(context.Background(), testBuyer, testOrder())
	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	assert.Equal(t, int64(1), delivery.ChatID)
}

func TestOrderStatusChanged(t *testing.T) {
	bot := &fakeSender{}
	n := New(bot, -100, -200, nil)

	order := testOrder()
	order.Status = models.OrderAccepted
	require.NoError(t, n.OrderStatusChanged(context.Background(), order))
	order.Status = models.OrderRejected
	require.NoError(t, n.OrderStatusChanged(context.Background(), order))
	order.Status = models.OrderPending
	require.NoError(t, n.OrderStatusChanged(context.Background(), order))

	require.Len(t, bot.sent, 2)
	assert.Equal(t, int64(555), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "принят")
	assert.Contains(t, bot.sent[1].Text, "отклонен")
}

func TestBanMessagesAndStartup(t *testing.T) {
	bot := &fakeSender{}
	n := New(bot, -100, -200, nil)
	ctx := context.Background()

	require.NoError(t, n.UserBanned(ctx, 555))
	require.NoError(t, n.UserUnbanned(ctx, 555))
	require.NoError(t, n.BotStarted(ctx))

	require.Len(t, bot.sent, 3)
	assert.Equal(t, BannedText, bot.sent[0].Text)
	assert.Contains(t, bot.sent[1].Text, "разблокирован")
	assert.Equal(t, int64(-200), bot.sent[2].ChatID)

	require.NoError(t, New(bot, 0, 0, nil).BotStarted(ctx))
	assert.Len(t, bot.sent, 3)
}

func TestDeliveryErrorUnwraps(t *testing.T) {
	bot := &fakeSender{failFor: map[int64]bool{555: true}}

	err := New(bot, 0, 0, nil).UserBanned(context.Background(), 555)
	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	assert.Equal(t, int64(555), delivery.ChatID)
	assert.Contains(t, err.Error(), "chat not found")
}
