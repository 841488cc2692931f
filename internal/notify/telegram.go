// Package notify delivers shop events to Telegram chats: new orders to the
// orders channel (or operators), status changes and bans to buyers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"clothshop/internal/models"
	"clothshop/internal/service"
)

const (
	AcceptOrderPrefix = "accept_order_"
	RejectOrderPrefix = "reject_order_"

	BannedText = "🚫 Ваш аккаунт заблокирован. Обратитесь к администратору."

	fallbackNote = "\n\n⚠️ Это сообщение отправлено вам, так как отправка в канал не удалась."
	timeLayout   = "02.01.2006 15:04"
)

// Sender is the part of *tgbotapi.BotAPI used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// DeliveryError is returned when a message could not reach its chat.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to chat %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

var ErrNoRecipients = errors.New("no recipients configured")

type Notifier struct {
	bot                    Sender
	ordersChannelID        int64
	notificationsChannelID int64
	operators              []int64
}

func New(bot Sender, ordersChannelID, notificationsChannelID int64, operators []int64) *Notifier {
	return &Notifier{
		bot:                    bot,
		ordersChannelID:        ordersChannelID,
		notificationsChannelID: notificationsChannelID,
		operators:              operators,
	}
}

var (
	_ service.OrderNotifier = (*Notifier)(nil)
	_ service.BanNotifier   = (*Notifier)(nil)
)

func (n *Notifier) send(chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := n.bot.Send(msg); err != nil {
		return &DeliveryError{ChatID: chatID, Err: err}
	}
	return nil
}

// OrderCreated posts the order to the orders channel. When the channel is
// unset or unreachable every operator gets it directly instead.
func (n *Notifier) OrderCreated(ctx context.Context, buyer models.Buyer, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := FormatOrderNotification(buyer, order)
	keyboard := OrderKeyboard(order.ID, buyer.ID)

	if n.ordersChannelID != 0 {
		err := n.send(n.ordersChannelID, text, keyboard)
		if err == nil {
			slog.Info("Order notification sent", "order_id", order.ID, "chat_id", n.ordersChannelID)
			return nil
		}
		slog.Error("Order notification to channel failed", "order_id", order.ID, "error", err)
	}

	if len(n.operators) == 0 {
		return &DeliveryError{ChatID: n.ordersChannelID, Err: ErrNoRecipients}
	}
	var errs []error
	delivered := false
	for _, id := range n.operators {
		if err := n.send(id, text+fallbackNote, keyboard); err != nil {
			slog.Error("Order notification to operator failed", "order_id", order.ID, "operator", id, "error", err)
			errs = append(errs, err)
			continue
		}
		delivered = true
		slog.Info("Order notification sent to operator", "order_id", order.ID, "operator", id)
	}
	if !delivered {
		return errors.Join(errs...)
	}
	return nil
}

// OrderStatusChanged tells the buyer about the moderator's decision.
func (n *Notifier) OrderStatusChanged(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var text string
	switch order.Status {
	case models.OrderAccepted:
		text = fmt.Sprintf("✅ Ваш заказ #%d принят! Наш менеджер скоро свяжется с вами для уточнения деталей.", order.ID)
	case models.OrderRejected:
		text = fmt.Sprintf("❌ К сожалению, ваш заказ #%d отклонен. Пожалуйста, свяжитесь с нами для уточнения деталей.", order.ID)
	default:
		return nil
	}
	return n.send(order.UserID, text, nil)
}

func (n *Notifier) UserBanned(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.send(userID, BannedText, nil)
}

func (n *Notifier) UserUnbanned(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.send(userID, "✅ Ваш аккаунт разблокирован. Вы снова можете пользоваться ботом.", nil)
}

// BotStarted is posted once on startup to the notifications channel.
func (n *Notifier) BotStarted(ctx context.Context) error {
	if n.notificationsChannelID == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.send(n.notificationsChannelID, "🟢 <b>Бот запущен</b>\n\nМагазин одежды готов к работе!", nil)
}

func OrderKeyboard(orderID, buyerID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Принять", fmt.Sprintf("%s%d", AcceptOrderPrefix, orderID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("%s%d", RejectOrderPrefix, orderID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📞 Связаться", fmt.Sprintf("tg://user?id=%d", buyerID)),
		),
	)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

// FormatOrderNotification renders the HTML text of a new order message.
func FormatOrderNotification(buyer models.Buyer, order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛍️ <b>НОВЫЙ ЗАКАЗ</b> #%d\n\n", order.ID)
	b.WriteString("👤 <b>Клиент:</b>\n")
	name := buyer.FullName
	if name == "" {
		name = "Неизвестно"
	}
	fmt.Fprintf(&b, "   • Имя: %s\n", escape(name))
	if buyer.Username != "" {
		fmt.Fprintf(&b, "   • Username: @%s\n", escape(buyer.Username))
	}
	fmt.Fprintf(&b, "   • ID: %d\n\n", buyer.ID)

	b.WriteString("📦 <b>Товары:</b>\n")
	for i, line := range order.Data.Items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "   %d. %s\n", i+1, escape(line.Name))
		if line.Size != "" {
			fmt.Fprintf(&b, "      • Размер: %s\n", escape(line.Size))
		}
		fmt.Fprintf(&b, "      • Цена: %s %s\n", line.Price.StringFixed(2), order.CurrencyCode)
	}

	fmt.Fprintf(&b, "\n💰 <b>Итого:</b> %s", service.FormatPrice(order.TotalPrice, order.CurrencyCode))
	fmt.Fprintf(&b, "\n🕐 <b>Время заказа:</b> %s\n\n", order.CreatedAt.Local().Format(timeLayout))
	b.WriteString("📞 Свяжитесь с клиентом для подтверждения заказа")
	return b.String()
}
