package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"clothshop/internal/auth"
	"clothshop/internal/media"
	"clothshop/internal/models"
	"clothshop/internal/notify"
	"clothshop/internal/service"
)

const (
	trackedChats   = 4096
	pendingOrders  = 1024
	captionLimit   = 1024
	extraPhotos    = 3
	magicLinkTTL   = 5 * time.Minute
	genericFailure = "❌ Произошла ошибка. Попробуйте позже."
)

// BotAPI is the subset of *tgbotapi.BotAPI the handlers need.
type BotAPI interface {
	notify.Sender
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

type Services struct {
	Catalog    *service.CatalogService
	Carts      *service.CartService
	Orders     *service.OrderService
	Currency   *service.CurrencyService
	Moderation *service.ModerationService
}

// Handler serves one Telegram update at a time.
type Handler struct {
	bot        BotAPI
	svc        Services
	policy     *auth.Policy
	tokens     *auth.Tokens
	files      *media.Store
	webBaseURL string

	messages  *MessageTracker
	checkouts *lru.Cache[int64, *service.Preview]
}

func NewHandler(bot BotAPI, svc Services, policy *auth.Policy, tokens *auth.Tokens, files *media.Store, webBaseURL string) (*Handler, error) {
	messages, err := NewMessageTracker(trackedChats)
	if err != nil {
		return nil, err
	}
	checkouts, err := lru.New[int64, *service.Preview](pendingOrders)
	if err != nil {
		return nil, err
	}
	return &Handler{
		bot:        bot,
		svc:        svc,
		policy:     policy,
		tokens:     tokens,
		files:      files,
		webBaseURL: strings.TrimRight(webBaseURL, "/"),
		messages:   messages,
		checkouts:  checkouts,
	}, nil
}

// HandleUpdates consumes updates until the channel closes or ctx is done.
func (h *Handler) HandleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, update)
		}
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message, false)
	case update.ChannelPost != nil:
		h.handleMessage(ctx, update.ChannelPost, true)
	}
}

func logAction(user *tgbotapi.User, action string) {
	if user == nil {
		slog.Info("Bot action", "action", action)
		return
	}
	username := user.FirstName
	if user.UserName != "" {
		username = user.UserName
	}
	slog.Info("Bot action", "user_id", user.ID, "username", username, "action", action)
}

// banned checks the user and answers with the fixed rejection text. A failed
// lookup also stops the flow.
func (h *Handler) banned(ctx context.Context, chatID, userID int64) bool {
	isBanned, err := h.svc.Moderation.IsBanned(ctx, userID)
	if err != nil {
		slog.Error("Ban check failed", "user_id", userID, "error", err)
		h.send(chatID, genericFailure, nil)
		return true
	}
	if isBanned {
		h.send(chatID, notify.BannedText, nil)
	}
	return isBanned
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message, channel bool) {
	chatID := msg.Chat.ID
	if !msg.IsCommand() {
		if msg.Chat.IsPrivate() && msg.From != nil && !h.banned(ctx, chatID, msg.From.ID) {
			keyboard := MainMenuKeyboard()
			h.send(chatID, "🤖 Используйте кнопки меню для навигации", &keyboard)
		}
		return
	}

	command := msg.Command()
	logAction(msg.From, "command "+command)

	switch command {
	case "start":
		h.handleStart(ctx, msg)
	case "ban", "unban":
		h.handleBanCommand(ctx, msg, channel)
	case "orders":
		h.handleOrdersCommand(ctx, msg)
	case "weblogin":
		h.handleWebLogin(msg)
	default:
		if msg.Chat.IsPrivate() {
			keyboard := MainMenuKeyboard()
			h.send(chatID, "🤖 Используйте кнопки меню для навигации", &keyboard)
		}
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || h.banned(ctx, msg.Chat.ID, msg.From.ID) {
		return
	}
	h.checkouts.Remove(msg.From.ID)

	keyboard := MainMenuKeyboard()
	sent, err := h.send(msg.Chat.ID, "🎉 Добро пожаловать в магазин одежды!\n\nВыберите действие из меню ниже:", &keyboard)
	if err == nil {
		h.cleanup(msg.Chat.ID, sent.MessageID)
	}
}

// handleBanCommand serves /ban and /unban. Both only work in the admin chat
// and are ignored elsewhere.
func (h *Handler) handleBanCommand(ctx context.Context, msg *tgbotapi.Message, channel bool) {
	chatID := msg.Chat.ID
	if !h.policy.IsAdminChat(chatID) {
		return
	}
	actor := auth.Actor{ChatID: chatID, Channel: channel && msg.From == nil}
	if msg.From != nil {
		actor.UserID = msg.From.ID
	}
	command := msg.Command()

	userID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		if h.policy.CanManageBans(actor) != nil {
			h.send(chatID, "🚫 У вас нет прав для выполнения этой команды.", nil)
			return
		}
		h.send(chatID, fmt.Sprintf("❌ Использование: /%s <user_id>", command), nil)
		return
	}

	var changed bool
	if command == "ban" {
		changed, err = h.svc.Moderation.Ban(ctx, actor, userID)
	} else {
		changed, err = h.svc.Moderation.Unban(ctx, actor, userID)
	}
	switch {
	case errors.Is(err, service.ErrForbidden):
		h.send(chatID, "🚫 У вас нет прав для выполнения этой команды.", nil)
	case errors.Is(err, service.ErrValidation):
		h.send(chatID, fmt.Sprintf("❌ Использование: /%s <user_id>", command), nil)
	case err != nil:
		slog.Error("Ban command failed", "command", command, "user_id", userID, "error", err)
		h.send(chatID, genericFailure, nil)
	case command == "ban" && changed:
		h.send(chatID, fmt.Sprintf("✅ Пользователь %d заблокирован.", userID), nil)
	case command == "ban":
		h.send(chatID, fmt.Sprintf("⚠️ Пользователь %d уже заблокирован.", userID), nil)
	case changed:
		h.send(chatID, fmt.Sprintf("✅ Пользователь %d разблокирован.", userID), nil)
	default:
		h.send(chatID, fmt.Sprintf("⚠️ Пользователь %d не был заблокирован.", userID), nil)
	}
}

func (h *Handler) handleOrdersCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || h.banned(ctx, msg.Chat.ID, msg.From.ID) {
		return
	}
	orders, err := h.svc.Orders.UserOrders(ctx, msg.From.ID)
	if err != nil {
		slog.Error("List user orders failed", "user_id", msg.From.ID, "error", err)
		h.send(msg.Chat.ID, genericFailure, nil)
		return
	}
	keyboard := BackToMainKeyboard()
	h.send(msg.Chat.ID, formatOrders(orders), &keyboard)
}

// handleWebLogin sends a moderator a short-lived link into the web admin.
func (h *Handler) handleWebLogin(msg *tgbotapi.Message) {
	if msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}
	if !h.policy.IsModerator(msg.From.ID) {
		h.send(msg.Chat.ID, "🚫 У вас нет прав для выполнения этой команды.", nil)
		return
	}
	token, err := h.tokens.Generate(msg.From.ID, msg.From.UserName, magicLinkTTL)
	if err != nil {
		slog.Error("Generate login token failed", "user_id", msg.From.ID, "error", err)
		h.send(msg.Chat.ID, genericFailure, nil)
		return
	}
	link := h.webBaseURL + "/admin/magic?token=" + url.QueryEscape(token)
	h.send(msg.Chat.ID, fmt.Sprintf("🔐 Ссылка для входа в админку (действует %d минут):\n%s",
		int(magicLinkTTL.Minutes()), escape(link)), nil)
}

func (h *Handler) send(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	sent, err := h.bot.Send(msg)
	if err != nil {
		slog.Error("Send message failed", "chat_id", chatID, "error", err)
		return sent, err
	}
	h.messages.Track(chatID, sent.MessageID)
	return sent, nil
}

func (h *Handler) answer(callbackID, text string, alert bool) {
	cfg := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := h.bot.Request(cfg); err != nil && !strings.Contains(err.Error(), "query is too old") {
		slog.Warn("Answer callback failed", "error", err)
	}
}

func (h *Handler) deleteMessage(chatID int64, messageID int) {
	if _, err := h.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		slog.Debug("Delete message failed", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// cleanup deletes every tracked message of the chat except keep.
func (h *Handler) cleanup(chatID int64, keep ...int) {
	for _, id := range h.messages.Stale(chatID, keep...) {
		h.deleteMessage(chatID, id)
	}
}

// edit replaces the text of a bot message, falling back to a new message
// when Telegram refuses the edit (photo messages, too old, deleted).
func (h *Handler) edit(chatID int64, messageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	cfg := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard)
	cfg.ParseMode = tgbotapi.ModeHTML
	_, err := h.bot.Send(cfg)
	if err == nil || strings.Contains(err.Error(), "message is not modified") {
		return
	}
	slog.Debug("Edit message failed, sending new one", "chat_id", chatID, "error", err)

	sent, err := h.send(chatID, text, &keyboard)
	if err != nil {
		return
	}
	h.deleteMessage(chatID, messageID)
	h.cleanup(chatID, sent.MessageID)
}

// show replaces the current view with a fresh message, sent as a photo when
// photo names an existing file and the caption fits.
func (h *Handler) show(chatID int64, oldMessageID int, text string, keyboard tgbotapi.InlineKeyboardMarkup, photo string) (tgbotapi.Message, bool) {
	h.deleteMessage(chatID, oldMessageID)

	if photo != "" && utf8.RuneCountInString(text) <= captionLimit {
		if full, err := h.files.FullPath(photo); err == nil && h.files.Exists(photo) {
			cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(full))
			cfg.Caption = text
			cfg.ParseMode = tgbotapi.ModeHTML
			cfg.ReplyMarkup = keyboard
			sent, err := h.bot.Send(cfg)
			if err == nil {
				h.messages.Track(chatID, sent.MessageID)
				h.cleanup(chatID, sent.MessageID)
				return sent, true
			}
			slog.Warn("Send photo failed", "path", photo, "error", err)
		}
	}

	sent, err := h.send(chatID, text, &keyboard)
	if err != nil {
		return sent, false
	}
	h.cleanup(chatID, sent.MessageID)
	return sent, false
}

// sendAlbum sends extra item photos as one media group.
func (h *Handler) sendAlbum(chatID int64, paths []string) {
	var media []interface{}
	for _, p := range paths {
		full, err := h.files.FullPath(p)
		if err != nil {
			continue
		}
		media = append(media, tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(full)))
	}
	if len(media) == 0 {
		return
	}
	sent, err := h.bot.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
	if err != nil {
		slog.Warn("Send media group failed", "chat_id", chatID, "error", err)
		return
	}
	for _, m := range sent {
		h.messages.Track(chatID, m.MessageID)
	}
}

func buyerFrom(user *tgbotapi.User) models.Buyer {
	return models.Buyer{
		ID:       user.ID,
		Username: user.UserName,
		FullName: strings.TrimSpace(user.FirstName + " " + user.LastName),
	}
}
