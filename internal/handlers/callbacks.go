package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"clothshop/internal/auth"
	"clothshop/internal/models"
	"clothshop/internal/notify"
	"clothshop/internal/service"
)

const (
	unknownCommand   = "❌ Неизвестная команда"
	emptyCartText    = "🛒 Ваша корзина пуста"
	sessionExpired   = "⌛ Сессия оформления истекла. Откройте корзину и оформите заказ заново."
	noRightsAlert    = "У вас нет прав для выполнения этого действия"
	orderGoneAlert   = "Заказ не найден"
	orderClosedAlert = "Заказ уже обработан"
)

// callback carries one callback query through the dispatch.
type callback struct {
	id        string
	user      *tgbotapi.User
	chatID    int64
	messageID int
	data      string
	message   *tgbotapi.Message
}

func (h *Handler) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil || query.From == nil {
		h.answer(query.ID, "", false)
		return
	}
	cb := callback{
		id:        query.ID,
		user:      query.From,
		chatID:    query.Message.Chat.ID,
		messageID: query.Message.MessageID,
		data:      query.Data,
		message:   query.Message,
	}
	logAction(cb.user, "callback "+cb.data)

	if strings.HasPrefix(cb.data, notify.AcceptOrderPrefix) || strings.HasPrefix(cb.data, notify.RejectOrderPrefix) {
		h.handleOrderDecision(ctx, cb)
		return
	}

	if h.banned(ctx, cb.chatID, cb.user.ID) {
		h.answer(cb.id, "", false)
		return
	}

	switch {
	case cb.data == "main":
		h.edit(cb.chatID, cb.messageID, "🏠 Главное меню\n\nВыберите действие:", MainMenuKeyboard())
	case cb.data == "catalog":
		h.showCatalog(ctx, cb)
	case strings.HasPrefix(cb.data, "category_"):
		h.showCategory(ctx, cb)
	case strings.HasPrefix(cb.data, "item_"):
		h.showItem(ctx, cb)
	case strings.HasPrefix(cb.data, "size_"):
		h.addToCart(ctx, cb)
		return
	case cb.data == "cart":
		h.showCart(ctx, cb)
	case strings.HasPrefix(cb.data, "remove_"):
		h.removeFromCart(ctx, cb)
		return
	case cb.data == "clear_cart":
		h.clearCart(ctx, cb)
		return
	case cb.data == "checkout":
		h.checkout(ctx, cb)
	case cb.data == "confirm_order":
		h.confirmOrder(ctx, cb)
	case cb.data == "select_currency":
		h.showCurrencies(ctx, cb)
	case strings.HasPrefix(cb.data, "currency_"):
		h.setCurrency(ctx, cb)
		return
	case cb.data == "profile":
		h.showProfile(ctx, cb)
	default:
		h.edit(cb.chatID, cb.messageID, unknownCommand, BackToMainKeyboard())
	}
	h.answer(cb.id, "", false)
}

// parseID reads the integer after prefix, e.g. 12 from "item_12".
func parseID(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil && id > 0
}

// parseItemSize splits "<prefix><itemID>_<size>". Sizes may contain
// underscores.
func parseItemSize(data, prefix string) (int64, string, bool) {
	parts := strings.SplitN(strings.TrimPrefix(data, prefix), "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, parts[1], true
}

func (h *Handler) failed(cb callback, action string, err error) {
	slog.Error("Callback failed", "action", action, "user_id", cb.user.ID, "error", err)
	h.edit(cb.chatID, cb.messageID, genericFailure, BackToMainKeyboard())
}

func (h *Handler) userCurrency(ctx context.Context, userID int64) service.UserCurrency {
	currency, err := h.svc.Currency.GetUserCurrency(ctx, userID)
	if err != nil {
		slog.Warn("Falling back to default currency", "user_id", userID, "error", err)
	}
	return currency
}

func (h *Handler) showCatalog(ctx context.Context, cb callback) {
	categories, err := h.svc.Catalog.ListCategories(ctx)
	if err != nil {
		h.failed(cb, "catalog", err)
		return
	}
	if len(categories) == 0 {
		h.edit(cb.chatID, cb.messageID, "📂 Каталог пока пуст.", BackToMainKeyboard())
		return
	}
	h.edit(cb.chatID, cb.messageID, "📂 Выберите категорию:", CategoriesKeyboard(categories))
}

func (h *Handler) showCategory(ctx context.Context, cb callback) {
	id, ok := parseID(cb.data, "category_")
	if !ok {
		h.edit(cb.chatID, cb.messageID, unknownCommand, BackToMainKeyboard())
		return
	}
	category, err := h.svc.Catalog.GetCategory(ctx, id)
	if errors.Is(err, service.ErrNotFound) {
		h.edit(cb.chatID, cb.messageID, "❌ Категория не найдена", BackToMainKeyboard())
		return
	}
	if err != nil {
		h.failed(cb, "category", err)
		return
	}

	currency := h.userCurrency(ctx, cb.user.ID)
	items, err := h.svc.Catalog.ListItems(ctx, id, currency.Code)
	if err != nil {
		h.failed(cb, "category", err)
		return
	}
	h.show(cb.chatID, cb.messageID, formatCategory(category, items, currency.Code), ItemsKeyboard(items), category.ImagePath)
}

func (h *Handler) showItem(ctx context.Context, cb callback) {
	id, ok := parseID(cb.data, "item_")
	if !ok {
		h.edit(cb.chatID, cb.messageID, unknownCommand, BackToMainKeyboard())
		return
	}
	item, err := h.svc.Catalog.GetItem(ctx, id)
	if errors.Is(err, service.ErrNotFound) {
		h.edit(cb.chatID, cb.messageID, "❌ Товар не найден", BackToMainKeyboard())
		return
	}
	if err != nil {
		h.failed(cb, "item", err)
		return
	}

	currency := h.userCurrency(ctx, cb.user.ID)
	price, err := h.svc.Catalog.GetItemPrice(ctx, id, currency.Code)
	if err != nil {
		h.failed(cb, "item", err)
		return
	}
	images, err := h.svc.Catalog.ValidImages(ctx, id)
	if err != nil {
		h.failed(cb, "item", err)
		return
	}

	var primary string
	if len(images) > 0 {
		primary = images[0]
	}
	_, photo := h.show(cb.chatID, cb.messageID, formatItem(item, price, currency.Code), SizesKeyboard(item), primary)
	if photo && len(images) > 1 {
		extra := images[1:]
		if len(extra) > extraPhotos {
			extra = extra[:extraPhotos]
		}
		h.sendAlbum(cb.chatID, extra)
	}
}

func (h *Handler) addToCart(ctx context.Context, cb callback) {
	itemID, size, ok := parseItemSize(cb.data, "size_")
	if !ok {
		h.answer(cb.id, unknownCommand, false)
		return
	}
	err := h.svc.Carts.AddToCart(ctx, cb.user.ID, itemID, size)
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.answer(cb.id, "❌ Товар не найден", true)
		return
	case err != nil:
		slog.Error("Add to cart failed", "user_id", cb.user.ID, "item_id", itemID, "error", err)
		h.answer(cb.id, genericFailure, true)
		return
	}
	h.checkouts.Remove(cb.user.ID)
	h.answer(cb.id, "✅ Товар добавлен в корзину", false)

	name := ""
	if item, err := h.svc.Catalog.GetItem(ctx, itemID); err == nil {
		name = item.Name
	}
	text := fmt.Sprintf("✅ Товар добавлен в корзину!\n\n🏷️ %s\n📏 Размер: %s", escape(name), escape(size))
	h.show(cb.chatID, cb.messageID, text, AddedToCartKeyboard(), "")
}

// cartView renders the cart through a checkout preview so prices are in the
// user's currency.
func (h *Handler) cartView(ctx context.Context, userID int64) (string, tgbotapi.InlineKeyboardMarkup, error) {
	currency := h.userCurrency(ctx, userID)
	preview, err := h.svc.Orders.Checkout(ctx, userID, currency.Code)
	if errors.Is(err, service.ErrEmptyCart) {
		return emptyCartText, CartKeyboard(nil), nil
	}
	if err != nil {
		return "", tgbotapi.InlineKeyboardMarkup{}, err
	}
	return formatCart(preview), CartKeyboard(preview.Lines), nil
}

func (h *Handler) showCart(ctx context.Context, cb callback) {
	h.checkouts.Remove(cb.user.ID)
	text, keyboard, err := h.cartView(ctx, cb.user.ID)
	if err != nil {
		h.failed(cb, "cart", err)
		return
	}
	h.show(cb.chatID, cb.messageID, text, keyboard, "")
}

func (h *Handler) removeFromCart(ctx context.Context, cb callback) {
	itemID, size, ok := parseItemSize(cb.data, "remove_")
	if !ok {
		h.answer(cb.id, unknownCommand, false)
		return
	}
	removed, err := h.svc.Carts.RemoveFromCart(ctx, cb.user.ID, itemID, size)
	if err != nil {
		slog.Error("Remove from cart failed", "user_id", cb.user.ID, "item_id", itemID, "error", err)
		h.answer(cb.id, genericFailure, true)
		return
	}
	h.checkouts.Remove(cb.user.ID)
	if removed {
		h.answer(cb.id, "➖ Товар удален из корзины", false)
	} else {
		h.answer(cb.id, "Товар уже удален", false)
	}

	text, keyboard, err := h.cartView(ctx, cb.user.ID)
	if err != nil {
		h.failed(cb, "remove", err)
		return
	}
	h.edit(cb.chatID, cb.messageID, text, keyboard)
}

func (h *Handler) clearCart(ctx context.Context, cb callback) {
	if _, err := h.svc.Carts.ClearCart(ctx, cb.user.ID); err != nil {
		slog.Error("Clear cart failed", "user_id", cb.user.ID, "error", err)
		h.answer(cb.id, genericFailure, true)
		return
	}
	h.checkouts.Remove(cb.user.ID)
	h.answer(cb.id, "🗑 Корзина очищена", false)
	h.edit(cb.chatID, cb.messageID, "🗑 Корзина очищена", BackToMainKeyboard())
}

func (h *Handler) checkout(ctx context.Context, cb callback) {
	currency := h.userCurrency(ctx, cb.user.ID)
	preview, err := h.svc.Orders.Checkout(ctx, cb.user.ID, currency.Code)
	if errors.Is(err, service.ErrEmptyCart) {
		h.edit(cb.chatID, cb.messageID, emptyCartText, BackToMainKeyboard())
		return
	}
	if err != nil {
		h.failed(cb, "checkout", err)
		return
	}
	h.checkouts.Add(cb.user.ID, preview)
	h.edit(cb.chatID, cb.messageID, formatCheckout(preview), ConfirmOrderKeyboard())
}

func (h *Handler) confirmOrder(ctx context.Context, cb callback) {
	preview, ok := h.checkouts.Get(cb.user.ID)
	if !ok {
		h.edit(cb.chatID, cb.messageID, sessionExpired, BackToMainKeyboard())
		return
	}

	order, err := h.svc.Orders.ConfirmOrder(ctx, buyerFrom(cb.user), preview)
	switch {
	case errors.Is(err, service.ErrEmptyCart):
		h.checkouts.Remove(cb.user.ID)
		h.edit(cb.chatID, cb.messageID, emptyCartText, BackToMainKeyboard())
		return
	case err != nil:
		h.failed(cb, "confirm_order", err)
		return
	}
	h.checkouts.Remove(cb.user.ID)

	text := fmt.Sprintf(
		"✅ Заказ #%d оформлен!\n\n💰 Сумма: %s\n\nМы свяжемся с вами для подтверждения.",
		order.ID, service.FormatPrice(order.TotalPrice, order.CurrencyCode),
	)
	h.edit(cb.chatID, cb.messageID, text, OrderSuccessKeyboard())
}

func (h *Handler) showCurrencies(ctx context.Context, cb callback) {
	currencies, err := h.svc.Catalog.ListCurrencies(ctx)
	if err != nil {
		h.failed(cb, "select_currency", err)
		return
	}
	current := h.userCurrency(ctx, cb.user.ID)
	h.edit(cb.chatID, cb.messageID, "💱 Выберите валюту:", CurrenciesKeyboard(currencies, current.Code))
}

func (h *Handler) setCurrency(ctx context.Context, cb callback) {
	id, ok := parseID(cb.data, "currency_")
	if !ok {
		h.answer(cb.id, unknownCommand, false)
		return
	}
	currency, err := h.svc.Currency.SetUserCurrency(ctx, cb.user.ID, id)
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.answer(cb.id, "❌ Валюта не найдена", true)
		return
	case err != nil:
		slog.Error("Set currency failed", "user_id", cb.user.ID, "currency_id", id, "error", err)
		h.answer(cb.id, genericFailure, true)
		return
	}
	h.checkouts.Remove(cb.user.ID)
	h.answer(cb.id, "✅ Валюта изменена на "+currency.Name, false)
	h.edit(cb.chatID, cb.messageID,
		fmt.Sprintf("✅ Валюта изменена на %s\n\nЦены теперь отображаются в %s.", currency.Name, currency.Name),
		BackToMainKeyboard())
}

func (h *Handler) showProfile(ctx context.Context, cb callback) {
	currency := h.userCurrency(ctx, cb.user.ID)
	orders, err := h.svc.Orders.UserOrders(ctx, cb.user.ID)
	if err != nil {
		h.failed(cb, "profile", err)
		return
	}
	// banned users never get here
	h.edit(cb.chatID, cb.messageID, formatProfile(cb.user, currency, false, len(orders)), BackToMainKeyboard())
}

// handleOrderDecision serves the accept/reject buttons under an order
// notification.
func (h *Handler) handleOrderDecision(ctx context.Context, cb callback) {
	status := models.OrderAccepted
	prefix := notify.AcceptOrderPrefix
	if strings.HasPrefix(cb.data, notify.RejectOrderPrefix) {
		status = models.OrderRejected
		prefix = notify.RejectOrderPrefix
	}
	orderID, ok := parseID(cb.data, prefix)
	if !ok {
		h.answer(cb.id, unknownCommand, true)
		return
	}

	actor := auth.Actor{UserID: cb.user.ID, ChatID: cb.chatID}
	order, err := h.svc.Orders.SetOrderStatus(ctx, actor, orderID, status)
	switch {
	case errors.Is(err, service.ErrForbidden):
		h.answer(cb.id, noRightsAlert, true)
		return
	case errors.Is(err, service.ErrNotFound):
		h.answer(cb.id, orderGoneAlert, true)
		return
	case errors.Is(err, service.ErrConflict):
		h.answer(cb.id, orderClosedAlert, true)
		return
	case err != nil:
		slog.Error("Order decision failed", "order_id", orderID, "error", err)
		h.answer(cb.id, genericFailure, true)
		return
	}

	who := cb.user.FirstName
	if cb.user.UserName != "" {
		who = "@" + cb.user.UserName
	}
	text := fmt.Sprintf("%s\n\n<b>Статус:</b> %s (%s)", escape(cb.message.Text), statusLabel(order.Status), escape(who))
	edit := tgbotapi.NewEditMessageText(cb.chatID, cb.messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := h.bot.Send(edit); err != nil {
		slog.Warn("Edit order message failed", "order_id", orderID, "error", err)
	}
	h.answer(cb.id, "Заказ "+statusLabel(order.Status), false)
}
