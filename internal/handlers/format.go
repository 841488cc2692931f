package handlers

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"clothshop/internal/models"
	"clothshop/internal/service"
)

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

func formatCategory(category *models.Category, items []models.ItemListing, code string) string {
	if len(items) == 0 {
		return fmt.Sprintf("📂 Категория: %s\n\n📦 В этой категории пока нет товаров.", escape(category.Name))
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("• %s - %s", escape(item.Name), service.FormatPrice(item.Price, code)))
	}
	return fmt.Sprintf("📂 Категория: %s\n\n%s", escape(category.Name), strings.Join(lines, "\n"))
}

func formatItem(item *models.Item, price float64, code string) string {
	description := item.Description
	if description == "" {
		description = "Нет описания"
	}
	return fmt.Sprintf(
		"🏷️ %s\n💰 Цена: %s\n📝 %s\n\n📦 В наличии: %d\n\n👕 Выберите размер:",
		escape(item.Name), service.FormatPrice(price, code), escape(description), item.StockQuantity,
	)
}

func formatLines(preview *service.Preview) string {
	var b strings.Builder
	for _, line := range preview.Lines {
		fmt.Fprintf(&b, "• %s (📏 %s) - %s %s\n",
			escape(line.Name), escape(line.Size), line.Price.StringFixed(2), preview.CurrencyCode)
	}
	fmt.Fprintf(&b, "\n💰 Итого: %s %s", preview.Total.StringFixed(2), preview.CurrencyCode)
	return b.String()
}

func formatCart(preview *service.Preview) string {
	return "🛒 Ваша корзина:\n\n" + formatLines(preview)
}

func formatCheckout(preview *service.Preview) string {
	return "📋 Подтверждение заказа:\n\n" + formatLines(preview) + "\n\n✅ Подтвердите заказ:"
}

func formatProfile(user *tgbotapi.User, currency service.UserCurrency, banned bool, orders int) string {
	name := user.FirstName
	if name == "" {
		name = "Не указано"
	}
	status := "Активен"
	if banned {
		status = "Заблокирован"
	}

	var b strings.Builder
	b.WriteString("👤 Ваш профиль\n\n")
	fmt.Fprintf(&b, "🆔 ID: %d\n", user.ID)
	fmt.Fprintf(&b, "👤 Имя: %s\n", escape(name))
	fmt.Fprintf(&b, "💱 Валюта: %s\n", currency.Code)
	fmt.Fprintf(&b, "📈 Курс: 100 RUB = %s\n", service.FormatPrice(service.Convert(100, currency.Rate), currency.Code))
	fmt.Fprintf(&b, "📦 Заказов: %d\n", orders)
	fmt.Fprintf(&b, "🚫 Статус: %s\n", status)
	if user.UserName != "" {
		fmt.Fprintf(&b, "📱 Username: @%s\n", escape(user.UserName))
	}
	return b.String()
}

func statusLabel(status models.OrderStatus) string {
	switch status {
	case models.OrderAccepted:
		return "✅ принят"
	case models.OrderRejected:
		return "❌ отклонен"
	default:
		return "⏳ в обработке"
	}
}

func formatOrders(orders []models.Order) string {
	if len(orders) == 0 {
		return "📦 У вас пока нет заказов."
	}
	var b strings.Builder
	b.WriteString("📦 Ваши заказы:\n\n")
	for _, order := range orders {
		fmt.Fprintf(&b, "#%d от %s - %s - %s\n",
			order.ID, order.CreatedAt.Local().Format("02.01.2006"),
			service.FormatPrice(order.TotalPrice, order.CurrencyCode), statusLabel(order.Status))
	}
	return b.String()
}
