package handlers

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"clothshop/internal/models"
)

const callbackDataLimit = 64

// fits reports whether data is accepted by Telegram as callback data.
func fits(data string) bool {
	if len(data) > callbackDataLimit {
		slog.Warn("Callback data too long, button skipped", "data", data)
		return false
	}
	return true
}

func MainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛍 Каталог", "catalog"),
			tgbotapi.NewInlineKeyboardButtonData("🛒 Корзина", "cart"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💱 Валюта", "select_currency"),
			tgbotapi.NewInlineKeyboardButtonData("👤 Профиль", "profile"),
		),
	)
}

func BackToMainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 В главное меню", "main"),
		),
	)
}

func CategoriesKeyboard(categories []models.Category) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📂 "+c.Name, fmt.Sprintf("category_%d", c.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "main"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func ItemsKeyboard(items []models.ItemListing) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, item := range items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👕 "+item.Name, fmt.Sprintf("item_%d", item.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 К категориям", "catalog"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func SizesKeyboard(item *models.Item) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, size := range item.SizeList() {
		data := fmt.Sprintf("size_%d_%s", item.ID, size)
		if !fits(data) {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📏 "+size, data),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", fmt.Sprintf("category_%d", item.CategoryID)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func AddedToCartKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🛍 Продолжить покупки", "catalog")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🛒 Перейти в корзину", "cart")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Главное меню", "main")),
	)
}

// CartKeyboard offers one remove button per distinct item and size.
func CartKeyboard(lines []models.OrderLine) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	seen := make(map[string]bool)
	for _, line := range lines {
		data := fmt.Sprintf("remove_%d_%s", line.ItemID, line.Size)
		if seen[data] || !fits(data) {
			continue
		}
		seen[data] = true
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("➖ %s (%s)", line.Name, line.Size), data),
		))
	}
	if len(lines) > 0 {
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Оформить заказ", "checkout")),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🗑 Очистить корзину", "clear_cart")),
		)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "main"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func CurrenciesKeyboard(currencies []models.Currency, current string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range currencies {
		label := c.Name
		if c.Symbol != "" {
			label += " " + c.Symbol
		}
		if c.Name == current {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("currency_%d", c.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "main"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func ConfirmOrderKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить заказ", "confirm_order")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", "cart")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", "main")),
	)
}

func OrderSuccessKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🛍 Продолжить покупки", "catalog")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Главное меню", "main")),
	)
}
