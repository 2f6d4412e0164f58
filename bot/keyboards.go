package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	config "github.com/anjiri1684/peptide_shop/configs"
	"github.com/anjiri1684/peptide_shop/models"
)

const (
	cbAdd      = "add"
	cbRemove   = "remove"
	cbClear    = "clear"
	cbCheckout = "checkout"
	cbBucket   = "bucket"
	cbCatalog  = "catalog"
	cbReferral = "referral"
)

func mainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🛒 Peptide catalog", cbCatalog)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧺 My bucket", cbBucket)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("👤 Referral program", cbReferral)),
	)
}

func catalogKeyboard(catalog config.Catalog) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for pos := models.MinPosition; pos <= models.MaxPosition; pos++ {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("➕ #%d %s", pos, catalog.Name(pos)), fmt.Sprintf("%s:%d", cbAdd, pos)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧺 My bucket", cbBucket)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func bucketKeyboard(bucket models.Bucket) tgbotapi.InlineKeyboardMarkup {
	if bucket.Count() == 0 {
		return tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🛒 Open catalog", cbCatalog)),
		)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, pos := range bucket.Positions() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("➖ Remove #%d", pos), fmt.Sprintf("%s:%d", cbRemove, pos)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧹 Clear", cbClear)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Place order", cbCheckout)),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func payKeyboard(link string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Pay", link)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧺 My bucket", cbBucket)),
	)
}

func referralKeyboard(link string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.InlineKeyboardButton{Text: "📤 Share", SwitchInlineQuery: &link}),
	)
}
