package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/example/storefront/internal/models"
)

// TelegramService pushes order activity to the store's admin chat.
// Notifications are best-effort: a misconfigured or unreachable bot never
// blocks checkout.
type TelegramService struct {
	botToken    string
	adminChatID string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		client:      http.DefaultClient,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to the specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// NotifyNewOrder posts a placed order summary to the admin chat.
func (s *TelegramService) NotifyNewOrder(order models.Order) error {
	if s.adminChatID == "" {
		return nil
	}

	var itemsList strings.Builder
	for i, item := range order.Items {
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x $%s = $%s\n",
			i+1,
			item.ProductName,
			item.Quantity,
			item.UnitPrice.StringFixed(2),
			item.TotalPrice.StringFixed(2),
		))
	}

	message := fmt.Sprintf(`<b>🛒 New order</b>
<b>Order:</b> %s
<b>Items:</b>
%s
<b>Subtotal:</b> $%s
<b>Tax:</b> $%s
<b>Shipping:</b> $%s
<b>Total:</b> $%s
<b>Payment:</b> %s (%s)
<b>Status:</b> %s`,
		order.OrderNumber,
		itemsList.String(),
		order.Subtotal.StringFixed(2),
		order.TaxAmount.StringFixed(2),
		order.ShippingAmount.StringFixed(2),
		order.TotalAmount.StringFixed(2),
		order.PaymentMethod,
		order.PaymentStatus,
		order.Status,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

// NotifyPaymentFailed flags a webhook-reported payment failure so support can
// follow up.
func (s *TelegramService) NotifyPaymentFailed(orderNumber, detail string) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>⚠️ Payment failed</b>
<b>Order:</b> %s
<b>Detail:</b> %s`,
		orderNumber,
		detail,
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}
