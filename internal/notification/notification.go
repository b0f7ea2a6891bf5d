// Package notification delivers recommendation records to chat channels.
// Formatting lives here; the decision core only emits records.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"options-advisor/internal/engine"
	"options-advisor/internal/position"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotifyRecommendation NotificationType = "recommendation"
	NotifyResolution     NotificationType = "resolution"
	NotifyScanSummary    NotificationType = "scan_summary"
	NotifyError          NotificationType = "error"
)

// Notification is a formatted message ready for delivery.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Symbol    string
	Priority  string
	NetCost   float64
	Timestamp time.Time
}

// Notifier is a single delivery channel.
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to all enabled providers.
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

// NewManager creates a notification manager.
func NewManager(enabled bool) *Manager {
	return &Manager{enabled: enabled}
}

// AddNotifier adds a delivery channel.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers a notification to all enabled providers.
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendRecommendation formats and delivers one recommendation record.
func (m *Manager) SendRecommendation(res *engine.EvaluationResult) error {
	n := &Notification{
		Type:      NotifyRecommendation,
		Title:     fmt.Sprintf("%s %s: %s", priorityEmoji(res.Priority), res.Action, res.Symbol),
		Symbol:    res.Symbol,
		Priority:  string(res.Priority),
		NetCost:   res.NetCost,
		Timestamp: res.EvaluatedAt,
	}

	msg := fmt.Sprintf("%s (%s)\n%s", res.Symbol, res.Account, res.Reason)
	if res.ProposedStrike > 0 {
		msg += fmt.Sprintf("\nNew strike: %.2f exp %s", res.ProposedStrike, res.ProposedExpiration.Format("Jan 2"))
		if res.NetCost < 0 {
			msg += fmt.Sprintf("\nCredit: $%.2f/share", -res.NetCost)
		} else {
			msg += fmt.Sprintf("\nDebit: $%.2f/share", res.NetCost)
		}
	}
	n.Message = msg

	return m.Send(n)
}

// SendResolution notes a position that vanished from the snapshot feed.
func (m *Manager) SendResolution(pos position.Position) error {
	return m.Send(&Notification{
		Type:      NotifyResolution,
		Title:     fmt.Sprintf("Resolved: %s", pos.Symbol),
		Message:   fmt.Sprintf("%s %s %.0f position no longer open (closed, assigned or expired)", pos.Symbol, pos.Kind, pos.Strike),
		Symbol:    pos.Symbol,
		Timestamp: time.Now(),
	})
}

// SendScanSummary reports one completed scan.
func (m *Manager) SendScanSummary(kind string, evaluated, emitted, resolved int, duration time.Duration) error {
	if emitted == 0 && resolved == 0 {
		// Quiet scans stay quiet.
		return nil
	}
	return m.Send(&Notification{
		Type:      NotifyScanSummary,
		Title:     fmt.Sprintf("Scan %s complete", kind),
		Message:   fmt.Sprintf("%d positions evaluated, %d recommendations, %d resolved in %s", evaluated, emitted, resolved, duration.Round(time.Second)),
		Timestamp: time.Now(),
	})
}

// SendError sends an operational error notification.
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}

func priorityEmoji(p engine.Priority) string {
	switch p {
	case engine.PriorityUrgent:
		return "🚨"
	case engine.PriorityHigh:
		return "🔴"
	case engine.PriorityMedium:
		return "🟡"
	default:
		return "🟢"
	}
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

// TelegramNotifier sends notifications via Telegram.
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// NewTelegramNotifier creates a new Telegram notifier.
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration.
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier.
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x2ECC71 // green
	switch notification.Priority {
	case "urgent":
		color = 0xE74C3C
	case "high":
		color = 0xE67E22
	case "medium":
		color = 0xF1C40F
	}
	if notification.Type == NotifyError {
		color = 0xE74C3C
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	if notification.Symbol != "" {
		fields := []map[string]interface{}{
			{"name": "Symbol", "value": notification.Symbol, "inline": true},
		}
		if notification.Priority != "" {
			fields = append(fields, map[string]interface{}{
				"name": "Priority", "value": notification.Priority, "inline": true,
			})
		}
		if notification.NetCost != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Net Cost", "value": fmt.Sprintf("$%.2f/share", notification.NetCost), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
