package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nofomo/internal/engine"
)

// Kind distinguishes notification payloads.
type Kind string

const (
	KindDecision Kind = "decision"
	KindDigest   Kind = "digest"
)

// DecisionAlert describes one high-risk decision.
type DecisionAlert struct {
	RequestID      string
	Symbol         string
	Direction      engine.Direction
	Decision       engine.Decision
	Change24h      string
	FearGreedIndex *int
	CreatedAt      time.Time
}

// SymbolCount is one row of the digest leaderboard.
type SymbolCount struct {
	Symbol string
	Count  int
}

// Digest summarises the decisions of one window.
type Digest struct {
	From       time.Time
	To         time.Time
	Total      int
	Actions    map[engine.Action]int
	AvgScore   decimal.Decimal
	TopSymbols []SymbolCount
}

// Notification carries either a decision alert or a digest.
type Notification struct {
	Kind     Kind
	Decision *DecisionAlert
	Digest   *Digest
}

// Key groups notifications for throttling.
func (n Notification) Key() string {
	if n.Kind == KindDecision && n.Decision != nil {
		return fmt.Sprintf("%s:%s:%s", n.Kind, n.Decision.Symbol, n.Decision.Decision.Action)
	}
	return string(n.Kind)
}

// Notifier defines the alert delivery interface.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    Render(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("kind", string(note.Kind)).Str("key", note.Key()).Msg("notification sent (telegram)")
	return nil
}

// LogNotifier writes notifications to the log only.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the rendered notification.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Warn().Str("kind", string(note.Kind)).Str("key", note.Key()).Msg(Render(note))
	return nil
}

// Render formats a notification as plain text.
func Render(note Notification) string {
	switch {
	case note.Kind == KindDecision && note.Decision != nil:
		return renderDecision(*note.Decision)
	case note.Kind == KindDigest && note.Digest != nil:
		return renderDigest(*note.Digest)
	default:
		return fmt.Sprintf("[NoFOMO] empty %s notification", note.Kind)
	}
}

func renderDecision(a DecisionAlert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[NoFOMO %s]\n", a.Decision.Action))
	builder.WriteString(fmt.Sprintf("Trade: %s %s\n", a.Direction, a.Symbol))
	builder.WriteString(fmt.Sprintf("Impulse score: %d (confidence %d%%)\n", a.Decision.ImpulseScore, a.Decision.Confidence))
	builder.WriteString(fmt.Sprintf("Cooling off: %ds\n", a.Decision.CoolingSeconds))
	if a.Change24h != "" {
		builder.WriteString(fmt.Sprintf("24h change: %s%%\n", a.Change24h))
	}
	if a.FearGreedIndex != nil {
		builder.WriteString(fmt.Sprintf("Fear & greed: %d\n", *a.FearGreedIndex))
	}
	for _, reason := range a.Decision.Reasons {
		builder.WriteString("- " + reason + "\n")
	}
	builder.WriteString(fmt.Sprintf("At: %s UTC (request %s)", a.CreatedAt.UTC().Format(time.RFC3339), a.RequestID))
	return builder.String()
}

func renderDigest(d Digest) string {
	builder := strings.Builder{}
	builder.WriteString("[NoFOMO digest]\n")
	builder.WriteString(fmt.Sprintf("Window: %s to %s UTC\n", d.From.UTC().Format(time.RFC3339), d.To.UTC().Format(time.RFC3339)))
	if d.Total == 0 {
		builder.WriteString("No decisions recorded.")
		return builder.String()
	}
	builder.WriteString(fmt.Sprintf("Decisions: %d (ALLOW %d, WARN %d, BLOCK %d)\n",
		d.Total, d.Actions[engine.ActionAllow], d.Actions[engine.ActionWarn], d.Actions[engine.ActionBlock]))
	builder.WriteString(fmt.Sprintf("Average impulse score: %s\n", d.AvgScore.StringFixed(1)))
	if len(d.TopSymbols) > 0 {
		parts := make([]string, 0, len(d.TopSymbols))
		for _, sc := range d.TopSymbols {
			parts = append(parts, fmt.Sprintf("%s (%d)", sc.Symbol, sc.Count))
		}
		builder.WriteString("Most active: " + strings.Join(parts, ", "))
	}
	return strings.TrimRight(builder.String(), "\n")
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
