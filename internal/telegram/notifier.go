package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
)

// DefaultCooldown is the gap between repeated alerts used when none is configured
const DefaultCooldown = 30 * time.Second

const (
	defaultAPIBase = "https://api.telegram.org"
	queueSize      = 64
	sendTimeout    = 15 * time.Second
)

// Config holds Telegram notifier configuration
type Config struct {
	Enabled  bool
	BotToken string
	ChatID   string
	Cooldown time.Duration // Minimum gap between alerts of one type for one video; 0 sends every alert
	APIBase  string        // Overrides https://api.telegram.org
}

// apiResponse represents the response from Telegram API
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Notifier forwards raised alerts to a Telegram chat.
// It subscribes to the pipeline event bus; sends happen on a worker goroutine
// so a slow API never stalls a scan.
type Notifier struct {
	cfg        Config
	httpClient *http.Client

	queueMu sync.RWMutex
	queue   chan *pipeline.Event
	closed  bool
	wg      sync.WaitGroup

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// ValidateConfig validates the Telegram notifier configuration
func ValidateConfig(cfg Config) error {
	if cfg.Enabled {
		if cfg.BotToken == "" {
			return fmt.Errorf("telegram bot token is required when enabled")
		}
		if cfg.ChatID == "" {
			return fmt.Errorf("telegram chat ID is required when enabled")
		}
	}
	if cfg.Cooldown < 0 {
		return fmt.Errorf("telegram cooldown cannot be negative")
	}
	return nil
}

// NewNotifier creates a notifier and starts its sender
func NewNotifier(cfg Config) *Notifier {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	n := &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		queue:      make(chan *pipeline.Event, queueSize),
		lastSent:   make(map[string]time.Time),
		now:        time.Now,
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// IsEnabled returns whether alerts are forwarded
func (n *Notifier) IsEnabled() bool {
	return n.cfg.Enabled && n.cfg.BotToken != "" && n.cfg.ChatID != ""
}

// OnEvent implements pipeline.EventHandler. Only raised alerts are forwarded;
// when the queue is full the alert is dropped.
func (n *Notifier) OnEvent(e *pipeline.Event) {
	if e.Type != pipeline.EventAlertRaised || e.Alert == nil || !n.IsEnabled() {
		return
	}
	n.queueMu.RLock()
	defer n.queueMu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- e:
	default:
		logger.Warn("Telegram", "Queue full, dropping alert for %s", e.Label)
	}
}

// Close stops accepting alerts and waits for queued ones to be sent
func (n *Notifier) Close() {
	n.queueMu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.queueMu.Unlock()
	n.wg.Wait()
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for e := range n.queue {
		key := e.Label + "|" + string(e.Alert.Type)
		if !n.claim(key) {
			logger.Debug("Telegram", "Cooldown active for %s, skipping", key)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := n.SendMessage(ctx, FormatAlert(e)); err != nil {
			logger.Warn("Telegram", "Failed to send alert: %v", err)
		}
		cancel()
	}
}

// claim reports whether key is outside its cooldown and, if so, starts a new one
func (n *Notifier) claim(key string) bool {
	if n.cfg.Cooldown == 0 {
		return true
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.cfg.Cooldown {
		return false
	}
	n.lastSent[key] = now

	// Drop entries that can no longer block anything.
	for k, t := range n.lastSent {
		if now.Sub(t) > n.cfg.Cooldown*2 {
			delete(n.lastSent, k)
		}
	}
	return true
}

// FormatAlert renders an alert event as an HTML Telegram message
func FormatAlert(e *pipeline.Event) string {
	icon := "⚠️"
	if e.Alert.Severity == pipeline.SeverityHigh {
		icon = "🚨"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s alert</b> (%s)\n", icon, html.EscapeString(strings.ToUpper(string(e.Alert.Type))), e.Alert.Severity)
	fmt.Fprintf(&b, "%s\n", html.EscapeString(e.Alert.Message))
	fmt.Fprintf(&b, "Video: <code>%s</code>, frame %d", html.EscapeString(e.Label), e.FrameIndex)
	return b.String()
}

// SendMessage sends a text message to the configured chat
func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	if !n.IsEnabled() {
		return fmt.Errorf("telegram notifier is disabled")
	}

	payload := map[string]interface{}{
		"chat_id":    n.cfg.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	return n.sendRequest(ctx, "sendMessage", payload)
}

// sendRequest sends a generic request to Telegram API
func (n *Notifier) sendRequest(ctx context.Context, method string, payload map[string]interface{}) error {
	url := fmt.Sprintf("%s/bot%s/%s", strings.TrimSuffix(n.cfg.APIBase, "/"), n.cfg.BotToken, method)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

// handleResponse processes the Telegram API response
func handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram API error %d: %s", apiResp.ErrorCode, apiResp.Description)
	}
	return nil
}

var _ pipeline.EventHandler = (*Notifier)(nil)
