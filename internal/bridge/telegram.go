// Package bridge connects chat transports to the intent pipeline. Messages
// arriving over a bridge become intake records like any other submission.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"telos/internal/config"
	"telos/internal/orchestrator"
	"telos/internal/state"
)

// TelegramBridge long-polls the Telegram bot API and turns every text
// message into an intake record with source "telegram".
type TelegramBridge struct {
	app        *state.AppContext
	orch       *orchestrator.Orchestrator
	cfg        config.TelegramConfig
	log        *zap.Logger
	httpClient *http.Client
	offset     int64
}

// NewTelegramBridge builds a bridge from telegram configuration. The caller
// guarantees cfg is non-nil (the bridge is only started when telegram.yml
// exists).
func NewTelegramBridge(app *state.AppContext, orch *orchestrator.Orchestrator, cfg config.TelegramConfig, log *zap.Logger) *TelegramBridge {
	return &TelegramBridge{
		app:        app,
		orch:       orch,
		cfg:        cfg,
		log:        log,
		httpClient: &http.Client{Timeout: time.Duration(cfg.PollSeconds+10) * time.Second},
	}
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

type telegramResponse struct {
	OK          bool             `json:"ok"`
	Description string           `json:"description"`
	Result      []telegramUpdate `json:"result"`
}

// Run polls for updates until ctx is cancelled. Transient API failures are
// logged and polling continues after a short pause.
func (b *TelegramBridge) Run(ctx context.Context) error {
	b.log.Info("telegram bridge polling", zap.Int("poll_seconds", b.cfg.PollSeconds))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		updates, err := b.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.log.Warn("telegram poll failed", zap.Error(err))
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= b.offset {
				b.offset = update.UpdateID + 1
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *TelegramBridge) fetchUpdates(ctx context.Context) ([]telegramUpdate, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d",
		strings.TrimRight(b.cfg.APIBase, "/"), b.cfg.BotToken, b.cfg.PollSeconds, b.offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building getUpdates request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling telegram: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading telegram response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed telegramResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing telegram response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram api error: %s", parsed.Description)
	}
	return parsed.Result, nil
}

func (b *TelegramBridge) handleUpdate(ctx context.Context, update telegramUpdate) {
	if update.Message == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	persisted, err := b.app.Store().PersistIntent("telegram", text, b.cfg.DefaultAlignment, "")
	if err != nil {
		b.log.Error("persisting telegram intent", zap.Error(err))
		b.reply(ctx, update.Message.Chat.ID, "Could not record that, sorry. Try again in a moment.")
		return
	}
	scheduled := b.orch.RequestBeat()
	b.log.Info("telegram intent recorded",
		zap.String("intent_id", persisted.ID.String()),
		zap.String("username", update.Message.From.Username),
		zap.Bool("beat_scheduled", scheduled))

	b.reply(ctx, update.Message.Chat.ID, fmt.Sprintf("Recorded: %s", text))
}

// NotifyOutcome pushes a message to the configured default chat. It is a
// no-op when no default chat id is configured.
func (b *TelegramBridge) NotifyOutcome(ctx context.Context, text string) error {
	if b.cfg.DefaultChatID == 0 {
		return nil
	}
	return b.sendMessage(ctx, b.cfg.DefaultChatID, text)
}

func (b *TelegramBridge) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sendMessage(ctx, chatID, text); err != nil {
		b.log.Warn("telegram reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *TelegramBridge) sendMessage(ctx context.Context, chatID int64, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(b.cfg.APIBase, "/"), b.cfg.BotToken)
	payload, err := json.Marshal(map[string]any{"chat_id": chatID, "text": text})
	if err != nil {
		return fmt.Errorf("encoding sendMessage payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading sendMessage response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
