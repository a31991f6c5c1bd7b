package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"derivbot/internal/risk"
)

type persistedState struct {
	SessionID string        `json:"session_id"`
	SavedAt   time.Time     `json:"saved_at"`
	Risk      risk.Snapshot `json:"risk"`
}

// saveState writes the risk ledgers to the state file, atomically via a
// temp file. Called after every settlement and on Stop.
func (e *Engine) saveState() {
	path := e.cfg.Runtime.StateFile
	if path == "" {
		return
	}

	data, err := json.MarshalIndent(persistedState{
		SessionID: e.sessionID,
		SavedAt:   time.Now(),
		Risk:      e.risk.Snapshot(),
	}, "", "  ")
	if err != nil {
		e.logEntry().WithError(err).Warn("Не удалось сериализовать состояние.")
		return
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			e.logEntry().WithError(err).Warn("Не удалось создать каталог состояния.")
			return
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		e.logEntry().WithError(err).Warn("Не удалось сохранить состояние.")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		e.logEntry().WithError(err).Warn("Не удалось сохранить состояние.")
		return
	}

	e.logEntry().WithField("path", path).Debug("Состояние сохранено.")
}

// restoreState reloads the ledgers, then re-anchors the balance on the live
// account figure: the broker is the source of truth for money.
func (e *Engine) restoreState() error {
	path := e.cfg.Runtime.StateFile
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			e.logEntry().WithField("path", path).Debug("Файл состояния не найден, старт с чистого листа.")
			return nil
		}
		return fmt.Errorf("Не удалось прочитать файл состояния: %w", err)
	}

	var persisted persistedState
	if err := json.Unmarshal(data, &persisted); err != nil {
		return fmt.Errorf("Не удалось разобрать файл состояния: %w", err)
	}

	e.risk.Restore(persisted.Risk)
	if account := e.client.Account(); account.Balance > 0 {
		e.risk.SetBalance(account.Balance)
	}

	e.logEntry().WithFields(map[string]interface{}{
		"path":         path,
		"saved_at":     persisted.SavedAt,
		"prev_session": persisted.SessionID,
		"trades":       len(persisted.Risk.AllTrades),
	}).Info("Состояние восстановлено.")

	return nil
}
