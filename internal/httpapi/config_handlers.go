package httpapi

import (
	"encoding/json"
	"net/http"

	"jobsync-engine/internal/config"
)

// ConfigHandler exposes the running configuration. Saved changes apply on
// the next start.
type ConfigHandler struct {
	Deps Deps
}

const redacted = "********"

func redact(c config.Config) config.Config {
	if c.Ingest.Secret != "" {
		c.Ingest.Secret = redacted
	}
	if c.Downstream.Secret != "" {
		c.Downstream.Secret = redacted
	}
	if c.App.SentryDSN != "" {
		c.App.SentryDSN = redacted
	}
	if c.Database.DSN != "" {
		c.Database.DSN = redacted
	}
	return c
}

func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cur, _ := h.Deps.config()
	WriteJSON(w, http.StatusOK, redact(cur))
}

func (h ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var incoming config.Config
	if err := dec.Decode(&incoming); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	if dec.More() {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: trailing data")
		return
	}

	// Secrets never round-trip through this endpoint. Keep what the file
	// holds; values from the environment stay out of it.
	onDisk, err := config.LoadFile(h.Deps.UserCfgPath)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "load_failed", err.Error())
		return
	}
	incoming.Ingest.Secret = onDisk.Ingest.Secret
	incoming.Downstream.Secret = onDisk.Downstream.Secret
	if incoming.App.SentryDSN == redacted {
		incoming.App.SentryDSN = onDisk.App.SentryDSN
	}
	if incoming.Database.DSN == redacted {
		incoming.Database.DSN = onDisk.Database.DSN
	}

	normalized, vr := config.NormalizeAndValidate(incoming)
	if !vr.OK() {
		WriteJSON(w, http.StatusBadRequest, vr)
		return
	}
	if err := config.SaveAtomic(h.Deps.UserCfgPath, normalized); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"saved":           true,
		"restartRequired": true,
		"warnings":        vr.Warnings,
	})
}

func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	cur, _ := h.Deps.config()
	_, vr := config.NormalizeAndValidate(cur)
	WriteJSON(w, http.StatusOK, vr)
}
