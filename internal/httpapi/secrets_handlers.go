package httpapi

import (
	"encoding/json"
	"net/http"

	"jobsync-engine/internal/secrets"
)

// SecretsHandler writes named secrets into the OS keyring.
type SecretsHandler struct {
	Accounts map[string]string // name -> keyring account
}

type setSecretReq struct {
	Secret string `json:"secret"`
}

func (h SecretsHandler) account(w http.ResponseWriter, r *http.Request) (string, bool) {
	acct, ok := h.Accounts[r.PathValue("name")]
	if !ok {
		WriteError(w, r, http.StatusNotFound, "unknown_secret", "unknown secret "+r.PathValue("name"))
	}
	return acct, ok
}

func (h SecretsHandler) Set(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	var req setSecretReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if err := secrets.Set(acct, req.Secret); err != nil {
		WriteError(w, r, http.StatusBadRequest, "store_failed", "failed to store secret: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h SecretsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := secrets.Delete(acct); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
