package httpapp

import (
	"bufio"
	"net/http"
	"os"
	"strings"
)

func (h *Handler) ListOAuthTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.db.ListOAuthTokens()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, tokens)
}

type authorizeParams struct {
	AccountID  int64   `form:"account_id"`
	RedirectTo *string `form:"redirect_to"`
}

func (h *Handler) SpotifyAuthorize(w http.ResponseWriter, r *http.Request) {
	var p authorizeParams
	if err := h.decodeQuery(r, &p); err != nil || p.AccountID < 1 {
		h.badRequest(w, "account_id is required")
		return
	}
	if !h.auth.Configured() {
		h.respond(w, http.StatusUnprocessableEntity, apiError{Error: "spotify client credentials are not configured"})
		return
	}
	authorizeURL, err := h.auth.AuthorizeURL(p.AccountID, p.RedirectTo)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"authorize_url": authorizeURL})
}

// SpotifyCallback finishes the PKCE flow. When the flow started with a
// redirect target the browser is sent back there; API callers get JSON.
func (h *Handler) SpotifyCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		h.badRequest(w, "code and state are required")
		return
	}
	redirectTo, err := h.auth.HandleCallback(r.Context(), code, state)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if redirectTo != nil && *redirectTo != "" {
		http.Redirect(w, r, *redirectTo, http.StatusFound)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "connected"})
}

type refreshParams struct {
	AccountID int64 `form:"account_id"`
}

func (h *Handler) SpotifyRefresh(w http.ResponseWriter, r *http.Request) {
	var p refreshParams
	if err := h.decodeQuery(r, &p); err != nil || p.AccountID < 1 {
		h.badRequest(w, "account_id is required")
		return
	}
	token, err := h.auth.Refresh(r.Context(), p.AccountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, token)
}

type ensureAccountPayload struct {
	Name string `json:"name"`
}

func (h *Handler) SpotifyEnsureAccount(w http.ResponseWriter, r *http.Request) {
	var p ensureAccountPayload
	if err := decodeBody(r, &p); err != nil || p.Name == "" {
		h.badRequest(w, "name is required")
		return
	}
	account, err := h.auth.EnsureAccount(p.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, account)
}

// requiredCookieNames are the YouTube session cookies age-restricted
// extraction needs. Only their presence is reported, never their values.
var requiredCookieNames = []string{
	"SID", "HSID", "SSID", "APISID", "SAPISID",
	"__Secure-1PSID", "__Secure-3PSID",
}

type cookiesReport struct {
	Configured bool     `json:"configured"`
	FileExists bool     `json:"file_exists"`
	Present    []string `json:"present"`
	Missing    []string `json:"missing"`
}

// ValidateCookies inspects the configured Netscape cookies file and
// reports which required cookie names it carries.
func (h *Handler) ValidateCookies(w http.ResponseWriter, r *http.Request) {
	report := cookiesReport{Present: []string{}, Missing: []string{}}
	if h.cfg.CookiesFile == "" {
		report.Missing = append(report.Missing, requiredCookieNames...)
		h.respond(w, http.StatusOK, report)
		return
	}
	report.Configured = true

	f, err := os.Open(h.cfg.CookiesFile)
	if err != nil {
		report.Missing = append(report.Missing, requiredCookieNames...)
		h.respond(w, http.StatusOK, report)
		return
	}
	defer f.Close() //nolint:errcheck // read-only handle
	report.FileExists = true

	found := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Netscape format: domain, flag, path, secure, expiry, name, value
		fields := strings.Split(line, "\t")
		if len(fields) >= 6 {
			found[fields[5]] = true
		}
	}
	for _, name := range requiredCookieNames {
		if found[name] {
			report.Present = append(report.Present, name)
		} else {
			report.Missing = append(report.Missing, name)
		}
	}
	h.respond(w, http.StatusOK, report)
}
