// Package server implements the dashboard's HTTP API handlers. Validation
// and auth failures are decided at the boundary before any upstream call;
// upstream failures are caught here and mapped onto the error taxonomy.
package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/questdeck/questdeck/internal/models"
	"github.com/questdeck/questdeck/internal/security"
	"github.com/questdeck/questdeck/internal/session"
	"github.com/questdeck/questdeck/internal/store"
	"github.com/questdeck/questdeck/internal/upstream"
)

const (
	maxBodyBytes       = 1 << 20 // 1MiB request bodies
	maxTranslateLength = 5000
)

var (
	symbolPattern = regexp.MustCompile(`^[A-Z0-9.^-]{1,12}$`)
	langPattern   = regexp.MustCompile(`^[a-z]{2}$`)
)

// Server holds the handlers' collaborators.
type Server struct {
	gate      *session.Gate
	profiles  store.ProfileStore
	news      *upstream.NewsClient
	stocks    *upstream.StockClient
	translate *upstream.TranslateClient
	digest    *upstream.DigestClient
}

// New creates the API server.
func New(gate *session.Gate, profiles store.ProfileStore, news *upstream.NewsClient, stocks *upstream.StockClient, translate *upstream.TranslateClient, digest *upstream.DigestClient) *Server {
	return &Server{
		gate:      gate,
		profiles:  profiles,
		news:      news,
		stocks:    stocks,
		translate: translate,
		digest:    digest,
	}
}

type authRequest struct {
	AccessCode string `json:"accessCode"`
}

type authResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HandleAuth verifies the access code and issues the session cookies. A
// wrong code is a normal 200 with success=false - the response never
// distinguishes "wrong code" from anything else an attacker could probe.
func (s *Server) HandleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if req.AccessCode == "" {
		writeError(r.Context(), w, validationError("Access code is required"))
		return
	}

	if !s.gate.Authenticate(req.AccessCode) {
		zerolog.Ctx(r.Context()).Warn().Msg("failed authentication attempt")
		writeJSON(w, http.StatusOK, authResponse{Success: false, Message: "Invalid access code"})
		return
	}

	s.gate.IssueCookies(w)
	zerolog.Ctx(r.Context()).Info().Msg("authentication successful")
	writeJSON(w, http.StatusOK, authResponse{Success: true, Message: "Authentication successful"})
}

// HandleNews proxies top headlines.
func (s *Server) HandleNews(w http.ResponseWriter, r *http.Request) {
	if !s.news.Configured() {
		writeError(r.Context(), w, &Error{Status: http.StatusInternalServerError, Message: "News API is not configured"})
		return
	}

	q := r.URL.Query()

	region := security.SanitizeInput(q.Get("region"), 5)
	if region == "" {
		region = "us"
	}
	lang := security.SanitizeInput(q.Get("lang"), 5)
	if lang == "" {
		lang = "en"
	}
	if !langPattern.MatchString(region) || !langPattern.MatchString(lang) {
		writeError(r.Context(), w, validationError("Invalid region or language"))
		return
	}

	max := 10
	if raw := q.Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			writeError(r.Context(), w, validationError("max must be between 1 and 50"))
			return
		}
		max = n
	}

	headlines, err := s.news.TopHeadlines(r.Context(), region, lang, max)
	if err != nil {
		writeError(r.Context(), w, mapError(err, "No headlines found"))
		return
	}
	writeJSON(w, http.StatusOK, headlines)
}

// HandleStockPrice returns the current quote for a symbol.
func (s *Server) HandleStockPrice(w http.ResponseWriter, r *http.Request) {
	symbol, apiErr := parseSymbol(r)
	if apiErr != nil {
		writeError(r.Context(), w, apiErr)
		return
	}

	quote, err := s.stocks.Price(r.Context(), symbol)
	if err != nil {
		writeError(r.Context(), w, mapError(err, "Price not found"))
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// HandleStockInfo returns instrument metadata for a symbol.
func (s *Server) HandleStockInfo(w http.ResponseWriter, r *http.Request) {
	symbol, apiErr := parseSymbol(r)
	if apiErr != nil {
		writeError(r.Context(), w, apiErr)
		return
	}

	info, err := s.stocks.Info(r.Context(), symbol)
	if err != nil {
		writeError(r.Context(), w, mapError(err, "Symbol information not found"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleStockHistory returns the open price for a symbol on a date, falling
// back across up to seven preceding days for markets closed on the
// requested day.
func (s *Server) HandleStockHistory(w http.ResponseWriter, r *http.Request) {
	symbol, apiErr := parseSymbol(r)
	if apiErr != nil {
		writeError(r.Context(), w, apiErr)
		return
	}

	rawDate := r.URL.Query().Get("date")
	if rawDate == "" {
		writeError(r.Context(), w, validationError("Symbol and date are required"))
		return
	}
	date, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		writeError(r.Context(), w, validationError("date must be YYYY-MM-DD"))
		return
	}

	price, err := s.stocks.HistoryOpen(r.Context(), symbol, date)
	if err != nil {
		writeError(r.Context(), w, mapError(err, "Historical price not found for any recent date"))
		return
	}
	writeJSON(w, http.StatusOK, price)
}

type translateRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"targetLang"`
}

// HandleTranslate translates text, best-effort: provider failures still
// return 200 with the original text and a warning.
func (s *Server) HandleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	text := security.SanitizeInput(req.Text, maxTranslateLength)
	if text == "" {
		writeError(r.Context(), w, validationError("Text is required for translation"))
		return
	}

	targetLang := req.TargetLang
	if targetLang == "" {
		targetLang = "en"
	}
	if !langPattern.MatchString(targetLang) {
		writeError(r.Context(), w, validationError("Invalid target language"))
		return
	}

	writeJSON(w, http.StatusOK, s.translate.Translate(r.Context(), text, targetLang))
}

// HandleUserDataGet loads the quest/XP profile scoped by the userId cookie.
func (s *Server) HandleUserDataGet(w http.ResponseWriter, r *http.Request) {
	userID := s.requestUserID(r)

	profile, err := s.profiles.Load(r.Context(), userID)
	if err != nil {
		writeError(r.Context(), w, mapError(err, "Profile not found"))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type saveResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

// HandleUserDataSave persists the profile. When the request has no userId
// cookie yet, the configured identity (or a freshly generated one) is
// issued alongside the save.
func (s *Server) HandleUserDataSave(w http.ResponseWriter, r *http.Request) {
	var profile models.UserProfile
	if err := decodeBody(w, r, &profile); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	userID := s.requestUserID(r)
	issued := false
	if _, err := r.Cookie(session.UserIDCookie); err != nil {
		if userID == "" || userID == "default" {
			userID = s.gate.UserID()
			if userID == "" {
				userID = security.GenerateSecureUserID()
			}
		}
		issued = true
	}

	if err := s.profiles.Save(r.Context(), userID, &profile); err != nil {
		writeError(r.Context(), w, mapError(err, "Profile not found"))
		return
	}

	if issued {
		s.gate.IssueUserID(w, userID)
	}
	writeJSON(w, http.StatusOK, saveResponse{Success: true, UserID: userID})
}

// HandleDigest fetches the configured RSS feeds and returns the grouped
// roundup.
func (s *Server) HandleDigest(w http.ResponseWriter, r *http.Request) {
	digest, err := s.digest.Build(r.Context())
	if err != nil {
		writeError(r.Context(), w, mapError(err, "No feed data available"))
		return
	}
	writeJSON(w, http.StatusOK, digest)
}

// requestUserID resolves the user identity for profile operations. Invalid
// cookie values fall back to "default" rather than erroring: the value
// still passes the store's own validation before touching the disk.
func (s *Server) requestUserID(r *http.Request) string {
	cookie, err := r.Cookie(session.UserIDCookie)
	if err != nil || !security.ValidateUserID(cookie.Value) {
		return "default"
	}
	return cookie.Value
}

func parseSymbol(r *http.Request) (string, *Error) {
	raw := security.SanitizeInput(r.URL.Query().Get("symbol"), 12)
	if raw == "" {
		return "", validationError("Symbol is required")
	}
	symbol := strings.ToUpper(raw)
	if !symbolPattern.MatchString(symbol) {
		return "", validationError("Invalid symbol format")
	}
	return symbol, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) *Error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return validationError("Invalid request body")
	}
	return nil
}
