package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// account is one seeded or registered login.
type account struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`

	pwdHash []byte
	company bool
}

// stub is the in-memory API state. All maps are guarded by mu; this is a
// development fixture, not a production service.
type stub struct {
	mu       sync.Mutex
	accounts map[string]*account // keyed by email
	sessions map[string]string   // refresh token -> email
	nextID   int64

	signKey   []byte
	accessTTL time.Duration
	log       *zap.Logger
}

func newStub(signKey []byte, accessTTL time.Duration, log *zap.Logger) *stub {
	s := &stub{
		accounts:  map[string]*account{},
		sessions:  map[string]string{},
		nextID:    1,
		signKey:   signKey,
		accessTTL: accessTTL,
		log:       log,
	}
	// Seeded logins for quick manual testing.
	s.seed("Ana", "ana@example.com", "secret1", "", "", false)
	s.seed("Bistro", "bistro@example.com", "secret1", "+40 700 000 000", "Str. Centrala 5", true)
	return s
}

func (s *stub) seed(name, email, password, phone, address string, company bool) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	s.accounts[email] = &account{
		ID:      s.nextID,
		Name:    name,
		Email:   email,
		Phone:   phone,
		Address: address,
		pwdHash: hash,
		company: company,
	}
	s.nextID++
}

func (s *stub) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/auth/login", s.handleLogin(false)).Methods(http.MethodPost)
	r.HandleFunc("/auth/company-login", s.handleLogin(true)).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", s.handleRegister(false)).Methods(http.MethodPost)
	r.HandleFunc("/auth/company-register", s.handleRegister(true)).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", s.handleMe(false)).Methods(http.MethodGet)
	r.HandleFunc("/auth/company-me", s.handleMe(true)).Methods(http.MethodGet)

	r.HandleFunc("/ai/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/ai/chat/suggestions", s.handleSuggestions).Methods(http.MethodGet)
	r.HandleFunc("/ai/recommend", s.handleRecommend).Methods(http.MethodPost)
	r.HandleFunc("/restaurants/details/{id:[0-9]+}", s.handleRestaurant).Methods(http.MethodGet)
	r.HandleFunc("/events/details/{id:[0-9]+}", s.handleEvent).Methods(http.MethodGet)
	return r
}

// --- response helpers (standardized error envelope) ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, map[string]any{
		"error":     true,
		"message":   message,
		"type":      errType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// --- auth handlers ---

func (s *stub) issueTokens(email string) (access, refresh string, err error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	access, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return "", "", err
	}
	rid, err := uuid.NewV4()
	if err != nil {
		return "", "", err
	}
	refresh = rid.String()
	s.sessions[refresh] = email
	return access, refresh, nil
}

func (s *stub) authResponse(a *account) (map[string]any, error) {
	access, refresh, err := s.issueTokens(a.Email)
	if err != nil {
		return nil, err
	}
	resp := map[string]any{
		"accessToken":  access,
		"refreshToken": refresh,
	}
	if a.company {
		resp["company"] = a
	} else {
		resp["user"] = a
	}
	return resp, nil
}

func (s *stub) handleLogin(company bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			Email    string `json:"Email"`
			Password string `json:"Password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "ValidationError")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		a := s.accounts[creds.Email]
		if a == nil || a.company != company ||
			bcrypt.CompareHashAndPassword(a.pwdHash, []byte(creds.Password)) != nil {
			writeError(w, http.StatusUnauthorized, "invalid email or password", "AuthError")
			return
		}
		resp, err := s.authResponse(a)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "token issue failed", "ServerError")
			return
		}
		s.log.Info("login", zap.String("email", creds.Email), zap.Bool("company", company))
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *stub) handleRegister(company bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg struct {
			Name     string `json:"Name"`
			Email    string `json:"Email"`
			Password string `json:"Password"`
			Phone    string `json:"Phone"`
			Address  string `json:"Address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "ValidationError")
			return
		}
		if reg.Name == "" || reg.Email == "" || reg.Password == "" {
			writeError(w, http.StatusBadRequest, "name, email and password are required", "ValidationError")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.accounts[reg.Email]; exists {
			writeError(w, http.StatusConflict, "email already registered", "ValidationError")
			return
		}
		s.seed(reg.Name, reg.Email, reg.Password, reg.Phone, reg.Address, company)
		resp, err := s.authResponse(s.accounts[reg.Email])
		if err != nil {
			writeError(w, http.StatusInternalServerError, "token issue failed", "ServerError")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *stub) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken required", "ValidationError")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.sessions[body.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "refresh token invalid or expired", "AuthError")
		return
	}
	// Rotation: the presented token is spent.
	delete(s.sessions, body.RefreshToken)
	access, refresh, err := s.issueTokens(email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed", "ServerError")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func (s *stub) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	delete(s.sessions, body.RefreshToken)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// bearerAccount resolves the Authorization header to an account.
func (s *stub) bearerAccount(r *http.Request) (*account, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		return nil, errors.New("missing bearer token")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.signKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[claims.Subject]
	if a == nil {
		return nil, errors.New("unknown account")
	}
	return a, nil
}

func (s *stub) handleMe(company bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := s.bearerAccount(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token", "AuthError")
			return
		}
		if a.company != company {
			writeError(w, http.StatusForbidden, "wrong account type", "AuthError")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// --- assistant / catalog handlers (canned data) ---

type stubRestaurant struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Address     string   `json:"address"`
	Description string   `json:"description"`
	Rating      float64  `json:"rating"`
	Tags        []string `json:"tags"`
}

type stubEvent struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Location string `json:"location"`
	Category string `json:"category"`
}

var stubRestaurants = []stubRestaurant{
	{ID: 1, Name: "Trattoria Roma", Category: "italian", Address: "Str. Veche 12", Description: "Wood-fired pizza and fresh pasta", Rating: 4.6, Tags: []string{"pizza", "pasta"}},
	{ID: 2, Name: "Casa Romaneasca", Category: "romanian", Address: "Bd. Unirii 3", Description: "Traditional local dishes", Rating: 4.4, Tags: []string{"sarmale", "mici"}},
	{ID: 3, Name: "Sakura", Category: "japanese", Address: "Str. Florilor 8", Description: "Sushi and ramen", Rating: 4.8, Tags: []string{"sushi", "ramen"}},
}

var stubEvents = []stubEvent{
	{ID: 1, Title: "Wine Tasting Night", Date: "2026-09-12", Location: "Trattoria Roma", Category: "tasting"},
	{ID: 2, Title: "Street Food Festival", Date: "2026-09-20", Location: "Parcul Central", Category: "festival"},
}

func (s *stub) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Query) == "" {
		writeError(w, http.StatusBadRequest, "query cannot be empty", "ValidationError")
		return
	}
	matches := matchRestaurants(body.Query)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"response":    fmt.Sprintf("Found %d places matching %q.", len(matches), body.Query),
		"restaurants": matches,
	})
}

func (s *stub) handleSuggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"suggestions": []map[string]any{
			{"id": 1, "text": "Recommend an italian restaurant", "category": "restaurant", "icon": "🍝"},
			{"id": 2, "text": "I want pizza", "category": "food", "icon": "🍕"},
			{"id": 3, "text": "What events are on this weekend?", "category": "events", "icon": "🎉"},
		},
	})
}

func (s *stub) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Query) == "" {
		writeError(w, http.StatusBadRequest, "query cannot be empty", "ValidationError")
		return
	}
	matches := matchRestaurants(body.Query)
	if body.Limit > 0 && body.Limit < len(matches) {
		matches = matches[:body.Limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"response":    fmt.Sprintf("%d recommendations for %q.", len(matches), body.Query),
		"restaurants": matches,
	})
}

func matchRestaurants(query string) []stubRestaurant {
	q := strings.ToLower(query)
	var out []stubRestaurant
	for _, r := range stubRestaurants {
		if strings.Contains(strings.ToLower(r.Name), q) ||
			strings.Contains(r.Category, q) ||
			containsTag(r.Tags, q) {
			out = append(out, r)
		}
	}
	if out == nil {
		out = []stubRestaurant{}
	}
	return out
}

func containsTag(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(q, t) || strings.Contains(t, q) {
			return true
		}
	}
	return false
}

func (s *stub) handleRestaurant(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	for _, rest := range stubRestaurants {
		if rest.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "restaurant": rest})
			return
		}
	}
	writeError(w, http.StatusNotFound, "restaurant not found", "NotFound")
}

func (s *stub) handleEvent(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	for _, ev := range stubEvents {
		if ev.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "event": ev})
			return
		}
	}
	writeError(w, http.StatusNotFound, "event not found", "NotFound")
}
