// Package apitest provides an in-process fake of the property-locator API
// for client and session tests. It issues real HS256 tokens, enforces
// bearer auth on protected endpoints, and counts requests per endpoint so
// tests can assert which calls were (or were not) made.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/proploc14/proploc/internal/apiclient"
)

const seedBcryptCost = bcrypt.MinCost // fast hashing for tests

// Server is a fake property-locator API backed by in-memory state.
type Server struct {
	httpSrv *httptest.Server
	secret  []byte

	// AccessTTL bounds freshly issued access tokens. Defaults to one hour.
	AccessTTL time.Duration

	mu         sync.Mutex
	users      map[string]*seedUser
	nextUserID int64
	properties map[int64]apiclient.Property
	nextPropID int64
	amenities  map[int64]apiclient.Amenity
	nextAmenID int64
	calls      map[string]int

	// failProfile makes that many upcoming profile requests return 500.
	failProfile int
}

type seedUser struct {
	id           int64
	username     string
	email        string
	passwordHash []byte
	isStaff      bool
	isOwner      bool
}

// New starts a fake API server. Callers must Close it.
func New() *Server {
	s := &Server{
		secret:     []byte("apitest-secret"),
		AccessTTL:  time.Hour,
		users:      make(map[string]*seedUser),
		properties: make(map[int64]apiclient.Property),
		amenities:  make(map[int64]apiclient.Amenity),
		calls:      make(map[string]int),
	}

	r := chi.NewRouter()
	r.Post("/api/auth/register/", s.handleRegister)
	r.Post("/api/auth/token/", s.handleToken)
	r.Post("/api/token/refresh/", s.handleRefresh)
	r.Get("/api/auth/profile/", s.requireAuth(s.handleProfile))
	r.Get("/api/auth/users/", s.requireAuth(s.handleListUsers))
	r.Delete("/api/auth/users/{id}/", s.requireAuth(s.handleDeleteUser))
	r.Get("/api/properties/", s.requireAuth(s.handleListProperties))
	r.Post("/api/properties/", s.requireAuth(s.handleCreateProperty))
	r.Get("/api/properties/{id}/", s.requireAuth(s.handleGetProperty))
	r.Delete("/api/properties/{id}/", s.requireAuth(s.handleDeleteProperty))
	r.Get("/api/amenities/", s.requireAuth(s.handleListAmenities))
	r.Post("/api/amenities/", s.requireAuth(s.handleCreateAmenity))
	r.Delete("/api/amenities/{id}/", s.requireAuth(s.handleDeleteAmenity))

	s.httpSrv = httptest.NewServer(r)
	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// BaseURL returns the API root, including the trailing /api/ segment.
func (s *Server) BaseURL() string {
	return s.httpSrv.URL + "/api/"
}

// Seed registers a user directly in the fake's state.
func (s *Server) Seed(username, email, password string, staff, owner bool) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), seedBcryptCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	s.users[username] = &seedUser{
		id:           s.nextUserID,
		username:     username,
		email:        email,
		passwordHash: hash,
		isStaff:      staff,
		isOwner:      owner,
	}
}

// SeedProperty adds a listing directly in the fake's state and returns it.
func (s *Server) SeedProperty(title, location, price, propertyType string) apiclient.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPropID++
	p := apiclient.Property{
		ID:           s.nextPropID,
		Title:        title,
		Location:     location,
		Price:        price,
		PropertyType: propertyType,
		Images:       []string{},
		CreatedAt:    time.Now().UTC(),
	}
	s.properties[p.ID] = p
	return p
}

// Calls returns how many requests hit the given method and path,
// e.g. "POST /api/auth/token/".
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// FailNextProfile makes the next n profile requests return 500.
func (s *Server) FailNextProfile(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failProfile = n
}

// IssueAccessToken mints an access token for a seeded user with the given
// time-to-live. Negative ttl produces an already-expired token.
func (s *Server) IssueAccessToken(username string, ttl time.Duration) string {
	return s.mint(username, "access", ttl)
}

// IssueRefreshToken mints a refresh token for a seeded user.
func (s *Server) IssueRefreshToken(username string) string {
	return s.mint(username, "refresh", 24*time.Hour)
}

func (s *Server) mint(username, typ string, ttl time.Duration) string {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": username,
		"typ": typ,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return tok
}

func (s *Server) parse(raw, wantType string) (string, bool) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", false
	}
	if typ, _ := claims["typ"].(string); typ != wantType {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	return sub, sub != ""
}

func (s *Server) count(r *http.Request) {
	s.mu.Lock()
	s.calls[r.Method+" "+r.URL.Path]++
	s.mu.Unlock()
}

func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, *seedUser)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.count(r)

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		username, ok := s.parse(raw, "access")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}

		s.mu.Lock()
		user := s.users[username]
		s.mu.Unlock()
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "User not found"})
			return
		}
		next(w, r, user)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.count(r)

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"This field is required."}})
		return
	}

	s.mu.Lock()
	_, exists := s.users[req.Username]
	s.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"A user with that username already exists."}})
		return
	}

	s.Seed(req.Username, req.Email, req.Password, false, false)
	writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username, "email": req.Email})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.count(r)

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request"})
		return
	}

	s.mu.Lock()
	user := s.users[req.Username]
	s.mu.Unlock()
	if user == nil || bcrypt.CompareHashAndPassword(user.passwordHash, []byte(req.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access":  s.IssueAccessToken(req.Username, s.AccessTTL),
		"refresh": s.IssueRefreshToken(req.Username),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.count(r)

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"refresh": {"This field is required."}})
		return
	}

	username, ok := s.parse(req.Refresh, "refresh")
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access": s.IssueAccessToken(username, s.AccessTTL),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user *seedUser) {
	s.mu.Lock()
	fail := s.failProfile > 0
	if fail {
		s.failProfile--
	}
	s.mu.Unlock()
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, profileOf(user))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, user *seedUser) {
	if !user.isStaff {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}

	s.mu.Lock()
	users := make([]apiclient.Profile, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, profileOf(u))
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, user *seedUser) {
	if !user.isStaff {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}

	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	for username, u := range s.users {
		if u.id == id {
			delete(s.users, username)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request, _ *seedUser) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wantType := r.URL.Query().Get("property_type")
	props := make([]apiclient.Property, 0, len(s.properties))
	for _, p := range s.properties {
		if wantType != "" && p.PropertyType != wantType {
			continue
		}
		props = append(props, p)
	}
	writeJSON(w, http.StatusOK, props)
}

func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request, user *seedUser) {
	var in apiclient.PropertyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPropID++
	owner := profileOf(user)
	p := apiclient.Property{
		ID:           s.nextPropID,
		Owner:        &owner,
		Title:        in.Title,
		Description:  in.Description,
		Price:        in.Price,
		Location:     in.Location,
		PropertyType: in.PropertyType,
		Images:       in.Images,
		CreatedAt:    time.Now().UTC(),
	}
	s.properties[p.ID] = p
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request, _ *seedUser) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	p, ok := s.properties[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request, user *seedUser) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.properties[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if !user.isStaff && (p.Owner == nil || p.Owner.Username != user.username) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	delete(s.properties, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAmenities(w http.ResponseWriter, r *http.Request, user *seedUser) {
	if !user.isStaff {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}

	s.mu.Lock()
	amenities := make([]apiclient.Amenity, 0, len(s.amenities))
	for _, a := range s.amenities {
		amenities = append(amenities, a)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, amenities)
}

func (s *Server) handleCreateAmenity(w http.ResponseWriter, r *http.Request, user *seedUser) {
	if !user.isStaff {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}

	var in apiclient.Amenity
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field is required."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAmenID++
	in.ID = s.nextAmenID
	s.amenities[in.ID] = in
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleDeleteAmenity(w http.ResponseWriter, r *http.Request, user *seedUser) {
	if !user.isStaff {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}

	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.amenities[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	delete(s.amenities, id)
	w.WriteHeader(http.StatusNoContent)
}

func profileOf(u *seedUser) apiclient.Profile {
	return apiclient.Profile{
		ID:              u.id,
		Username:        u.username,
		Email:           u.email,
		IsStaff:         u.isStaff,
		IsPropertyOwner: u.isOwner,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
