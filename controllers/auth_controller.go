package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Frodemaneskold/greenup/services"
)

// AuthController handles the legacy shim's register, login and me endpoints.
type AuthController struct {
	Accounts *services.AccountService
	Tokens   *services.TokenService
	Log      *logrus.Logger
}

// NewAuthController creates a new instance of AuthController.
func NewAuthController(accounts *services.AccountService, tokens *services.TokenService, log *logrus.Logger) *AuthController {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuthController{Accounts: accounts, Tokens: tokens, Log: log}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account and returns it with a session token.
func (c *AuthController) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	account, err := c.Accounts.Register(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			http.Error(w, "Email already registered", http.StatusConflict)
			return
		}
		c.Log.WithError(err).Warn("register failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := c.Tokens.Issue(account)
	if err != nil {
		c.Log.WithError(err).Error("token issue failed")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":   token,
		"account": account,
	})
}

// Login exchanges credentials for a session token.
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	identifier := req.Email
	if identifier == "" {
		identifier = req.Username
	}
	account, err := c.Accounts.Authenticate(r.Context(), identifier, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		c.Log.WithError(err).Error("login failed")
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}

	token, err := c.Tokens.Issue(account)
	if err != nil {
		c.Log.WithError(err).Error("token issue failed")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":   token,
		"account": account,
	})
}

// Me returns the account behind the bearer token.
func (c *AuthController) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := c.Authenticate(w, r)
	if !ok {
		return
	}

	account, err := c.Accounts.GetAccount(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, services.ErrItemNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		c.Log.WithError(err).Error("account lookup failed")
		http.Error(w, "Failed to fetch account", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"account": account,
	})
}

// Authenticate parses the bearer token, writing a 401 on failure. Other
// controllers reuse it for their protected endpoints.
func (c *AuthController) Authenticate(w http.ResponseWriter, r *http.Request) (*services.Claims, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		http.Error(w, "Missing bearer token", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := c.Tokens.Parse(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}
