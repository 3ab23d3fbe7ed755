package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/tomhardin/cardstack-api/auth"
	"github.com/tomhardin/cardstack-api/models"
)

// POST /api/auth/signup
func (db *DBHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}

	req.Nickname = strings.TrimSpace(req.Nickname)
	if req.Nickname == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Nickname and a password of at least 8 characters are required")
		return
	}

	var existing models.User
	if err := db.Where("nickname = ?", req.Nickname).First(&existing).Error; err == nil {
		writeError(w, http.StatusConflict, codeConflict, "Nickname already taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Signup: failed to hash password: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}

	user := models.User{
		Subject:      "local|" + req.Nickname,
		Nickname:     req.Nickname,
		PasswordHash: hash,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Printf("Signup: failed to create user %s: %v", req.Nickname, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create user")
		return
	}

	token, err := auth.CreateToken(user.Subject)
	if err != nil {
		log.Printf("Signup: token generation error: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to generate token")
		return
	}
	auth.SetSessionCookie(w, token)

	log.Printf("Signup: created user %s", user.Nickname)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": user})
}

// POST /api/auth/login
func (db *DBHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body")
		return
	}

	var user models.User
	if err := db.Where("nickname = ?", req.Nickname).First(&user).Error; err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid nickname or password")
		return
	}
	if user.PasswordHash == "" || auth.VerifyPassword(user.PasswordHash, req.Password) != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid nickname or password")
		return
	}

	token, err := auth.CreateToken(user.Subject)
	if err != nil {
		log.Printf("Login: token generation error: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to generate token")
		return
	}
	auth.SetSessionCookie(w, token)

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// POST /api/auth/logout
func (db *DBHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "success"})
}

// GET /api/auth/user
func (db *DBHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := db.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}
