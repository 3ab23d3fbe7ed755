package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/tomhardin/cardstack-api/config"
	"github.com/tomhardin/cardstack-api/models"
	"github.com/tomhardin/cardstack-api/utils"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

type contextKey string

// SyncUserMiddleware ensures the authenticated identity has a users row and
// attaches it to the request context. Auth0 identities are created on first
// sight; local identities must already exist from signup.
func SyncUserMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, ok := utils.GetSubject(r)
		if !ok || subject == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		nickname := ""
		if claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims); ok {
			if customClaims, ok := claims.CustomClaims.(*CustomClaims); ok && customClaims != nil {
				nickname = customClaims.Nickname
			}
		}

		var user models.User
		result := config.Database.Where("subject = ?", subject).First(&user)

		if result.Error != nil {
			if strings.HasPrefix(subject, "local|") {
				// Local accounts are created at signup; a missing row means
				// the cookie outlived the account.
				http.Error(w, "User not found", http.StatusUnauthorized)
				return
			}
			if nickname == "" {
				nickname = subject
			}
			user = models.User{
				Subject:  subject,
				Nickname: nickname,
			}
			createResult := config.Database.Create(&user)
			if createResult.Error != nil {
				http.Error(w, "Failed to create user", http.StatusInternalServerError)
				log.Println("Database creation error:", createResult.Error)
				return
			}
			log.Printf("Created new user: %s\n", user.Nickname)
		} else {
			// User exists, update nickname only if non-empty and changed
			if nickname != "" && user.Nickname != nickname {
				user.Nickname = nickname
				saveResult := config.Database.Save(&user)
				if saveResult.Error != nil {
					http.Error(w, "Failed to update user", http.StatusInternalServerError)
					log.Println("Database update error:", saveResult.Error)
					return
				}
				log.Printf("Updated user nickname: %s\n", user.Nickname)
			}
		}

		// Add user to context for downstream handlers
		ctx := context.WithValue(r.Context(), contextKey("user"), &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
