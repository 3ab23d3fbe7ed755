package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/tomhardin/cardstack-api/ai"
	"github.com/tomhardin/cardstack-api/config"
	"github.com/tomhardin/cardstack-api/handlers"
	"github.com/tomhardin/cardstack-api/middleware"
)

func init() {
	// Load .env file if not in production environment
	if os.Getenv("RAILWAY_ENVIRONMENT_NAME") == "" {
		err := godotenv.Load()
		if err != nil {
			log.Printf("Warning: .env file not found, environment variables might not be loaded: %v", err)
		}
	}
}

func newGenerator() *ai.Generator {
	cfg := ai.ConfigFromEnv()
	if cfg == nil {
		log.Printf("Warning: AI_PROVIDER not set, card generation endpoints disabled")
		return nil
	}
	llm, err := ai.NewLLM(cfg)
	if err != nil {
		log.Printf("Warning: failed to initialize LLM provider %q, card generation disabled: %v", cfg.Provider, err)
		return nil
	}
	return ai.NewGenerator(llm)
}

func main() {
	// Initialize database connection
	config.Connect()
	authMiddleware := middleware.EnsureValidToken()

	DBHandler := &handlers.DBHandler{DB: config.Database, AI: newGenerator()}
	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/auth/signup", DBHandler.Signup)
	mux.HandleFunc("POST /api/auth/login", DBHandler.Login)
	mux.HandleFunc("POST /api/auth/logout", DBHandler.Logout)
	mux.HandleFunc("GET /api/auth/user", middleware.SyncUserMiddleware(DBHandler.GetCurrentUser))

	// Decks
	mux.HandleFunc("GET /api/decks", middleware.SyncUserMiddleware(DBHandler.GetDecks))
	mux.HandleFunc("POST /api/decks", middleware.SyncUserMiddleware(DBHandler.CreateDeck))
	mux.HandleFunc("GET /api/decks/{deckID}", DBHandler.GetDeckByID)
	mux.HandleFunc("PUT /api/decks/{deckID}", middleware.SyncUserMiddleware(DBHandler.UpdateDeckByID))
	mux.HandleFunc("DELETE /api/decks/{deckID}", middleware.SyncUserMiddleware(DBHandler.DeleteDeckByID))
	mux.HandleFunc("GET /api/decks/{deckID}/study", middleware.SyncUserMiddleware(DBHandler.GetStudyQueue))

	// Cards
	mux.HandleFunc("GET /api/decks/{deckID}/cards", DBHandler.GetCardsForDeck)
	mux.HandleFunc("POST /api/decks/{deckID}/cards", middleware.SyncUserMiddleware(DBHandler.CreateCard))
	mux.HandleFunc("GET /api/cards/{cardID}", DBHandler.GetCardByID)
	mux.HandleFunc("PUT /api/cards/{cardID}", middleware.SyncUserMiddleware(DBHandler.UpdateCardByID))
	mux.HandleFunc("DELETE /api/cards/{cardID}", middleware.SyncUserMiddleware(DBHandler.DeleteCardByID))

	// Card statistics
	mux.HandleFunc("GET /api/cards/{cardID}/stats", middleware.SyncUserMiddleware(DBHandler.GetCardStats))
	mux.HandleFunc("POST /api/cards/{cardID}/attempt", middleware.SyncUserMiddleware(DBHandler.RecordInteraction))
	mux.HandleFunc("POST /api/cards/{cardID}/flag", middleware.SyncUserMiddleware(DBHandler.ToggleFlag))

	// Study sessions. The beacon route skips user sync so navigator.sendBeacon
	// calls without credentials can still close out a session.
	mux.HandleFunc("POST /api/sessions/start", middleware.SyncUserMiddleware(DBHandler.StartSession))
	mux.HandleFunc("POST /api/sessions/{sessionID}/complete", middleware.SyncUserMiddleware(DBHandler.CompleteSession))
	mux.HandleFunc("POST /api/sessions/{sessionID}/beacon", DBHandler.BeaconCompleteSession)

	// Aggregated statistics
	mux.HandleFunc("GET /api/stats/deck/{deckID}", middleware.SyncUserMiddleware(DBHandler.GetDeckStats))
	mux.HandleFunc("GET /api/stats/user", middleware.SyncUserMiddleware(DBHandler.GetUserStats))

	// Sharing
	mux.HandleFunc("POST /api/decks/{deckID}/share", middleware.SyncUserMiddleware(DBHandler.CreateShareLink))
	mux.HandleFunc("GET /api/shared/saved", middleware.SyncUserMiddleware(DBHandler.ListSharedDecks))
	mux.HandleFunc("GET /api/shared/{token}", DBHandler.GetSharedDeck)
	mux.HandleFunc("POST /api/shared/{token}/save", middleware.SyncUserMiddleware(DBHandler.SaveSharedDeck))

	// Import / export
	mux.HandleFunc("GET /api/decks/{deckID}/export", middleware.SyncUserMiddleware(DBHandler.ExportDeck))
	mux.HandleFunc("POST /api/decks/import", middleware.SyncUserMiddleware(DBHandler.ImportDeck))

	// Uploads and AI generation
	mux.HandleFunc("POST /api/uploads", middleware.SyncUserMiddleware(DBHandler.CreateUpload))
	mux.HandleFunc("GET /api/uploads/{uploadID}", middleware.SyncUserMiddleware(DBHandler.GetUpload))
	mux.HandleFunc("POST /api/uploads/{uploadID}/process", middleware.SyncUserMiddleware(DBHandler.ProcessUpload))
	mux.HandleFunc("POST /api/generate", middleware.SyncUserMiddleware(DBHandler.GenerateFromNotes))

	// Configure CORS with specific options
	allowedOrigins := []string{"http://localhost:3000"}
	if config.Env.AppBaseURL != "" {
		allowedOrigins = append(allowedOrigins, config.Env.AppBaseURL)
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(authMiddleware(mux))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // fallback port for local development
	}
	serverAddr := "0.0.0.0:" + port

	log.Printf("listening on %s", serverAddr)
	http.ListenAndServe(serverAddr, corsHandler)
}
