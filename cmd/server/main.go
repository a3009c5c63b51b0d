package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/ProbeAI/internal/api"
	"github.com/soaringjerry/ProbeAI/internal/db"
	"github.com/soaringjerry/ProbeAI/internal/llm"
	"github.com/soaringjerry/ProbeAI/internal/middleware"
	"github.com/soaringjerry/ProbeAI/internal/realtime"
	"github.com/soaringjerry/ProbeAI/internal/services"
	"github.com/soaringjerry/ProbeAI/internal/utils"
)

func main() {
	_ = godotenv.Load()

	addr := utils.SafeEnv("PROBE_ADDR", ":8080")
	commit := os.Getenv("PROBE_COMMIT")
	buildTime := os.Getenv("PROBE_BUILD_TIME")

	store := openStore()
	judge := openJudge()
	hub := realtime.NewHub()

	mux := http.NewServeMux()
	api.NewRouter(store, judge, hub).Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "ProbeAI API",
			"commit":     commit,
			"build_time": buildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	// Serve the built frontend when PROBE_STATIC_DIR is set (fullstack image).
	if staticDir := os.Getenv("PROBE_STATIC_DIR"); staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	handler := middleware.NoStore(middleware.CORS(middleware.WithAuth(mux)))

	log.Printf("ProbeAI server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStore prefers sqlite when PROBE_DB_PATH is set and falls back to the
// in-memory store for quick local runs.
func openStore() api.Store {
	dbPath := os.Getenv("PROBE_DB_PATH")
	if dbPath == "" {
		log.Printf("PROBE_DB_PATH not set; using in-memory store (data is lost on restart)")
		return api.NewMemoryStore()
	}
	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		log.Fatalf("open sqlite %s: %v", dbPath, err)
	}
	if err := db.RunMigrations(conn, os.Getenv("PROBE_MIGRATIONS_DIR")); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	store, err := db.NewStore(conn)
	if err != nil {
		log.Fatalf("init sqlite store: %v", err)
	}
	log.Printf("sqlite store ready at %s", dbPath)
	return store
}

// openJudge wires the Gemini follow-up judge when an API key is configured.
// Without one the interview engine still runs, it just never probes.
func openJudge() services.FollowUpJudge {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Printf("GEMINI_API_KEY not set; follow-up probes disabled")
		return nil
	}
	judge, err := llm.NewGeminiJudge(context.Background(), apiKey, utils.SafeEnv("GEMINI_MODEL", llm.DefaultModel))
	if err != nil {
		log.Printf("init gemini judge: %v; follow-up probes disabled", err)
		return nil
	}
	return judge
}
