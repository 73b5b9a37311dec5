package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/formvault/formvault/internal/api"
	dbstore "github.com/formvault/formvault/internal/db"
	"github.com/formvault/formvault/internal/middleware"
	"github.com/formvault/formvault/internal/utils"
)

func main() {
	addr := utils.SafeEnv("FORMVAULT_ADDR", ":8080")
	commit := os.Getenv("FORMVAULT_COMMIT")
	buildTime := os.Getenv("FORMVAULT_BUILD_TIME")

	store, err := openStore(os.Getenv("FORMVAULT_SQLITE_PATH"))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	mux := http.NewServeMux()
	api.NewRouterWithStore(store).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "FormVault API",
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

	handler := middleware.SecureHeaders(middleware.CORS(middleware.WithAuth(mux)))

	log.Printf("FormVault server listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStore returns the SQLite-backed store when FORMVAULT_SQLITE_PATH is
// set, otherwise an in-memory store suitable for development.
func openStore(sqlitePath string) (api.Store, error) {
	if sqlitePath == "" {
		log.Printf("FORMVAULT_SQLITE_PATH not set, using in-memory store")
		return api.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(sqlitePath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := dbstore.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return dbstore.NewStore(db)
}
