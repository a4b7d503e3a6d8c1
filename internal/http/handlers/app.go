package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"server/internal/jobs"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Jobs        *jobs.Service
	Logger      zerolog.Logger
	Validator   *Validator
	WaitTimeout time.Duration
}

func NewApp(svc *jobs.Service, logger zerolog.Logger, waitTimeout time.Duration) *App {
	return &App{
		Jobs:        svc,
		Logger:      logger,
		Validator:   NewValidator(),
		WaitTimeout: waitTimeout,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}
