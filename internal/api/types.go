package api

import (
	"time"

	"github.com/samcharles93/proteintune/internal/config"
)

type ResponseError struct {
	Message    string      `json:"message,omitempty"`
	Type       string      `json:"type,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

type Violation struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status     string    `json:"status"`
	ConfigPath string    `json:"config_path"`
	Stage      string    `json:"stage"`
	LoadedAt   time.Time `json:"loaded_at"`
}

type StageResponse struct {
	Stage              config.Stage       `json:"stage"`
	Name               string             `json:"name"`
	Declared           bool               `json:"declared"`
	Flags              config.FreezeFlags `json:"flags"`
	FreezeStrEncoder   bool               `json:"freeze_str_encoder"`
	EffectiveBatchSize int                `json:"effective_batch_size"`
}

type ReloadResponse struct {
	Status     string    `json:"status"`
	Stage      string    `json:"stage"`
	ReloadedAt time.Time `json:"reloaded_at"`
}
