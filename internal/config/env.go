package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	UserID   string `envconfig:"USER_ID" default:"local"`
}

type APIEnv struct {
	BaseURL string `envconfig:"API_BASE_URL" default:"http://localhost:5000"`
	Token   string `envconfig:"API_TOKEN"`
}

type StubEnv struct {
	HTTPHost string `envconfig:"STUB_HTTP_HOST" default:""`
	HTTPPort string `envconfig:"STUB_HTTP_PORT" default:"5000"`
}

type SnapshotEnv struct {
	Dir string `envconfig:"SNAPSHOT_DIR" default:".flowboard"`
}

// ScrollEnv tunes the drag autoscroll. Both values are in terminal rows:
// how close to a column edge the pointer must hover before scrolling
// engages, and how many rows one frame advances at base speed.
type ScrollEnv struct {
	EdgeThreshold int `envconfig:"SCROLL_EDGE_THRESHOLD" default:"3"`
	BaseStep      int `envconfig:"SCROLL_BASE_STEP" default:"1"`
}

type Env struct {
	BaseEnv
	APIEnv
	StubEnv
	SnapshotEnv
	ScrollEnv
}

const namespace = "FLOWBOARD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
