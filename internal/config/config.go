package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8080"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/gateway.db"`
	JWTSecret    string `envconfig:"JWT_SECRET" default:""`
	AdminSecret  string `envconfig:"ADMIN_SECRET" default:""`
	PlansPath    string `envconfig:"PLANS_PATH" default:""`

	// Processing engine settings
	EngineDir       string `envconfig:"ENGINE_DIR" default:"/app/engine"`
	EngineBinary    string `envconfig:"ENGINE_BINARY" default:"pdf-engine"`
	EnginePort      int    `envconfig:"ENGINE_PORT" default:"9090"`
	EngineBuildCmd  string `envconfig:"ENGINE_BUILD_CMD" default:"make build"`
	EngineSkipBuild bool   `envconfig:"ENGINE_SKIP_BUILD" default:"false"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("PDFGATE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
