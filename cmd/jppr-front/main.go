package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/alianzacap/jppr-front/internal"
	"github.com/alianzacap/jppr-front/internal/config"
	"github.com/alianzacap/jppr-front/internal/log"
)

var BuildVersion = "dev"

func main() {
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	flag.Parse()

	if *help {
		fmt.Println("jppr-front: authenticating gateway for the Puerto Rico property lookup tool server")
		fmt.Println()
		fmt.Println("Configuration is read from the environment:")
		fmt.Println("  JPPR_ADDR            listen address (default :8080)")
		fmt.Println("  JPPR_BASE_URL        externally visible base URL")
		fmt.Println("  JPPR_AUTH_MODE       oauth | m2m | oauth+m2m | bearer | none")
		fmt.Println("  IDP_DOMAIN           identity provider domain")
		fmt.Println("  IDP_CLIENT_ID        identity provider client id")
		fmt.Println("  IDP_CLIENT_SECRET    identity provider client secret")
		fmt.Println("  IDP_AUDIENCE         expected token audience")
		fmt.Println("  IDP_SCOPE            scopes requested from the provider")
		fmt.Println("  IDP_EXCHANGE_STYLE   json | form")
		fmt.Println("  JWT_SECRET           session token signing secret (32+ bytes)")
		fmt.Println("  BEARER_TOKEN         shared token for bearer mode")
		fmt.Println("  STORAGE              memory | redis")
		fmt.Println("  REDIS_ADDR           redis address for redis storage")
		fmt.Println("  MIPR_BASE_URL        upstream GIS service base URL")
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.LogError("Invalid configuration: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting jppr-front", map[string]any{
		"version": BuildVersion,
		"auth":    string(cfg.AuthMode),
	})

	app, err := internal.NewJPPRFront(context.Background(), &cfg, BuildVersion)
	if err != nil {
		log.LogError("Failed to build gateway: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Gateway exited with error: %v", err)
		os.Exit(1)
	}
}
