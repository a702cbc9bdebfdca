// Package main implements the pulsekit-smoke diagnostic binary. It
// initializes the SDK against a collector endpoint, emits one event of
// each category and shuts down cleanly, exercising the full pipeline.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/pulsekit/pulsekit"
	"github.com/pulsekit/pulsekit/pkg/types"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML or JSON config file")
		gameKey    = flag.String("game-key", "", "Game key (32 characters)")
		gameSecret = flag.String("game-secret", "", "Game secret (40 characters)")
		runFor     = flag.Duration("run-for", 10*time.Second, "How long to keep the queue running before quitting")
	)
	flag.Parse()

	if *gameKey == "" || *gameSecret == "" {
		log.Fatalf("both -game-key and -game-secret are required")
	}

	cfg := pulsekit.DefaultConfig()
	if *configPath != "" {
		loaded, err := pulsekit.LoadConfigFromFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	pulsekit.LoadConfigFromEnv(cfg)

	log.Printf("Starting pulsekit-smoke...")
	log.Printf("Collector: %s", cfg.BaseURL())
	log.Printf("Writable path: %s", cfg.WritablePath)

	client, err := pulsekit.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	client.ConfigureBuild("smoke 0.1")
	client.ConfigureAvailableResourceCurrencies([]string{"gems", "gold"})
	client.ConfigureAvailableResourceItemTypes([]string{"boost", "chest"})
	client.ConfigureAvailableCustomDimensions01([]string{"smoke"})

	client.AddRemoteConfigsListener(func(configs map[string]any) {
		log.Printf("Remote configs updated: %d key(s)", len(configs))
	})

	client.Initialize(*gameKey, *gameSecret)
	client.SetCustomDimension01("smoke")

	client.AddDesignEvent("smoke:design:event", 1, true, nil)
	client.AddBusinessEvent("USD", 99, "pack", "starter", "shop", nil)
	client.AddResourceEvent(types.FlowSource, "gems", 10, "chest", "daily", nil)
	client.AddProgressionEvent(types.ProgressionStart, "world01", "level01", "", 0, false, nil)
	client.AddProgressionEvent(types.ProgressionComplete, "world01", "level01", "", 100, true, nil)
	client.AddErrorEvent(types.SeverityInfo, "smoke test error event", nil)
	client.AddLevelEvent(types.LevelStart, 1, "intro", 0, nil)

	log.Printf("Events queued, running for %s...", *runFor)
	time.Sleep(*runFor)

	log.Printf("Session id: %s", client.GetSessionID())
	log.Printf("User id: %s", client.GetUserID())
	log.Printf("Remote configs ready: %t", client.IsRemoteConfigsReady())

	client.OnQuit()
	log.Printf("pulsekit-smoke stopped")
}
