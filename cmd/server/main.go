// cmd/server/main.go
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Corphon/MoodboardPitch/internal/app"
	"github.com/Corphon/MoodboardPitch/internal/config"
	"github.com/Corphon/MoodboardPitch/internal/di"
)

func main() {
	log.Println("🚀 Démarrage de Moodboard → Pitch...")

	// 1. base configuration from env, .env and secrets.toml
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Chargement de la configuration impossible: %v", err)
	}
	log.Printf("✅ Configuration chargée, port: %s", baseConfig.Port)

	// 2. directories
	createDirectories(baseConfig)
	log.Println("✅ Répertoires prêts")

	// 3. settings, logs, services and router
	if err := app.Initialize(baseConfig.DataDir); err != nil {
		log.Fatalf("❌ Initialisation impossible: %v", err)
	}
	log.Printf("✅ Services initialisés: %d", len(di.GetContainer().GetNames()))

	if err := performHealthCheck(); err != nil {
		log.Printf("⚠️ Vérification des services: %v", err)
	}

	log.Printf("🔗 Interface: http://localhost:%s", baseConfig.Port)

	// 4. serve until SIGINT/SIGTERM
	if err := app.Run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("✅ Arrêt terminé")
}

func performHealthCheck() error {
	container := di.GetContainer()

	critical := []string{di.LLM, di.Pipeline, di.Projects, di.Export}
	for _, name := range critical {
		if !container.Has(name) {
			return fmt.Errorf("service critique non enregistré: %s", name)
		}
	}

	log.Println("✅ Services critiques enregistrés")
	return nil
}

// createDirectories creates the data, export and log folders.
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "projects"),
		filepath.Join(cfg.DataDir, "exports"),
		cfg.LogDir,
	}
	if cfg.StaticDir != "" {
		dirs = append(dirs, cfg.StaticDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("❌ Création du répertoire %s impossible: %v", dir, err)
		}
	}
}
