// cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Corphon/MoodboardPitch/internal/app"
	"github.com/Corphon/MoodboardPitch/internal/config"
	"github.com/Corphon/MoodboardPitch/internal/di"
	"github.com/Corphon/MoodboardPitch/internal/drive"
	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/services"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

const cliBoxMaxWidth = 90

var stdin = bufio.NewScanner(os.Stdin)

func main() {
	fmt.Println("🚀 Moodboard → Pitch, console")
	fmt.Println("==============================")

	baseConfig, err := config.Load()
	if err != nil {
		log.Printf("❌ Chargement de la configuration impossible: %v", err)
		return
	}

	logFile := filepath.Join(baseConfig.LogDir, fmt.Sprintf("console_%s.log", time.Now().Format("2006-01-02")))
	if err := utils.InitLogger(logFile); err != nil {
		log.Printf("⚠️ Journal structuré indisponible: %v", err)
	}
	defer utils.GetLogger().Close()

	if err := initializeEnvironment(baseConfig); err != nil {
		log.Printf("❌ %v", err)
		return
	}

	var last *models.GenerationResult
	for {
		showMenu()
		switch getUserInput("Choix : ") {
		case "1", "llm":
			configureLLM()
		case "2", "auth":
			authorizeDrive()
		case "3", "drive":
			last = generate(models.SourceDrive, last)
		case "4", "links":
			last = generate(models.SourceLinks, last)
		case "5", "refine":
			last = refine(last)
		case "6", "save":
			saveResult(last)
		case "7", "projects":
			manageProjects()
		case "8", "status":
			displayServiceStatus()
		case "0", "quit", "exit":
			fmt.Println("👋 À bientôt")
			return
		default:
			fmt.Println("❓ Choix invalide")
		}
		fmt.Println()
	}
}

func showMenu() {
	printBox("Menu", strings.Join([]string{
		"1. Configurer la clé Gemini",
		"2. Autoriser l'accès Google Drive (OAuth)",
		"3. Générer depuis un dossier Drive",
		"4. Générer depuis des liens d'images",
		"5. Affiner le dernier pitch",
		"6. Sauvegarder le dernier résultat",
		"7. Projets sauvegardés",
		"8. État des services",
		"0. Quitter",
	}, "\n"))
}

func getUserInput(prompt string) string {
	fmt.Print(prompt)
	if !stdin.Scan() {
		return "0"
	}
	return strings.TrimSpace(stdin.Text())
}

func getUserInputWithDefault(prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	if !stdin.Scan() {
		return defaultValue
	}
	if input := strings.TrimSpace(stdin.Text()); input != "" {
		return input
	}
	return defaultValue
}

// chooseOption lists options and returns the picked one, or def on blank input.
func chooseOption(label string, options []string, def string) string {
	fmt.Println(label)
	for i, opt := range options {
		fmt.Printf("  %d. %s\n", i+1, opt)
	}
	input := getUserInputWithDefault("Numéro", def)
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return def
}

func initializeEnvironment(cfg *config.Config) error {
	fmt.Println("🔧 Initialisation...")
	for _, dir := range []string{cfg.DataDir, filepath.Join(cfg.DataDir, "exports"), cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("création du répertoire %s: %w", dir, err)
		}
	}
	if err := config.InitConfig(cfg.DataDir); err != nil {
		return fmt.Errorf("initialisation de la configuration: %w", err)
	}
	if err := app.InitServices(); err != nil {
		return fmt.Errorf("initialisation des services: %w", err)
	}
	fmt.Println("✅ Services prêts")
	return nil
}

func mustResolve[T any](name string) T {
	service, err := di.Resolve[T](di.GetContainer(), name)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	return service
}

func configureLLM() {
	llmService := mustResolve[*services.LLMService](di.LLM)
	cfg := config.GetCurrentConfig()

	key := getUserInput("Clé API Gemini : ")
	if key == "" {
		fmt.Println("⚠️ Clé vide, configuration inchangée")
		return
	}
	model := getUserInputWithDefault("Modèle", cfg.Analyzer.NarrativeModel)

	llmConfig := map[string]string{"api_key": key, "default_model": model}
	if err := llmService.UpdateProvider("gemini", llmConfig); err != nil {
		fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
		return
	}
	if err := config.UpdateLLMConfig("gemini", llmConfig); err != nil {
		fmt.Printf("⚠️ Configuration appliquée mais non persistée: %v\n", err)
		return
	}
	fmt.Println("✅ Gemini configuré")
}

// authorizeDrive runs the desktop OAuth flow and stores the token next to
// the credentials file. The token is used on the next start.
func authorizeDrive() {
	cfg := config.GetCurrentConfig()
	oauthConfig, err := drive.LoadOAuthConfig(cfg.CredentialsFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		fmt.Printf("   Téléchargez le fichier client OAuth dans %s\n", cfg.CredentialsFile)
		return
	}

	fmt.Println("Ouvrez ce lien, autorisez l'accès puis collez le code :")
	fmt.Println(drive.AuthCodeURL(oauthConfig))
	code := getUserInput("Code : ")
	if code == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := drive.Exchange(ctx, oauthConfig, code, cfg.TokenFile, cfg.TokenSecret); err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}
	fmt.Printf("✅ Jeton enregistré dans %s, relancez la console pour l'utiliser\n", cfg.TokenFile)
}

func readCreativeContext() models.CreativeContext {
	return models.CreativeContext{
		Brief:    getUserInputWithDefault("Brief (facultatif)", ""),
		Format:   chooseOption("Format :", models.Formats, models.Formats[0]),
		Duration: chooseOption("Durée :", models.Durations, models.Durations[0]),
		Tone:     chooseOption("Ton :", models.Tones, models.Tones[0]),
	}
}

func generate(source string, previous *models.GenerationResult) *models.GenerationResult {
	pipeline := mustResolve[*services.PipelineService](di.Pipeline)

	req := models.GenerationRequest{Source: source}
	switch source {
	case models.SourceDrive:
		req.FolderURL = getUserInput("Lien du dossier Drive : ")
	case models.SourceLinks:
		fmt.Println("Collez les liens (ligne vide pour terminer) :")
		var lines []string
		for {
			line := getUserInput("")
			if line == "" || line == "0" {
				break
			}
			lines = append(lines, line)
		}
		req.Links = strings.Join(lines, "\n")
	}
	req.Context = readCreativeContext()

	taskID, err := pipeline.Start(req)
	if err != nil {
		fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
		return previous
	}

	tracker, ok := pipeline.Progress.GetTracker(taskID)
	if !ok {
		fmt.Println("❌ Tâche introuvable")
		return previous
	}
	final := followProgress(tracker)
	if final.Status != services.StatusCompleted {
		fmt.Printf("❌ %s\n", final.Message)
		return previous
	}

	result, err := pipeline.Result(taskID)
	if err != nil {
		fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
		return previous
	}
	showNarrative(result.Narrative)
	offerExports(result)
	return result
}

// followProgress prints updates until the task ends and returns the last one.
func followProgress(tracker *services.ProgressTracker) services.ProgressUpdate {
	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	last := tracker.Snapshot()
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return tracker.Snapshot()
			}
			last = update
			fmt.Printf("\r⏳ %3d%% %-60s", update.Progress, truncate(update.Message, 60))
			if update.Status != services.StatusRunning {
				fmt.Println()
				return last
			}
		case <-tracker.Done:
			fmt.Println()
			return tracker.Snapshot()
		}
	}
}

func showNarrative(n models.Narrative) {
	printBox("🎬 Pitch", n.Pitch)
	printBox("📋 Séquencier", n.Sequencer)
	printBox("🎥 Découpage technique", n.Decoupage)
	if n.Treatment != "" {
		printBox("📝 Traitement", n.Treatment)
	}
}

func offerExports(result *models.GenerationResult) {
	exports := mustResolve[*services.ExportService](di.Export)
	cfg := config.GetCurrentConfig()

	switch getUserInputWithDefault("Exporter ? (pdf/md/non)", "non") {
	case "pdf":
		title := getUserInputWithDefault("Titre", "Pitch Moodboard")
		res, err := exports.ExportPDF(title, result.Narrative, result.Images)
		if err != nil {
			fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
			return
		}
		fmt.Printf("✅ %s (%d octets)\n", filepath.Join(cfg.DataDir, "exports", res.Filename), res.Size())
	case "md", "markdown":
		res := exports.ExportMarkdown(result.Narrative)
		fmt.Printf("✅ %s\n", filepath.Join(cfg.DataDir, "exports", res.Filename))
	}
}

func refine(result *models.GenerationResult) *models.GenerationResult {
	if result == nil {
		fmt.Println("⚠️ Aucun pitch généré dans cette session")
		return nil
	}
	refiner := services.NewPitchRefiner(mustResolve[*services.NarrativeService](di.Narrative))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var (
		pitch string
		err   error
	)
	switch getUserInputWithDefault("Affiner le ton ou ajouter des références ? (ton/refs)", "ton") {
	case "refs":
		refs := strings.Split(getUserInput("Références (séparées par des virgules) : "), ",")
		pitch, err = refiner.AddReferences(ctx, result.Narrative.Pitch, refs)
	default:
		tone := chooseOption("Nouveau ton :", models.Tones, result.Request.Context.Tone)
		pitch, err = refiner.RefineForTone(ctx, result.Narrative.Pitch, tone)
		if err == nil {
			result.Request.Context.Tone = tone
		}
	}
	if err != nil {
		fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
		return result
	}
	result.Narrative.Pitch = pitch
	printBox("🎬 Pitch affiné", pitch)
	return result
}

func saveResult(result *models.GenerationResult) {
	if result == nil {
		fmt.Println("⚠️ Rien à sauvegarder")
		return
	}
	projects := mustResolve[*services.ProjectService](di.Projects)
	name := getUserInput("Nom du projet : ")

	p, err := projects.Save(context.Background(), name, result.ProjectData())
	if err != nil {
		fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
		return
	}
	fmt.Printf("💾 Projet sauvegardé: %s (%s)\n", p.Name, p.ID)
}

func manageProjects() {
	projects := mustResolve[*services.ProjectService](di.Projects)
	ctx := context.Background()

	list, err := projects.List(ctx)
	if err != nil {
		fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
		return
	}
	if len(list) == 0 {
		fmt.Println("📂 Aucun projet sauvegardé")
		return
	}
	for i, p := range list {
		fmt.Printf("  %d. %s  (%s, %s)\n", i+1, p.Name, p.UpdatedAt.Format("2006-01-02 15:04"), p.ID)
	}

	n, err := strconv.Atoi(getUserInput("Numéro du projet (vide pour revenir) : "))
	if err != nil || n < 1 || n > len(list) {
		return
	}
	id := list[n-1].ID

	switch getUserInputWithDefault("Action (voir/exporter/supprimer)", "voir") {
	case "voir":
		p, err := projects.Load(ctx, id)
		if err != nil {
			fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
			return
		}
		showNarrative(models.Narrative{
			Pitch:     p.Data.Pitch,
			Sequencer: p.Data.Sequencer,
			Decoupage: p.Data.Decoupage,
			Treatment: p.Data.Treatment,
		})
	case "exporter":
		format := getUserInputWithDefault("Format (json/md/pdf)", "md")
		res, err := projects.Export(ctx, id, format)
		if err != nil {
			fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
			return
		}
		fmt.Printf("✅ %s\n", filepath.Join(config.GetCurrentConfig().DataDir, "exports", res.Filename))
	case "supprimer":
		if err := projects.Delete(ctx, id); err != nil {
			fmt.Printf("❌ %s\n", apperrors.MessageOf(err))
			return
		}
		fmt.Println("🗑️ Projet supprimé")
	}
}

func displayServiceStatus() {
	cfg := config.GetCurrentConfig()
	llmService := mustResolve[*services.LLMService](di.LLM)
	ready, state := llmService.GetProviderStatus()

	printBox("État", strings.Join([]string{
		fmt.Sprintf("LLM : %s (%s, prêt=%v)", llmService.GetProviderName(), state, ready),
		fmt.Sprintf("Modèle : %s", llmService.GetDefaultModel()),
		fmt.Sprintf("Vision : %s", cfg.Analyzer.VisionModel),
		fmt.Sprintf("Projets : %s", cfg.Storage.ProjectStore),
		fmt.Sprintf("Données : %s", cfg.DataDir),
		fmt.Sprintf("Services : %s", strings.Join(di.GetContainer().GetNames(), ", ")),
	}, "\n"))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func printBox(title, content string) {
	wrappedLines := wrapContentForBox(content, cliBoxMaxWidth)
	maxWidth := utf8.RuneCountInString(title)
	for _, line := range wrappedLines {
		if w := utf8.RuneCountInString(line); w > maxWidth {
			maxWidth = w
		}
	}
	border := strings.Repeat("─", maxWidth+2)
	fmt.Println("┌" + border + "┐")
	if title != "" {
		fmt.Printf("│ %s │\n", padRight(title, maxWidth))
		fmt.Println("├" + border + "┤")
	}
	if len(wrappedLines) == 0 {
		wrappedLines = []string{""}
	}
	for _, line := range wrappedLines {
		fmt.Printf("│ %s │\n", padRight(line, maxWidth))
	}
	fmt.Println("└" + border + "┘")
}

func wrapContentForBox(content string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{content}
	}
	var result []string
	for _, rawLine := range strings.Split(content, "\n") {
		runes := []rune(strings.TrimRight(rawLine, " "))
		for len(runes) > maxWidth {
			result = append(result, string(runes[:maxWidth]))
			runes = runes[maxWidth:]
		}
		result = append(result, string(runes))
	}
	return result
}

func padRight(text string, width int) string {
	current := utf8.RuneCountInString(text)
	if current >= width {
		return text
	}
	return text + strings.Repeat(" ", width-current)
}
