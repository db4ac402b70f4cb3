// Command harvestflow-repl runs a HarvestFlow conversation in the terminal.
// It keeps everything in process memory and talks to the real OpenAI API, so
// OPENAI_API_KEY must be set. Useful for trying out schedules and prompts
// without standing up the HTTP server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/harvestflow/harvestflow/internal/engine"
	"github.com/harvestflow/harvestflow/internal/genai"
	"github.com/harvestflow/harvestflow/internal/intent"
	"github.com/harvestflow/harvestflow/internal/models"
	"github.com/harvestflow/harvestflow/internal/schedule"
	"github.com/harvestflow/harvestflow/internal/summary"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	scheduleFile := flag.String("schedule-file", "", "JSON file overriding the built-in question schedules")
	model := flag.String("openai-model", "", "OpenAI model name (overrides $OPENAI_MODEL)")
	flag.Parse()

	schedules := schedule.Default()
	if *scheduleFile != "" {
		loaded, err := schedule.LoadFile(*scheduleFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load schedule file: %v\n", err)
			os.Exit(1)
		}
		schedules = loaded
	}

	var genaiOpts []genai.Option
	if *model == "" {
		*model = os.Getenv("OPENAI_MODEL")
	}
	if *model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*model))
	}
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize GenAI client: %v\n", err)
		os.Exit(1)
	}

	eng := engine.New(schedules, intent.NewResolver(client), summary.NewSummarizer(client))
	state := models.NewConversationState("repl")

	fmt.Println("HarvestFlow REPL. Describe what you want to sell or post.")
	fmt.Println("Commands: /reset clears the form, /quit exits.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		switch strings.TrimSpace(line) {
		case "/quit", "/exit":
			return
		case "/reset":
			eng.Reset(state, true)
			fmt.Println("Form cleared. Describe what you want to sell or post.")
			continue
		}

		result := eng.ProcessTurn(context.Background(), state, line)
		fmt.Println()
		fmt.Println(result.AssistantText)
		fmt.Println()

		if result.Done {
			// Roll straight into a fresh form so the session stays usable.
			eng.Reset(state, true)
			fmt.Println("(form complete; describe another item to start again)")
			fmt.Println()
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "input error: %v\n", err)
		os.Exit(1)
	}
}
