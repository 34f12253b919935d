// Command modeltest drives one scripted intake session against the model
// configured in the environment (or a .env file) and prints each turn.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/symptom-intake/cmd/mainconfig"
	"github.com/wolfman30/symptom-intake/internal/app/bootstrap"
	"github.com/wolfman30/symptom-intake/internal/catalog"
	appconfig "github.com/wolfman30/symptom-intake/internal/config"
	"github.com/wolfman30/symptom-intake/internal/observability/metrics"
	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

var defaultScript = []string{
	"hi, I've had a really bad headache since yesterday",
	"it started yesterday afternoon",
	"mostly behind my eyes, maybe a 7",
	"light makes it worse",
	"no",
	"1",
	"nothing else, thanks",
}

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load")
	flag.Parse()
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("no %s file found, using environment variables", *envFile)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}
	model, closeModel, err := bootstrap.BuildModel(ctx, cfg, awsCfg, metrics.NewIntakeMetrics(nil), logger)
	if err != nil {
		log.Fatalf("model: %v", err)
	}
	defer func() { _ = closeModel() }()
	if model == nil {
		log.Fatal("no model configured; set LLM_PROVIDER and its credentials")
	}

	rules, err := catalog.NewMemoryStore(nil)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	engine := triage.NewEngine(rules, logger,
		triage.WithModel(model),
		triage.WithModelTimeout(cfg.ModelTimeout),
		triage.WithMaxQuestions(cfg.MaxQuestionsPerSymptom),
	)

	script := defaultScript
	if flag.NArg() > 0 {
		script = flag.Args()
	}
	if err := run(ctx, engine, script); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, engine *triage.Engine, script []string) error {
	state, greeting := engine.Start("modeltest", "", "en")
	fmt.Printf("bot   [%s] %s\n", state.Step(), greeting.Message)
	for _, utterance := range script {
		fmt.Printf("user  %s\n", utterance)
		start := time.Now()
		res, err := engine.Handle(ctx, utterance, state)
		if err != nil {
			return fmt.Errorf("turn %q: %w", utterance, err)
		}
		state = res.State
		fmt.Printf("bot   [%s path=%s repair=%s failed=%v %s] %s\n",
			state.Step(), res.Path, res.RepairStage, res.ModelFailed,
			time.Since(start).Round(time.Millisecond), strings.ReplaceAll(res.Reply.Message, "\n", " "))
		if state.Step() == triage.StepCompleted {
			break
		}
	}
	if summary := state.Summary(); summary != nil {
		fmt.Printf("\nsummary: %s\nsuggestions: %s\npriority: %s emergency: %v\n",
			summary.Text, strings.Join(summary.DiagnosisSuggestions, ", "), state.Priority, state.Emergency)
	}
	return nil
}
