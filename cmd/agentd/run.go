package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/dispatch"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/history"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/infra"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/llm"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/pipeline"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/repository/memory"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/repository/sqlite"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an agent from a YAML file once and print the execution log",
		Long: `Loads agents from YAML files into memory and runs the first one.
Other files are available as agent destinations. The run is recorded into a local SQLite history.`,
		Args: cobra.NoArgs,
		RunE: runAgent,
	}
	cmd.Flags().StringArray("agent", nil, "agent YAML file (repeatable, the first one is run)")
	cmd.Flags().StringArray("input", nil, "static input key=value (repeatable)")
	cmd.Flags().String("event", "", "event type; when set the trigger decides whether the agent runs")
	cmd.Flags().String("source-id", "", "source entity id of the event / target record id")
	cmd.Flags().String("history", "agentd.db", "SQLite file for execution history")
	cmd.Flags().Bool("echo", false, "use an offline model that echoes the prompt")
	cmd.Flags().Bool("dry-run", false, "simulate database and agent destinations")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func runAgent(cmd *cobra.Command, _ []string) error {
	files, _ := cmd.Flags().GetStringArray("agent")
	rawInputs, _ := cmd.Flags().GetStringArray("input")
	eventType, _ := cmd.Flags().GetString("event")
	sourceID, _ := cmd.Flags().GetString("source-id")
	historyPath, _ := cmd.Flags().GetString("history")
	echo, _ := cmd.Flags().GetBool("echo")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Logger.Format = "console"
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	inputs, err := parseInputs(rawInputs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo := memory.NewAgentRepo()
	var target *domain.Agent
	for i, path := range files {
		a, err := memory.LoadAgentFile(path)
		if err != nil {
			return err
		}
		if dryRun {
			a.DryRun = true
		}
		if err := repo.Save(ctx, a); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if i == 0 {
			target = a
		}
	}

	store, err := sqlite.NewHistoryRepo(historyPath)
	if err != nil {
		return err
	}
	defer store.Close()
	recorder := history.NewRecorder(store, logger, history.Options{})
	recorder.Start()

	metrics := pipeline.NewMetrics(nil)
	var model llm.Provider = echoModel()
	if !echo {
		if cfg.LLM.APIKey == "" {
			recorder.Stop()
			return errors.New("llm.api_key (LLM_API_KEY) is required, or pass --echo")
		}
		model = buildModel(cfg, metrics)
	}

	runner := pipeline.NewRunner(pipeline.Deps{
		Model:      model,
		Dispatcher: dispatch.New(nil, nil, nil, logger),
		Notifier:   buildNotifier(cfg, logger),
		Agents:     repo,
		History:    recorder,
		Metrics:    metrics,
		Logger:     logger,
	})

	req := pipeline.RunRequest{Inputs: inputs, Manual: eventType == "", SourceRecordID: sourceID}
	if eventType != "" {
		req.Event = &domain.TriggerEvent{
			Type:         eventType,
			SourceEntity: domain.SourceEntity{Type: "task", ID: sourceID},
			Payload:      inputs,
		}
	}
	execLog, err := runner.Run(ctx, target, req)
	// Stop дожидается записи журнала в SQLite
	recorder.Stop()
	if err != nil {
		return err
	}

	logger.Info("run finished",
		zap.String("agent_id", execLog.AgentID),
		zap.String("run_id", execLog.ID),
		zap.String("status", string(execLog.Status)))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(execLog)
}

func parseInputs(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --input %q, expected key=value", kv)
		}
		out[k] = v
	}
	return out, nil
}
