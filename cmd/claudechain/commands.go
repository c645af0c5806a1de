package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/claudechain/claudechain/internal/batch"
	"github.com/claudechain/claudechain/internal/config"
	"github.com/claudechain/claudechain/internal/domain"
	"github.com/claudechain/claudechain/internal/event"
	"github.com/claudechain/claudechain/internal/execlog"
	"github.com/claudechain/claudechain/internal/executor"
	"github.com/claudechain/claudechain/internal/ghaction"
	"github.com/claudechain/claudechain/internal/hooks"
	"github.com/claudechain/claudechain/internal/notify"
	"github.com/claudechain/claudechain/internal/observer"
	"github.com/claudechain/claudechain/internal/pipeline"
	"github.com/claudechain/claudechain/internal/runstore"
	"github.com/spf13/cobra"
)

var (
	scriptStage    string
	scriptProject  string
	parseKind      string
	notifyProject  string
	notifyTask     string
	notifyPRNumber int
	notifyPRURL    string
	notifyError    string
	notifyRunURL   string
	runProject     string
	historyProject string
	historyStatus  string
	historyLimit   int
	scheduleFile   string
	pollInterval   time.Duration
)

func init() {
	// parse-event command
	parseEventCmd := &cobra.Command{
		Use:   "parse-event",
		Short: "Resolve the triggering GitHub event into run context",
		RunE:  runParseEvent,
	}
	rootCmd.AddCommand(parseEventCmd)

	// run-script command
	runScriptCmd := &cobra.Command{
		Use:   "run-script",
		Short: "Run a project action script if one exists",
		RunE:  runRunScript,
	}
	runScriptCmd.Flags().StringVar(&scriptStage, "stage", "", "script stage: pre-action or post-action")
	runScriptCmd.Flags().StringVar(&scriptProject, "project", "", "project name")
	runScriptCmd.MarkFlagRequired("stage")
	runScriptCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(runScriptCmd)

	// parse-result command
	parseResultCmd := &cobra.Command{
		Use:   "parse-result FILE",
		Short: "Parse an execution log into a pass/fail outcome",
		Args:  cobra.ExactArgs(1),
		RunE:  runParseResult,
	}
	parseResultCmd.Flags().StringVar(&parseKind, "kind", "main", "result schema: main or summary")
	rootCmd.AddCommand(parseResultCmd)

	// notify command
	notifyCmd := &cobra.Command{
		Use:   "notify KIND",
		Short: "Send a success or error notification",
		Args:  cobra.ExactArgs(1),
		RunE:  runNotify,
	}
	notifyCmd.Flags().StringVar(&notifyProject, "project", "", "project name")
	notifyCmd.Flags().StringVar(&notifyTask, "task", "", "task description")
	notifyCmd.Flags().IntVar(&notifyPRNumber, "pr-number", 0, "pull request number")
	notifyCmd.Flags().StringVar(&notifyPRURL, "pr-url", "", "pull request URL")
	notifyCmd.Flags().StringVar(&notifyError, "error", "", "error message")
	notifyCmd.Flags().StringVar(&notifyRunURL, "run-url", "", "link to the hosting run")
	rootCmd.AddCommand(notifyCmd)

	// run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full pipeline for one event",
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runProject, "project", "", "run this project directly instead of resolving an event")
	rootCmd.AddCommand(runCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch project spec files and run changed projects",
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run projects on their cron schedules",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().StringVar(&scheduleFile, "file", "schedule.toml", "schedule config file")
	scheduleCmd.Flags().DurationVar(&pollInterval, "poll", time.Minute, "schedule poll interval")
	rootCmd.AddCommand(scheduleCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().StringVar(&historyProject, "project", "", "filter by project")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(historyCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// gitChangedFiles lists files changed between two revisions in the
// current repository, mirroring the GitHub compare API.
func gitChangedFiles(base, head string) ([]string, error) {
	out, err := exec.Command("git", "diff", "--name-only", base, head).Output()
	if err != nil {
		return nil, fmt.Errorf("git diff %s %s: %w", base, head, err)
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// hostingRunURL builds the link back to the GitHub Actions run, when
// the standard runner environment is present.
func hostingRunURL() string {
	server := os.Getenv("GITHUB_SERVER_URL")
	repo := os.Getenv("GITHUB_REPOSITORY")
	runID := os.Getenv("GITHUB_RUN_ID")
	if server == "" || repo == "" || runID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/actions/runs/%s", server, repo, runID)
}

func eventInput(cfg *config.Config) (event.Input, error) {
	in := event.Input{
		EventName:         os.Getenv("GITHUB_EVENT_NAME"),
		ProjectName:       os.Getenv("PROJECT_NAME"),
		DefaultBaseBranch: cfg.General.DefaultBaseBranch,
		ProjectPath:       cfg.General.ProjectPath,
		ChangedFiles:      gitChangedFiles,
	}
	if in.EventName == "" {
		in.EventName = os.Getenv("EVENT_NAME")
	}
	if path := os.Getenv("GITHUB_EVENT_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return in, fmt.Errorf("reading event payload: %w", err)
		}
		in.EventJSON = data
	} else if raw := os.Getenv("EVENT_JSON"); raw != "" {
		in.EventJSON = []byte(raw)
	}
	return in, nil
}

func runParseEvent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	gh := ghaction.New()

	in, err := eventInput(cfg)
	if err != nil {
		gh.SetError(err.Error())
		return err
	}

	ctx, err := event.Resolve(in)
	if err != nil {
		gh.SetError(err.Error())
		return err
	}

	gh.WriteOutput("skip", strconv.FormatBool(ctx.Skip))
	if ctx.Skip {
		gh.WriteOutput("skip_reason", ctx.SkipReason)
		gh.SetNotice(fmt.Sprintf("Skipping run: %s", ctx.SkipReason))
		return nil
	}

	gh.WriteOutput("project_name", ctx.ProjectName)
	gh.WriteOutput("checkout_ref", ctx.TriggerRef)
	gh.WriteOutput("base_branch", ctx.ResolvedBaseBranch)
	if ctx.MergeTargetBranch != "" {
		gh.WriteOutput("merge_target_branch", ctx.MergeTargetBranch)
	}
	if ctx.MergedPRNumber > 0 {
		gh.WriteOutput("merged_pr_number", strconv.Itoa(ctx.MergedPRNumber))
	}

	fmt.Printf("Resolved %s event: project=%s base=%s ref=%s\n",
		ctx.EventName, ctx.ProjectName, ctx.ResolvedBaseBranch, ctx.TriggerRef)
	return nil
}

func runRunScript(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stage := domain.HookStage(scriptStage)
	if stage != domain.HookPreAction && stage != domain.HookPostAction {
		return fmt.Errorf("unknown stage %q (want pre-action or post-action)", scriptStage)
	}

	gh := ghaction.New()
	projectDir := filepath.Join(cfg.General.ProjectPath, scriptProject)
	workingDir := cfg.General.WorkingDirectory
	if workingDir == "" {
		workingDir = "."
	}

	runner := &hooks.Runner{Stdout: os.Stdout}
	result, err := runner.RunStage(cmd.Context(), projectDir, workingDir, stage)
	if err != nil {
		gh.SetError(err.Error())
		return err
	}

	gh.WriteOutput("success", strconv.FormatBool(result.Success))
	if !result.Success {
		msg := fmt.Sprintf("%s script exited %d", stage, result.ExitCode)
		gh.SetError(msg)
		return errors.New(msg)
	}
	return nil
}

func runParseResult(cmd *cobra.Command, args []string) error {
	kind := domain.TaskKind(parseKind)
	if kind != domain.TaskMain && kind != domain.TaskSummary {
		return fmt.Errorf("unknown kind %q (want main or summary)", parseKind)
	}

	outcome := execlog.ParseFile(args[0], kind)

	gh := ghaction.New()
	gh.WriteOutput("success", strconv.FormatBool(outcome.Success))
	gh.WriteOutput("error_message", outcome.ErrorMessage)
	gh.WriteOutput("summary", outcome.Summary)
	gh.WriteOutput("total_cost_usd", strconv.FormatFloat(outcome.Cost.TotalCostUSD, 'f', 6, 64))
	gh.WriteOutput("input_tokens", strconv.Itoa(outcome.Cost.InputTokens))
	gh.WriteOutput("output_tokens", strconv.Itoa(outcome.Cost.OutputTokens))

	if !outcome.Success {
		gh.SetError(outcome.ErrorMessage)
		return fmt.Errorf("task failed: %s", outcome.ErrorMessage)
	}
	return nil
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	run := &domain.Run{
		ProjectName: notifyProject,
		Task:        notifyTask,
	}

	switch args[0] {
	case "success":
		return dispatcher.NotifySuccess(run, notify.PRInfo{Number: notifyPRNumber, URL: notifyPRURL})
	case "error":
		runURL := notifyRunURL
		if runURL == "" {
			runURL = hostingRunURL()
		}
		return dispatcher.NotifyError(run, notifyError, runURL)
	default:
		return fmt.Errorf("unknown notification kind %q (want success or error)", args[0])
	}
}

func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, *runstore.Store, error) {
	var store *runstore.Store
	if cfg.General.DatabasePath != "" {
		var err error
		store, err = runstore.New(config.ExpandPath(cfg.General.DatabasePath))
		if err != nil {
			return nil, nil, err
		}
	}

	p := &pipeline.Pipeline{
		Config:     cfg,
		Hooks:      &hooks.Runner{Stdout: os.Stdout},
		Executor:   &executor.ClaudeExecutor{Log: os.Stdout},
		Dispatcher: notify.NewDispatcher(notify.NewSlackNotifier(cfg.Notifications.SlackWebhook)),
		RunURL:     hostingRunURL(),
		Log:        os.Stdout,
	}
	if store != nil {
		p.Store = store
	}
	return p, store, nil
}

func resolveOrDirect(cfg *config.Config) (*domain.EventContext, error) {
	if runProject != "" {
		return &domain.EventContext{
			EventName:          "workflow_dispatch",
			ProjectName:        runProject,
			ResolvedBaseBranch: cfg.General.DefaultBaseBranch,
		}, nil
	}
	in, err := eventInput(cfg)
	if err != nil {
		return nil, err
	}
	return event.Resolve(in)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	evt, err := resolveOrDirect(cfg)
	if err != nil {
		return err
	}
	if evt.ResolvedBaseBranch == "" {
		evt.ResolvedBaseBranch = domain.DefaultBaseBranch
	}

	p, store, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	run, err := p.Run(cmd.Context(), evt)
	if err != nil {
		return err
	}
	if run.Status == domain.RunSkipped {
		fmt.Printf("Skipped: %s\n", run.ErrorMessage)
	} else {
		fmt.Printf("Run %s finished: %s\n", run.ID, run.Status)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, store, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	watcher, err := observer.NewSpecWatcher(cfg.General.ProjectPath, func(project string, files []string) {
		fmt.Printf("Spec change in %s (%d files), starting run\n", project, len(files))
		evt := &domain.EventContext{
			EventName:          "spec-watch",
			ProjectName:        project,
			ResolvedBaseBranch: cfg.General.DefaultBaseBranch,
		}
		if evt.ResolvedBaseBranch == "" {
			evt.ResolvedBaseBranch = domain.DefaultBaseBranch
		}
		if _, err := p.Run(ctx, evt); err != nil {
			fmt.Printf("Warning: run for %s failed: %v\n", project, err)
		}
	})
	if err != nil {
		return err
	}
	defer watcher.Stop()

	watcher.Start(ctx)
	fmt.Printf("Watching %s for spec changes (Ctrl-C to stop)\n", cfg.General.ProjectPath)
	<-ctx.Done()
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	schedCfg, err := batch.LoadScheduleConfig(scheduleFile)
	if err != nil {
		return err
	}
	if len(schedCfg.Schedules) == 0 {
		return fmt.Errorf("no schedules configured in %s", scheduleFile)
	}

	sched, err := batch.NewScheduler(schedCfg.Schedules)
	if err != nil {
		return err
	}

	p, store, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		sched.Stop()
	}()

	for _, project := range sched.ListProjects() {
		fmt.Printf("  %s\n", sched.Describe(project))
	}

	sched.Poll(pollInterval, func(project string, entry batch.ScheduleEntry) {
		runCtx, runCancel := context.WithTimeout(ctx, entry.MaxDuration)
		defer runCancel()

		for i := 0; i < entry.MaxTasks; i++ {
			evt := &domain.EventContext{
				EventName:          "schedule",
				ProjectName:        project,
				ResolvedBaseBranch: cfg.General.DefaultBaseBranch,
			}
			if evt.ResolvedBaseBranch == "" {
				evt.ResolvedBaseBranch = domain.DefaultBaseBranch
			}
			run, err := p.Run(runCtx, evt)
			if err != nil {
				fmt.Printf("Warning: scheduled run for %s failed: %v\n", project, err)
				return
			}
			if run.Status == domain.RunSkipped {
				return
			}
		}
	})
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.General.DatabasePath == "" {
		return fmt.Errorf("database_path not configured")
	}

	store, err := runstore.New(config.ExpandPath(cfg.General.DatabasePath))
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListOptions{
		Project: historyProject,
		Status:  domain.RunStatus(historyStatus),
		Limit:   historyLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROJECT\tTASK\tSTATUS\tDURATION\tCOST\tPR")
	for _, r := range runs {
		pr := "-"
		if r.PRURL != "" {
			pr = fmt.Sprintf("#%d", r.PRNumber)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t$%.4f\t%s\n",
			shortID(r.ID), r.ProjectName, truncate(r.Task, 40), r.Status,
			r.Duration().Round(time.Second), r.CostUSD, pr)
	}
	w.Flush()

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
