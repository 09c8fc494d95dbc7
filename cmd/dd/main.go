package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deliberation/internal/app"
	"deliberation/internal/config"
	"deliberation/internal/db"
	"deliberation/internal/domain"
	"deliberation/internal/engine"
	"deliberation/internal/logging"
	"deliberation/internal/notify"
	"deliberation/internal/repo"
	"deliberation/internal/server"
	"deliberation/internal/snapshot"
	"deliberation/internal/vector"
)

var rootCmd = &cobra.Command{
	Use:   "dd",
	Short: "Deliberation CLI",
	Long: `Deliberation runs a cooperative resource-allocation game.
- Characters hold Time, Money and Labor.
- Projects need an exact amount of each and change the shared metrics (Environment, Economy, Welfare) when they succeed.
- A settlement pools contributions from several characters: too little or too much is rejected and nothing changes; an exact match deducts every contribution, applies the project outcome and completes the project.
- Event log: everything that changed, view with 'dd log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DELIB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor identifier recorded on events")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(characterCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(settleCmd())
	rootCmd.AddCommand(scoreboardCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and seed the scenario",
		Long:  "Seeds from deliberation.yml in the workspace when present, otherwise from the built-in five character scenario. An already seeded workspace is left as is.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				chars, err := ws.Engine.Repo.ListCharacters(ctx)
				if err != nil {
					return err
				}
				projects, err := ws.Engine.Repo.ListProjects(ctx, repo.StatusAll)
				if err != nil {
					return err
				}
				summary := map[string]any{
					"workspace":  ws.Dir,
					"simulation": ws.Config.Simulation.Name,
					"characters": len(chars),
					"projects":   len(projects),
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				fmt.Printf("Workspace %s ready: %d characters, %d projects\n", ws.Dir, len(chars), len(projects))
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Scenario file helpers",
		Long:  "The scenario (deliberation.yml) lists characters with starting resources, projects with requirements and outcomes, initial metric values and webhooks.",
	}
	cfg.AddCommand(configDefaultCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "Print the built-in scenario as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace scenario file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Look up a character by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				c, err := ws.Engine.Repo.GetCharacterByName(ctx, strings.TrimSpace(name))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("Logged in as %s (%s). Use --actor-id %s.\n", c.Name, c.ID, c.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "character name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func characterCmd() *cobra.Command {
	c := &cobra.Command{Use: "character", Short: "Inspect characters"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List characters and balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListCharacters(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Time", "Money", "Labor", "Interests"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Resources.Time, c.Resources.Money, c.Resources.Labor, c.Interests})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ch, err := ws.Engine.Repo.GetCharacter(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(ch)
			})
		},
	})
	return c
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Inspect projects"}
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListProjects(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Requires", "Outcome", "Done"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, vector.FormatResources(p.Requirement()), vector.FormatOutcome(p.Outcome()), p.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", repo.StatusOpen, "open, completed or all")
	prj.AddCommand(list)
	prj.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})
	return prj
}

func settleCmd() *cobra.Command {
	var projectID string
	var contribute []string
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Propose pooled contributions for a project",
		Example: `  dd settle --project project-1 \
    --contribute "character-1=Time: 1, Money: 1" \
    --contribute "character-5=Time: 1"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			contributions, err := parseContributions(contribute)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.Settle(ctx, engine.SettleRequest{
					ProjectID:     projectID,
					ActorID:       viper.GetString("actor-id"),
					Contributions: contributions,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %s\n", res.Verdict, res.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringArrayVar(&contribute, "contribute", nil, `contribution as character-id="Time: 1, Money: 2" (repeatable)`)
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

// parseContributions reads id=spec pairs; a character named twice has its
// amounts summed.
func parseContributions(items []string) (engine.Contributions, error) {
	out := engine.Contributions{}
	for _, item := range items {
		id, spec, ok := strings.Cut(item, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid --contribute %q: want character-id=spec", item)
		}
		sum, clamped := out[id].AddChecked(vector.ParseResources(spec))
		if clamped {
			return nil, fmt.Errorf("invalid --contribute %q: total for %s is out of range", item, id)
		}
		out[id] = sum
	}
	return out, nil
}

func scoreboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scoreboard",
		Short: "Show metric values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListMetrics(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Metric", "Value"})
				for _, m := range items {
					tw.AppendRow(table.Row{vector.Title(m.Kind), m.Value})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed settlements, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListSettlements(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"When", "Project", "Contributors", "Total", "Outcome"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.CreatedAt, s.ProjectID, contributorList(s), vector.FormatResources(s.Total), formatOutcome(s.Outcome)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows, 0 for all")
	return cmd
}

func contributorList(s domain.Settlement) string {
	ids := make([]string, 0, len(s.Contributions))
	for id := range s.Contributions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}

func formatOutcome(m map[string]int) string {
	o := vector.Outcome{}
	for k, v := range m {
		o[vector.Metric(k)] = v
	}
	return vector.FormatOutcome(o)
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every seeding, settlement, deduction, metric change and snapshot restore.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				events, err := ws.Engine.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				for _, evt := range events {
					fmt.Printf("%s %-28s %s/%s by %s %s\n", evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID, evt.Payload)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func snapshotCmd() *cobra.Command {
	snap := &cobra.Command{
		Use:   "snapshot",
		Short: "Save or restore balances, completion flags and metrics",
	}
	snap.AddCommand(&cobra.Command{
		Use:   "save <file>",
		Short: "Write a zstd compressed snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				st, err := ws.Engine.Capture(ctx, ws.Config.Simulation.Name)
				if err != nil {
					return err
				}
				if err := snapshot.WriteFile(args[0], st); err != nil {
					return err
				}
				fmt.Printf("Saved %d characters, %d projects, %d metrics to %s\n", len(st.Characters), len(st.Projects), len(st.Metrics), args[0])
				return nil
			})
		},
	})
	snap.AddCommand(&cobra.Command{
		Use:   "restore <file>",
		Short: "Restore a snapshot written by save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := snapshot.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Engine.Restore(ctx, st, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("Restored snapshot taken at %s\n", st.Header.TakenAt)
				return nil
			})
		},
	})
	return snap
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.ParseEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				env.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				env.BasePath = basePath
			}
			logger, err := logging.New(env.LogLevel, env.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ws, err := app.Open(cmd.Context(), viper.GetString("workspace"), viper.GetString("actor-id"), logger)
			if err != nil {
				return err
			}
			defer ws.Close()

			hub := notify.NewHub(logger.Named("ws"))
			ws.Engine.Notify = hub
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: env.BasePath, Realtime: hub, Logger: logger.Named("http")})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: env.Addr, Handler: handler}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				logger.Info("serving", zap.String("addr", env.Addr), zap.String("base_path", env.BasePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				hub.Close()
				sctx, cancel := context.WithTimeout(context.Background(), env.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			if d := notify.NewDispatcher(ws.Engine.Repo, ws.Config.Notify.Webhooks, logger.Named("webhook")); d != nil {
				g.Go(func() error { return d.Run(ctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides DELIB_ADDR)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (overrides DELIB_BASE_PATH)")
	return cmd
}

// withWorkspace opens the workspace with a logger built from the
// environment. Settlement warnings go to stderr.
func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	env, err := config.ParseEnv()
	if err != nil {
		return err
	}
	logger, err := logging.New(env.LogLevel, env.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()
	ws, err := app.Open(ctx, viper.GetString("workspace"), viper.GetString("actor-id"), logger)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
