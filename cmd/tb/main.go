package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/app"
	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/engine/auth"
	"taskboard/internal/logging"
	"taskboard/internal/server"
	"taskboard/internal/ui"
	taskboardsdk "taskboard/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Taskboard CLI",
	Long: `Taskboard is a small to-do widget: add a task, click it to start it, click
again to archive it, and click the archived task to delete it.

- serve hosts the HTML widget at / and the JSON API under /v0.
- tui runs the same board in the terminal.
- page, log and export talk to a running server.

Boards live only as long as their page; nothing is kept across restarts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return app.LoadEnv(".env")
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultFile, "config file (.yml or .toml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "server URL for page commands")
	rootCmd.PersistentFlags().String("token", "", "page token when the server requires one")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tuiCmd())
	rootCmd.AddCommand(pageCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads the config file and applies env and flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("journal-dsn"); v != "" {
		cfg.Journal.DSN = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetString("base-path"); v != "" {
		cfg.Server.BasePath = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTML widget and the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			rt, err := app.Open(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.Close()
			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{Tokens: auth.Tokens{Secret: cfg.Auth.JWTSecret, TTL: cfg.Pages.IdleTTL}},
				Logger:   rt.Logger,
			})
			if err != nil {
				return err
			}
			go rt.Engine.Run(ctx)
			go server.NewWebhookDispatcher(rt.Engine.Repo, cfg.Webhooks, rt.Logger).Run(ctx)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				rt.Logger.Info("shutting down")
				srv.Shutdown(shutdownCtx)
			}()
			rt.Logger.Info("serving", "widget", "http://"+cfg.Server.Addr+"/", "api", "http://"+cfg.Server.Addr+cfg.Server.BasePath,
				"docs", "http://"+cfg.Server.Addr+"/docs", "auth", cfg.Auth.JWTSecret != "")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base-path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run a board in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Logs would corrupt the alternate screen, so they only go to a file when asked.
			logOut := io.Discard
			if path := os.Getenv("TASKBOARD_TUI_LOG"); path != "" {
				f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				logOut = f
			}
			logger, err := logging.New(logOut, cfg.Log)
			if err != nil {
				return err
			}
			return ui.Run(cmd.Context(), board.New(board.WithLogger(logger)), cfg.Labels)
		},
	}
}

func newClient() *taskboardsdk.Client {
	c := taskboardsdk.New(viper.GetString("server"))
	if bp := viper.GetString("base-path"); bp != "" {
		c.BasePath = bp
	}
	c.Token = viper.GetString("token")
	return c
}

func pageCmd() *cobra.Command {
	pg := &cobra.Command{Use: "page", Short: "Drive pages on a running server"}
	pg.AddCommand(pageOpenCmd())
	pg.AddCommand(pageListCmd())
	pg.AddCommand(pageShowCmd())
	pg.AddCommand(pageCloseCmd())
	pg.AddCommand(pageAddCmd())
	pg.AddCommand(pageClickCmd())
	pg.AddCommand(pageAdvanceCmd())
	pg.AddCommand(pageToggleCmd())
	return pg
}

func pageOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open a page with an empty board",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newClient().OpenPage(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(p)
			}
			fmt.Println(p.ID)
			if p.Token != "" {
				fmt.Println("token:", p.Token)
			}
			return nil
		},
	}
}

func pageListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := newClient().ListPages(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Opened", "Last seen", "Tasks"})
			for _, p := range items {
				tw.AppendRow(table.Row{p.ID, p.OpenedAt.Format(time.RFC3339), p.LastSeen.Format(time.RFC3339), p.Tasks})
			}
			tw.Render()
			return nil
		},
	}
}

func pageShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <page-id>",
		Short: "Show a page's board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newClient().GetPage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printPage(p)
		},
	}
}

func pageCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <page-id>",
		Short: "Close a page and discard its board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().ClosePage(cmd.Context(), args[0])
		},
	}
}

func pageAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <page-id> <text>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().AddTask(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return printChange(res)
		},
	}
}

func pageClickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "click <page-id> <region> [task-id]",
		Short: "Click a region, or a task inside a list region",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := ""
			if len(args) == 3 {
				taskID = args[2]
			}
			res, err := newClient().Click(cmd.Context(), args[0], args[1], taskID)
			if err != nil {
				return err
			}
			return printChange(res)
		},
	}
}

func pageAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <page-id> <task-id>",
		Short: "Click a task wherever it is shown",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().Advance(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printChange(res)
		},
	}
}

func pageToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <page-id>",
		Short: "Open or close the entry form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().ToggleForm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printChange(res)
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Read a page's journal"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, cursor string
	cmd := &cobra.Command{
		Use:   "tail <page-id>",
		Short: "Tail journal entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := newClient().EventsPage(cmd.Context(), args[0], n, evtType, cursor)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(page)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Time", "Type", "Task", "Stage"})
			for _, e := range page.Items {
				tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.TaskID, e.Stage})
			}
			tw.Render()
			if page.NextCursor != "" {
				fmt.Println("more: --cursor", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue from a previous listing")
	return cmd
}

func exportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <page-id>",
		Short: "Download a board as json, csv or pdf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().Export(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json, csv or pdf")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect and create configuration"}
	cfgCmd.AddCommand(configShowCmd())
	cfgCmd.AddCommand(configValidateCmd())
	cfgCmd.AddCommand(configInitCmd())
	return cfgCmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.Auth.JWTSecret != "" {
				shown.Auth.JWTSecret = "********"
			}
			if viper.GetBool("json") {
				return printJSON(shown)
			}
			out, err := shown.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Println("config valid:", path)
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- helpers ---

func printPage(p taskboardsdk.Page) error {
	if viper.GetBool("json") {
		return printJSON(p)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("page %s (form %s)", p.ID, formState(p.FormOpen))
	tw.AppendHeader(table.Row{"Stage", "ID", "Description"})
	for _, group := range []struct {
		stage string
		tasks []taskboardsdk.Task
	}{{"new", p.New}, {"in_progress", p.InProgress}, {"archived", p.Archived}} {
		for _, t := range group.tasks {
			tw.AppendRow(table.Row{group.stage, t.ID, t.Description})
		}
	}
	tw.Render()
	return nil
}

func printChange(res taskboardsdk.ChangeResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	c := res.Change
	switch {
	case c.Reason != "":
		fmt.Printf("%s: %s\n", c.Type, c.Reason)
	case c.TaskID != "":
		fmt.Printf("%s %s %s\n", c.Type, c.TaskID, strings.TrimSpace(c.From+" -> "+c.To))
	default:
		fmt.Printf("%s (form %s)\n", c.Type, formState(c.FormOpen))
	}
	return printPage(res.Page)
}

func formState(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
