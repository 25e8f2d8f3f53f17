package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"surat/internal/app"
	"surat/internal/config"
	"surat/internal/domain"
	"surat/internal/engine"
	"surat/internal/letter"
	"surat/internal/logging"
	"surat/internal/migrate"
	"surat/internal/repo"
	"surat/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "surat",
	Short: "Surat letter-request portal",
	Long: `surat serves the letter-request API and administers its data.
- Requests: a researcher submits a permit, assignment or liability letter request for one of the templates.
- Documents: each request renders into a .docx from its template, named after the team leader.
- Review: administrators complete a request by uploading the signed result, or reject it.
Configuration comes from surat.yml, overridden by SURAT_* environment variables and flags.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SURAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "surat.yml", "config file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "cli", "actor recorded on changes made from the CLI")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads the config file, then applies SURAT_* overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	overrides := map[string]*string{
		"server.addr":         &cfg.Server.Addr,
		"server.base_path":    &cfg.Server.BasePath,
		"auth.jwt_secret":     &cfg.Auth.JWTSecret,
		"database.path":       &cfg.Database.Path,
		"templates.backend":   &cfg.Templates.Backend,
		"templates.base_url":  &cfg.Templates.BaseURL,
		"templates.bucket":    &cfg.Templates.Bucket,
		"templates.dir":       &cfg.Templates.Dir,
		"results.backend":     &cfg.Results.Backend,
		"results.base_url":    &cfg.Results.BaseURL,
		"results.bucket":      &cfg.Results.Bucket,
		"results.dir":         &cfg.Results.Dir,
		"results.public_url":  &cfg.Results.PublicURL,
		"storage.service_key": &cfg.Storage.ServiceKey,
		"log.level":           &cfg.Log.Level,
		"log.format":          &cfg.Log.Format,
		"timezone":            &cfg.Timezone,
	}
	for key, field := range overrides {
		if v := viper.GetString(key); v != "" {
			*field = v
		}
	}
	if v := viper.GetDuration("templates.timeout"); v > 0 {
		cfg.Templates.Timeout = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// operator is the CLI identity. Whoever can open the database administers it.
func operator() engine.Caller {
	return engine.Caller{ID: viper.GetString("actor-id"), Roles: []string{domain.RoleAdmin}}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret (SURAT_AUTH_JWT_SECRET) is required for bearer auth")
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			version, _ := migrate.Version(a.DB)

			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret},
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			server.StartWebhooks(ctx, a.Engine, logger)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving surat API",
				zap.String("addr", cfg.Server.Addr),
				zap.String("base_path", cfg.Server.BasePath),
				zap.String("templates", cfg.Templates.Backend),
				zap.String("results", cfg.Results.Backend),
				zap.Int("schema_version", version),
				zap.Int("webhooks", len(cfg.Webhooks)),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func templatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List letter templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := letter.Templates()
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Key", "Label", "File"})
			for _, t := range items {
				tw.AppendRow(table.Row{t.Key, t.Label, t.File()})
			}
			tw.Render()
			return nil
		},
	}
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Inspect and review letter requests"}
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(requestRejectCmd())
	req.AddCommand(requestCompleteCmd())
	req.AddCommand(requestRenderCmd())
	return req
}

func requestListCmd() *cobra.Command {
	var owner string
	var f engine.ListFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var items []domain.Request
				var err error
				if owner != "" {
					items, err = a.Engine.ListMine(ctx, engine.Caller{ID: owner}, f)
				} else {
					items, err = a.Engine.ListAll(ctx, operator(), f)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Template", "Status", "Ketua", "Judul", "Created"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.TemplateKey, r.Status, r.LeaderName, r.Title, r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only requests of this user id")
	cmd.Flags().StringVar(&f.TemplateKey, "template", "", "template key filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (Pending, Completed, Rejected)")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "search judul or ketua_nama")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "maximum rows")
	return cmd
}

func requestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request with its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, members, err := a.Engine.Get(ctx, args[0], operator())
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"request": req, "anggota": members})
			})
		},
	}
}

func requestRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.MarkRejected(ctx, args[0], operator())
				if err != nil {
					return err
				}
				return printResult(req)
			})
		},
	}
}

func requestCompleteCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Upload the result file and complete a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			content, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				req, err := a.Engine.MarkCompleted(ctx, args[0], operator(), filepath.Base(file), content)
				if err != nil {
					return err
				}
				return printResult(req)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "result file to upload")
	return cmd
}

func requestRenderCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "render <id>",
		Short: "Render the letter of a request to a .docx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				doc, err := a.Engine.Generate(ctx, args[0], operator())
				if err != nil {
					return err
				}
				target := out
				if target == "" {
					target = doc.Filename
				}
				if err := os.WriteFile(target, doc.Body, 0o644); err != nil {
					return err
				}
				fmt.Println(target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default Surat-<ketua>.docx)")
	return cmd
}

func adminCmd() *cobra.Command {
	adm := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator profiles",
	}
	adm.AddCommand(adminRoleCmd("grant", "Grant administrator rights", domain.RoleAdmin))
	adm.AddCommand(adminRoleCmd("revoke", "Revoke administrator rights", domain.RoleUser))
	adm.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List administrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListProfiles(ctx, domain.RoleAdmin)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Profile", "Role", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Role, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return adm
}

func adminRoleCmd(use, short, role string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <profile-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.SetRole(ctx, viper.GetString("actor-id"), args[0], role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("%s is now %s\n", p.ID, p.Role)
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			now := time.Now()
			claims := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)}
			if ttl > 0 {
				claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
			}
			tok, err := server.SignToken(cfg.Auth.JWTSecret, subject, roles, claims)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "subject (user id)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim, repeatable (admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Audit event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the config file",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
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

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			shown.Auth.JWTSecret = mask(shown.Auth.JWTSecret)
			shown.Storage.ServiceKey = mask(shown.Storage.ServiceKey)
			return printJSON(shown)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

// --- helpers ---

func printResult(req domain.Request) error {
	if viper.GetBool("json") {
		return printJSON(req)
	}
	fmt.Printf("%s %s\n", req.ID, req.Status)
	if req.ResultFile != nil {
		fmt.Println(*req.ResultFile)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
