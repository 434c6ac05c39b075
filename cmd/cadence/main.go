package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cadence/internal/app"
	"cadence/internal/config"
	"cadence/internal/db"
	"cadence/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence habit tracker",
	Long: `Cadence decides which recurring task to do right now.
- Definitions: recurring task templates. Give one a weekly schedule (weekday + HH:MM times) to make it
  a scheduled task, or leave the schedule empty to make it part of the unscheduled loop.
- Release: a scheduled time becomes due once the local clock passes it and stays due until completed,
  skipped, or the day ends.
- Selection: the most urgent due scheduled task wins (priority 1 first, then earliest time). With
  nothing due, the loop task neglected the longest comes up.
- Categories: a definition's categories rotate round-robin, one per completion.
- Log: every completion appends an entry; 'cadence log list' shows them, 'cadence progress' sums them.
- Workspace: .cadence holds the local database and client state; cadence.yml holds settings.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CADENCE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.StringP("user", "u", "", "user id (overrides cadence.yml)")
	flags.String("api-url", "", "backend URL; when empty commands use the workspace database")
	flags.String("token", "", "bearer token for the backend")
	flags.String("tz", "", "IANA time zone (overrides cadence.yml)")
	for _, name := range []string{"workspace", "json", "user", "api-url", "token", "tz"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(defCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(nowCmd())
	rootCmd.AddCommand(doneCmd())
	rootCmd.AddCommand(skipCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default cadence.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if existing, err := config.LoadOptional(workspace); err != nil {
				return err
			} else if existing != nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", config.Path(workspace))
			}
			cfg := config.Default(viper.GetString("user"))
			if tz := viper.GetString("tz"); tz != "" {
				cfg.Timezone = tz
			}
			if url := viper.GetString("api-url"); url != "" {
				cfg.Client.APIURL = url
			}
			if err := config.Write(workspace, cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", config.Path(workspace))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return app.ResolveConfig(viper.GetString("workspace"), viper.GetString("user"))
}

func userID(cfg *config.Config) (string, error) {
	if u := strings.TrimSpace(viper.GetString("user")); u != "" {
		return u, nil
	}
	if cfg != nil && strings.TrimSpace(cfg.User) != "" {
		return strings.TrimSpace(cfg.User), nil
	}
	return "", fmt.Errorf("user not set; use --user, CADENCE_USER or set user in %s", config.Path(viper.GetString("workspace")))
}

func location(cfg *config.Config) (*time.Location, error) {
	tz := viper.GetString("tz")
	if tz == "" && cfg != nil {
		tz = cfg.Timezone
	}
	if tz == "" {
		tz = config.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", tz, err)
	}
	return loc, nil
}

func apiURL(cfg *config.Config) string {
	if u := viper.GetString("api-url"); u != "" {
		return u
	}
	if cfg != nil {
		return cfg.Client.APIURL
	}
	return ""
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := app.Open(viper.GetString("workspace"), viper.GetString("user"))
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.Engine.Logger = log.New(os.Stderr, "cadence: ", 0)
	return fn(ctx, ws.Engine)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
