package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cadence/internal/app"
	"cadence/internal/clientstate"
	"cadence/internal/remote"
	"cadence/internal/scheduler"
)

// withSession builds a scheduler session over the backend (when an API URL
// is configured) or the workspace database, restores persisted client
// state, reloads history and saves the state again once fn returns.
func withSession(ctx context.Context, opts scheduler.Options, fn func(context.Context, *scheduler.Session) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	user, err := userID(cfg)
	if err != nil {
		return err
	}
	loc, err := location(cfg)
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "cadence: ", 0)
	opts.UserID = user
	opts.Location = loc
	opts.Logger = logger
	opts.FetchConcurrency = cfg.Concurrency()

	var store scheduler.Store
	if url := apiURL(cfg); url != "" {
		token := viper.GetString("token")
		header := ""
		if token == "" {
			header = user
		}
		rs := remote.Dial(url, token, header, cfg.ClientTimeout())
		rs.Logger = logger
		store = rs
	} else {
		ws, err := app.Open(workspace, viper.GetString("user"))
		if err != nil {
			return err
		}
		defer ws.Close()
		ws.Engine.Logger = logger
		store = ws.Engine
	}

	s := scheduler.NewSession(store, opts)
	snap, ok, err := clientstate.Load(workspace, user)
	if err != nil {
		logger.Printf("ignoring client state: %v", err)
	} else if ok {
		s.Restore(snap)
	}
	if err := s.Reload(ctx); err != nil {
		return err
	}
	runErr := fn(ctx, s)
	if err := clientstate.Save(workspace, user, s.Snapshot()); err != nil {
		return errors.Join(runErr, fmt.Errorf("save client state: %w", err))
	}
	return runErr
}

func describeCurrent(cur scheduler.Current, now time.Time) string {
	line := cur.Name
	if cur.Kind == scheduler.KindScheduled {
		line = fmt.Sprintf("%s @ %s (priority %d)", cur.Name, cur.HHMM, cur.Priority)
	}
	if cur.Category != "" {
		line += " [" + cur.Category + "]"
	}
	if cur.LastCompletedAt != nil {
		line += fmt.Sprintf(", last done %s", cur.LastCompletedAt.In(now.Location()).Format("Mon 15:04"))
	} else if cur.Kind == scheduler.KindUnscheduled {
		line += ", never done"
	}
	return line
}

type currentOutput struct {
	Now  time.Time          `json:"now"`
	Idle bool               `json:"idle"`
	Task *scheduler.Current `json:"task,omitempty"`
}

func printView(v scheduler.View) error {
	if viper.GetBool("json") {
		return printJSON(currentOutput{Now: v.Now, Idle: v.Current == nil, Task: v.Current})
	}
	if v.Current == nil {
		fmt.Printf("%s  nothing to do\n", v.Now.Format("15:04"))
		return nil
	}
	fmt.Printf("%s  %s: %s\n", v.Now.Format("15:04"), v.Current.Kind, describeCurrent(*v.Current, v.Now))
	return nil
}

func nowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Show the task to do right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), scheduler.Options{}, func(ctx context.Context, s *scheduler.Session) error {
				return printView(s.View())
			})
		},
	}
}

func doneCmd() *cobra.Command {
	var amount float64
	var description string
	cmd := &cobra.Command{
		Use:   "done",
		Short: "Complete the current task and log it",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := scheduler.CompleteOptions{Description: description}
			if cmd.Flags().Changed("amount") {
				opts.Amount = &amount
			}
			return withSession(cmd.Context(), scheduler.Options{}, func(ctx context.Context, s *scheduler.Session) error {
				entry, err := s.Complete(ctx, opts)
				if errors.Is(err, scheduler.ErrNoCurrentTask) {
					return fmt.Errorf("nothing to complete")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				fmt.Printf("Logged %s: %s\n", entry.Name, entry.Description)
				return printView(s.View())
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount, used when the definition has no default")
	cmd.Flags().StringVar(&description, "description", "", "description; generated when empty")
	return cmd
}

func skipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the current task without logging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), scheduler.Options{}, func(ctx context.Context, s *scheduler.Session) error {
				cur, err := s.Skip()
				if errors.Is(err, scheduler.ErrNoCurrentTask) {
					return fmt.Errorf("nothing to skip")
				}
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Printf("Skipped %s\n", cur.Name)
				}
				return printView(s.View())
			})
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the current task as the clock advances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			var last string
			opts := scheduler.Options{
				OnChange: func(v scheduler.View) {
					key := "idle"
					if v.Current != nil {
						key = fmt.Sprintf("%s/%d/%s/%s", v.Current.Kind, v.Current.DefinitionID, v.Current.HHMM, v.Current.Category)
					}
					if v.Err != nil {
						fmt.Fprintf(os.Stderr, "cadence: %v\n", v.Err)
					}
					if key == last {
						return
					}
					last = key
					_ = printView(v)
				},
			}
			return withSession(ctx, opts, func(ctx context.Context, s *scheduler.Session) error {
				return s.Run(ctx)
			})
		},
	}
}
