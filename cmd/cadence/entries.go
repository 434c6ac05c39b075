package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cadence/internal/domain"
	"cadence/internal/engine"
	"cadence/internal/repo"
)

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect and append log entries"}
	cmd.AddCommand(logListCmd())
	cmd.AddCommand(logAddCmd())
	cmd.AddCommand(logTodayCmd())
	cmd.AddCommand(logDeleteCmd())
	cmd.AddCommand(logEventsCmd())
	return cmd
}

func printEntries(entries []domain.LogEntry, loc *time.Location) error {
	if viper.GetBool("json") {
		return printJSON(entries)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Def", "Name", "Amount", "Category", "Description", "At"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.ID, e.DefinitionID, e.Name, formatAmount(e.Amount), deref(e.Category), e.Description, e.CreatedAt.In(loc).Format("2006-01-02 15:04")})
	}
	tw.Render()
	return nil
}

func logListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list DEF_ID",
		Short: "List entries for a definition, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				loc, err := location(e.Config)
				if err != nil {
					return err
				}
				entries, err := e.ListLogEntries(ctx, id)
				if err != nil {
					return err
				}
				return printEntries(entries, loc)
			})
		},
	}
}

func logTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "List today's entries across all definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, err := userID(e.Config)
				if err != nil {
					return err
				}
				loc, err := location(e.Config)
				if err != nil {
					return err
				}
				entries, err := e.TodayEntries(ctx, user, loc)
				if err != nil {
					return err
				}
				return printEntries(entries, loc)
			})
		},
	}
}

func logAddCmd() *cobra.Command {
	var amount float64
	var description, category string
	cmd := &cobra.Command{
		Use:   "add DEF_ID",
		Short: "Append an entry without going through the selector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			in := domain.NewLogEntry{DefinitionID: id, Description: description}
			if cmd.Flags().Changed("amount") {
				in.Amount = &amount
			}
			if category != "" {
				in.Category = &category
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.CreateLogEntry(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(entry)
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category")
	return cmd
}

func logDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ENTRY_ID",
		Short: "Delete a log entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteLogEntry(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Deleted entry %d\n", id)
				return nil
			})
		},
	}
}

func logEventsCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, err := userID(e.Config)
				if err != nil {
					return err
				}
				events, err := e.ListEvents(ctx, repo.EventFilters{
					UserID:     user,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Payload"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + "/" + ev.EntityID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}
