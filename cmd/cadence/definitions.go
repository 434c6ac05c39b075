package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"cadence/internal/domain"
	"cadence/internal/engine"
	"cadence/internal/progress"
)

var weekdays = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// parseSchedules reads flags of the form "mon=08:00,21:00" or "1=08:00".
func parseSchedules(flags []string) ([]domain.ScheduleEntry, error) {
	var out []domain.ScheduleEntry
	for _, raw := range flags {
		day, times, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("schedule %q: want DAY=HH:MM[,HH:MM...]", raw)
		}
		day = strings.ToLower(strings.TrimSpace(day))
		dow, known := weekdays[day]
		if !known && len(day) > 3 {
			dow, known = weekdays[day[:3]]
		}
		if !known {
			n, err := strconv.Atoi(day)
			if err != nil {
				return nil, fmt.Errorf("schedule %q: unknown weekday %q", raw, day)
			}
			dow = n
		}
		entry := domain.ScheduleEntry{DayOfWeek: dow}
		for _, t := range strings.Split(times, ",") {
			if t = strings.TrimSpace(t); t != "" {
				entry.Times = append(entry.Times, t)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func scheduleSummary(d domain.TaskDefinition) string {
	if !d.Scheduled() {
		return "loop"
	}
	names := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	var parts []string
	for _, s := range d.Schedules {
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			continue
		}
		parts = append(parts, names[s.DayOfWeek]+" "+strings.Join(s.Times, ","))
	}
	return strings.Join(parts, "; ")
}

func printDefinitions(defs []domain.TaskDefinition) error {
	if viper.GetBool("json") {
		return printJSON(defs)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Prio", "Schedule", "Categories", "Default", "Active"})
	for _, d := range defs {
		tw.AppendRow(table.Row{d.ID, d.Name, d.Priority, scheduleSummary(d), strings.Join(d.Categories, ", "), formatAmount(d.DefaultAmount), d.Active})
	}
	tw.Render()
	return nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func defCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "def", Short: "Manage task definitions"}
	cmd.AddCommand(defListCmd())
	cmd.AddCommand(defShowCmd())
	cmd.AddCommand(defCreateCmd())
	cmd.AddCommand(defUpdateCmd())
	cmd.AddCommand(defDeleteCmd())
	return cmd
}

func defListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, err := userID(e.Config)
				if err != nil {
					return err
				}
				defs, err := e.ListDefinitions(ctx, user, !all)
				if err != nil {
					return err
				}
				return printDefinitions(defs)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive definitions")
	return cmd
}

func defShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDefinition(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
}

type definitionFlags struct {
	name          string
	trackBy       string
	priority      int
	schedules     []string
	categories    []string
	defaultAmount float64
	clearDefault  bool
	daily         int
	weekly        int
	monthly       int
	yearly        int
	inactive      bool
}

func (f *definitionFlags) register(fs *pflag.FlagSet, update bool) {
	fs.StringVar(&f.name, "name", "", "name")
	fs.StringVar(&f.trackBy, "track-by", "", "unit label, e.g. reps or pages")
	fs.IntVar(&f.priority, "priority", 1, "priority 1 (highest) to 10")
	fs.StringArrayVar(&f.schedules, "schedule", nil, "DAY=HH:MM[,HH:MM] (repeatable); omit for a loop task")
	fs.StringArrayVar(&f.categories, "category", nil, "category (repeatable, rotates round-robin)")
	fs.Float64Var(&f.defaultAmount, "default-amount", 0, "amount logged on completion")
	fs.IntVar(&f.daily, "daily-goal", 0, "daily goal")
	fs.IntVar(&f.weekly, "weekly-goal", 0, "weekly goal")
	fs.IntVar(&f.monthly, "monthly-goal", 0, "monthly goal")
	fs.IntVar(&f.yearly, "yearly-goal", 0, "yearly goal")
	fs.BoolVar(&f.inactive, "inactive", false, "mark inactive")
	if update {
		fs.BoolVar(&f.clearDefault, "clear-default-amount", false, "unset the default amount")
	}
}

func defCreateCmd() *cobra.Command {
	var f definitionFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedules, err := parseSchedules(f.schedules)
			if err != nil {
				return err
			}
			opts := engine.DefinitionCreateOptions{
				Name:       f.name,
				TrackBy:    f.trackBy,
				Priority:   f.priority,
				Schedules:  schedules,
				Categories: f.categories,
				Goals:      domain.Goals{Daily: f.daily, Weekly: f.weekly, Monthly: f.monthly, Yearly: f.yearly},
			}
			if cmd.Flags().Changed("default-amount") {
				v := f.defaultAmount
				opts.DefaultAmount = &v
			}
			if f.inactive {
				active := false
				opts.Active = &active
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, err := userID(e.Config)
				if err != nil {
					return err
				}
				opts.UserID = user
				d, err := e.CreateDefinition(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	f.register(cmd.Flags(), false)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("track-by")
	return cmd
}

func defUpdateCmd() *cobra.Command {
	var f definitionFlags
	var activate bool
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a definition; only given flags change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			changed := cmd.Flags().Changed
			opts := engine.DefinitionUpdateOptions{ID: id, ClearDefaultAmount: f.clearDefault}
			if changed("name") {
				opts.Name = &f.name
			}
			if changed("track-by") {
				opts.TrackBy = &f.trackBy
			}
			if changed("priority") {
				opts.Priority = &f.priority
			}
			if changed("schedule") {
				schedules, err := parseSchedules(f.schedules)
				if err != nil {
					return err
				}
				opts.Schedules = &schedules
			}
			if changed("category") {
				opts.Categories = &f.categories
			}
			if changed("default-amount") {
				opts.DefaultAmount = &f.defaultAmount
			}
			for flag, dst := range map[string]**int{
				"daily-goal":   &opts.DailyGoal,
				"weekly-goal":  &opts.WeeklyGoal,
				"monthly-goal": &opts.MonthlyGoal,
				"yearly-goal":  &opts.YearlyGoal,
			} {
				if !changed(flag) {
					continue
				}
				v, _ := cmd.Flags().GetInt(flag)
				*dst = &v
			}
			switch {
			case changed("inactive") && changed("active"):
				return fmt.Errorf("--active and --inactive are exclusive")
			case changed("inactive"):
				v := !f.inactive
				opts.Active = &v
			case changed("active"):
				opts.Active = &activate
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.UpdateDefinition(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	f.register(cmd.Flags(), true)
	cmd.Flags().BoolVar(&activate, "active", false, "mark active")
	return cmd
}

func defDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a definition and its log entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteDefinition(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Deleted definition %d\n", id)
				return nil
			})
		},
	}
}

func progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress ID",
		Short: "Show goal progress and streak for a definition",
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
				r, err := e.Progress(ctx, id, loc)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.SetTitle(fmt.Sprintf("Definition %d as of %s", r.DefinitionID, r.Today))
				tw.AppendHeader(table.Row{"Period", "Value", "Goal", "Progress"})
				rows := []struct {
					label string
					p     progress.Period
				}{
					{"Today", r.Daily},
					{"Week", r.Weekly},
					{"Month", r.Monthly},
					{"Year", r.Yearly},
				}
				for _, row := range rows {
					tw.AppendRow(table.Row{row.label, row.p.Value, row.p.Goal, fmt.Sprintf("%s (%.0f%%)", row.p.Fraction, row.p.Pct*100)})
				}
				tw.AppendFooter(table.Row{"Streak", r.Streak, "", ""})
				tw.Render()
				fmt.Printf("Last 14 days: %s\n", heatmap(r, 14))
				return nil
			})
		},
	}
}

var heatLevels = []rune(" .:oO")

// heatmap renders the trailing days ending today, one glyph per day.
func heatmap(r progress.Report, days int) string {
	today, err := time.Parse("2006-01-02", r.Today)
	if err != nil {
		return ""
	}
	out := make([]rune, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		out = append(out, heatLevels[r.Quantiles.Level(r.Totals[day])])
	}
	return "[" + string(out) + "]"
}
