package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/store"
)

// weekdayNames maps flag values to weekdays.
var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// newRecallCmd creates the `rolobot recall` command group.
func newRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Manage proactive contact reminders",
	}
	cmd.PersistentFlags().Int64P("user", "u", 1, "acting user id")
	cmd.AddCommand(newRecallNowCmd(), newRecallSetCmd(), newRecallOffCmd())
	return cmd
}

func newRecallNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Generate a reminder about overdue contacts right away",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, userID, err := recallService(cmd)
			if err != nil {
				return err
			}
			defer svc.db.Close()

			text, err := svc.scheduler.Trigger(context.Background(), userID)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Println("Nothing overdue right now — your network is up to date.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		},
	}
}

func newRecallSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Enable scheduled reminders",
		Long: `Enable scheduled reminders on the given weekdays and time.

Examples:
  rolobot recall set --days mon,thu --at 15:00
  rolobot recall set --days fri --at 09:30 --focus investors`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, userID, err := recallService(cmd)
			if err != nil {
				return err
			}
			defer svc.db.Close()

			daysFlag, _ := cmd.Flags().GetString("days")
			atFlag, _ := cmd.Flags().GetString("at")
			focus, _ := cmd.Flags().GetString("focus")

			days, err := parseDays(daysFlag)
			if err != nil {
				return err
			}
			hour, minute, err := parseClock(atFlag)
			if err != nil {
				return err
			}

			ctx := context.Background()
			rs, err := svc.db.RecallSettings(ctx, userID)
			if err != nil {
				return err
			}
			if rs == nil {
				rs = &store.RecallSettings{UserID: userID}
			}
			rs.Enabled = true
			rs.Weekdays = days
			rs.Hour = hour
			rs.Minute = minute
			rs.Focus = focus

			if err := svc.db.SaveRecallSettings(ctx, *rs); err != nil {
				return err
			}
			fmt.Printf("Reminders enabled: %s at %02d:%02d.\n", daysFlag, hour, minute)
			return nil
		},
	}
	cmd.Flags().String("days", "mon", "comma-separated weekdays (mon,tue,...)")
	cmd.Flags().String("at", "15:00", "time of day, 24h HH:MM")
	cmd.Flags().String("focus", "", "optional focus for the reminders")
	return cmd
}

func newRecallOffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Disable scheduled reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, userID, err := recallService(cmd)
			if err != nil {
				return err
			}
			defer svc.db.Close()

			ctx := context.Background()
			rs, err := svc.db.RecallSettings(ctx, userID)
			if err != nil {
				return err
			}
			if rs == nil || !rs.Enabled {
				fmt.Println("Reminders are already off.")
				return nil
			}
			rs.Enabled = false
			if err := svc.db.SaveRecallSettings(ctx, *rs); err != nil {
				return err
			}
			fmt.Println("Reminders disabled.")
			return nil
		},
	}
}

// recallService wires the service and reads the shared --user flag.
func recallService(cmd *cobra.Command) (*service, int64, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, 0, err
	}
	logger := buildLogger(cmd, cfg)
	userID, _ := cmd.Flags().GetInt64("user")

	svc, err := buildService(cfg, logger, consoleSender{})
	if err != nil {
		return nil, 0, err
	}
	return svc, userID, nil
}

func parseDays(s string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q (use mon,tue,...)", part)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one weekday is required")
	}
	return days, nil
}

func parseClock(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time must be HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}
