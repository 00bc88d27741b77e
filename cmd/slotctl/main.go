// Command slotctl computes slots and validates date-times against a
// working-hours template without touching the database.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hackgods/clinic-calendar/internal/config"
	"github.com/hackgods/clinic-calendar/internal/schedule"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	templatePath string
	duration     int
	booked       []string
	blocked      []string
	outputJSON   bool
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "slotctl",
		Short: "Inspect clinic availability offline",
		Long: `Inspect clinic availability against a working-hours template.

Existing reservations are given as HH:MM or HH:MM/minutes on the queried day.

Examples:
  slotctl slots 2026-10-19
  slotctl slots 2026-10-19 --booked 09:00,14:00/90 --json
  slotctl validate 2026-10-19T12:30 --template clinic.yaml
  slotctl template
`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.templatePath, "template", os.Getenv("SCHEDULE_TEMPLATE_FILE"), "YAML template file (default: built-in template)")
	cmd.PersistentFlags().IntVar(&opts.duration, "duration", 0, "Session length in minutes (default: template session)")
	cmd.PersistentFlags().StringSliceVar(&opts.booked, "booked", nil, "Booked appointments on the day")
	cmd.PersistentFlags().StringSliceVar(&opts.blocked, "blocked", nil, "Blocked time on the day")
	cmd.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "Output results as JSON")

	cmd.AddCommand(slotsCmd(opts), validateCmd(opts), templateCmd(opts))
	return cmd
}

func slotsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "slots YYYY-MM-DD",
		Short: "List the day's slots and whether each is free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := config.LoadTemplate(opts.templatePath)
			if err != nil {
				return err
			}
			loc := tpl.Location()

			day, err := schedule.ParseDay(args[0], loc)
			if err != nil {
				return err
			}
			existing, err := opts.reservations(day, loc)
			if err != nil {
				return err
			}

			slots := schedule.AvailableSlots(day, tpl, existing,
				schedule.WithSession(time.Duration(opts.duration)*time.Minute))

			return printSlots(cmd.OutOrStdout(), slots, opts.outputJSON)
		},
	}
}

func validateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate YYYY-MM-DDTHH:MM",
		Short: "Check whether a date-time can be booked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := config.LoadTemplate(opts.templatePath)
			if err != nil {
				return err
			}
			loc := tpl.Location()

			at, err := time.ParseInLocation("2006-01-02T15:04", args[0], loc)
			if err != nil {
				return fmt.Errorf("parse date-time %q: %w", args[0], err)
			}
			existing, err := opts.reservations(at, loc)
			if err != nil {
				return err
			}

			res := schedule.Validate(at, time.Duration(opts.duration)*time.Minute, tpl, existing, uuid.Nil)
			if err := printResult(cmd.OutOrStdout(), res, opts.outputJSON); err != nil {
				return err
			}
			return res.Err()
		},
	}
}

func templateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "template",
		Short: "Print the effective template as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := config.LoadTemplate(opts.templatePath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(tpl)
		},
	}
}

// reservations turns --booked and --blocked into reservations on day.
func (o *options) reservations(day time.Time, loc *time.Location) ([]schedule.Reservation, error) {
	var out []schedule.Reservation
	for _, group := range []struct {
		values []string
		kind   schedule.Kind
	}{{o.booked, schedule.KindAppointment}, {o.blocked, schedule.KindBlock}} {
		for _, v := range group.values {
			r, err := parseReservation(v, group.kind, day, loc)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func parseReservation(v string, kind schedule.Kind, day time.Time, loc *time.Location) (schedule.Reservation, error) {
	clockPart, minutesPart, hasMinutes := strings.Cut(strings.TrimSpace(v), "/")

	c, err := schedule.ParseClock(clockPart)
	if err != nil {
		return schedule.Reservation{}, err
	}

	minutes := 50
	if hasMinutes {
		if minutes, err = strconv.Atoi(minutesPart); err != nil || minutes <= 0 {
			return schedule.Reservation{}, fmt.Errorf("invalid length in %q", v)
		}
	}

	return schedule.Reservation{
		ID:       uuid.New(),
		Kind:     kind,
		Start:    c.On(day, loc),
		Duration: time.Duration(minutes) * time.Minute,
	}, nil
}

func printSlots(w io.Writer, slots []schedule.Slot, asJSON bool) error {
	if asJSON {
		type slotOut struct {
			Time        string `json:"time"`
			IsAvailable bool   `json:"isAvailable"`
		}
		out := make([]slotOut, 0, len(slots))
		for _, s := range slots {
			out = append(out, slotOut{Time: s.Time.Format("15:04"), IsAvailable: s.Available})
		}
		return json.NewEncoder(w).Encode(out)
	}

	if len(slots) == 0 {
		fmt.Fprintln(w, "no slots: the clinic is closed on this day")
		return nil
	}
	for _, s := range slots {
		state := "free"
		if !s.Available {
			state = "taken"
		}
		fmt.Fprintf(w, "%s  %s\n", s.Time.Format("15:04"), state)
	}
	return nil
}

func printResult(w io.Writer, res schedule.Result, asJSON bool) error {
	if asJSON {
		out := map[string]any{"isValid": res.Valid}
		if !res.Valid {
			out["error"] = res.Violation
		}
		return json.NewEncoder(w).Encode(out)
	}
	if res.Valid {
		fmt.Fprintln(w, "valid")
		return nil
	}
	fmt.Fprintf(w, "invalid: %s\n", res.Violation)
	return nil
}
