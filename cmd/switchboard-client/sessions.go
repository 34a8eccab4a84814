package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"switchboard-sdk/pkg/types"
)

func sessionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and manage sessions",
	}
	cmd.AddCommand(
		sessionsListCmd(c),
		sessionsShowCmd(c),
		sessionsCreateCmd(c),
		sessionsEndCmd(c),
	)
	return cmd
}

func sessionsListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.directory()
			if err != nil {
				return err
			}
			sessions, err := dir.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No active sessions")
				return nil
			}
			return printSessions(out, sessions)
		},
	}
}

func sessionsShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show SESSION_ID...",
		Short: "Show one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.directory()
			if err != nil {
				return err
			}
			sessions, err := dir.GetSessions(cmd.Context(), args...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, s := range sessions {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printSession(out, s)
			}
			return nil
		},
	}
}

func sessionsCreateCmd(c *cli) *cobra.Command {
	var (
		name       string
		students   []string
		instructor string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if instructor == "" {
				instructor = c.cfg.Identity.UserID
			}
			if instructor == "" {
				return fmt.Errorf("an instructor is required (--instructor or --user)")
			}
			dir, err := c.directory()
			if err != nil {
				return err
			}
			s, err := dir.CreateSession(cmd.Context(), name, instructor, students)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created session %s\n", s.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "session name")
	cmd.Flags().StringSliceVarP(&students, "students", "s", nil, "comma separated student IDs")
	cmd.Flags().StringVar(&instructor, "instructor", "", "instructor ID (defaults to --user)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("students")
	return cmd
}

func sessionsEndCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "end SESSION_ID",
		Short: "End a session; connected participants are notified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.directory()
			if err != nil {
				return err
			}
			if err := dir.EndSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ended session %s\n", args[0])
			return nil
		},
	}
}

func healthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.directory()
			if err != nil {
				return err
			}
			h, err := dir.Health(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:      %s\n", h.Status)
			fmt.Fprintf(out, "Connections: %d students, %d instructors\n",
				h.Connections["students"], h.Connections["instructors"])
			return nil
		},
	}
}

func printSessions(w io.Writer, sessions []*types.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tINSTRUCTOR\tSTUDENTS\tSTARTED\tCONNECTIONS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Name, s.CreatedBy, len(s.StudentIDs),
			s.StartTime.Local().Format(time.DateTime), connections(s))
	}
	return tw.Flush()
}

func printSession(w io.Writer, s *types.Session) {
	fmt.Fprintf(w, "ID:          %s\n", s.ID)
	fmt.Fprintf(w, "Name:        %s\n", s.Name)
	fmt.Fprintf(w, "Instructor:  %s\n", s.CreatedBy)
	fmt.Fprintf(w, "Students:    %s\n", strings.Join(s.StudentIDs, ", "))
	fmt.Fprintf(w, "Status:      %s\n", s.Status)
	fmt.Fprintf(w, "Started:     %s\n", s.StartTime.Local().Format(time.DateTime))
	if s.EndTime != nil {
		fmt.Fprintf(w, "Ended:       %s\n", s.EndTime.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "Connections: %s\n", connections(s))
}

func connections(s *types.Session) string {
	if s.ConnectionCount == nil {
		return "-"
	}
	return strconv.Itoa(*s.ConnectionCount)
}
