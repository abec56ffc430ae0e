// nivaranctl is a terminal client for the grievance-redressal API: it logs
// users in and out, keeps the session fresh, and drives the department
// workflow (accept, decline, start-progress, resolve) over per-status
// grievance buckets.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nivaran.org/internal/api"
	"nivaran.org/internal/config"
	"nivaran.org/internal/grievance"
	"nivaran.org/internal/obs"
	"nivaran.org/internal/session"
)

var version = "0.3.1"

type app struct {
	cfg     *config.Config
	manager *session.Manager
	client  *api.Client
	cancel  context.CancelFunc
	ctx     context.Context
}

func main() {
	a := &app{}
	root := newRootCmd(a)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "nivaranctl",
		Short:         "nivaranctl - grievance redressal client",
		Long:          "Track and work grievances through their lifecycle against the redressal API.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.cancel != nil {
				a.cancel()
			}
		},
	}

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newListCmd(a),
		newAcceptCmd(a),
		newDeclineCmd(a),
		newStartCmd(a),
		newResolveCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	a.cfg = config.Load()
	obs.InitLogger(a.cfg.Environment)
	obs.Init()

	store, err := session.NewFileStore(a.cfg.StateDir)
	if err != nil {
		return err
	}
	a.manager = session.NewManager(store)
	if err := a.manager.Bootstrap(); err != nil {
		return err
	}

	a.client, err = api.New(a.cfg.APIOrigin, a.manager,
		api.WithTimeout(a.cfg.HTTPTimeout),
		api.WithRateLimit(a.cfg.RateLimit, a.cfg.RateBurst))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	a.ctx, a.cancel = ctx, cancel
	a.manager.Start(ctx)
	return nil
}

// department resolves the department the session's official works for,
// preferring an explicit flag over the stored profile.
func (a *app) department(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	var view struct {
		Department string `json:"department"`
	}
	_ = json.Unmarshal(a.manager.Profile(), &view)
	if view.Department == "" {
		return "", errors.New("no department on the current session; pass --department")
	}
	return view.Department, nil
}

func (a *app) workflow(department string) (*grievance.Store, *grievance.Workflow) {
	store := grievance.NewStore(a.client, department)
	return store, grievance.NewWorkflow(a.client, store, a.manager)
}

// findInBucket refreshes the bucket a command expects the grievance in and
// locates it by id or human-readable reference.
func findInBucket(ctx context.Context, store *grievance.Store, bucket grievance.Status, ref string) (grievance.Grievance, error) {
	snap, err := store.Refresh(ctx, bucket)
	if err != nil {
		return grievance.Grievance{}, err
	}
	for _, g := range snap.Items {
		if g.ID == ref || (g.PetitionID != "" && g.PetitionID == ref) {
			return g, nil
		}
	}
	return grievance.Grievance{}, fmt.Errorf("grievance %q not found in the %s bucket", ref, bucket)
}

func newLoginCmd(a *app) *cobra.Command {
	var (
		role       string
		email      string
		password   string
		department string
		employeeID string
		adminID    string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and persist a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.LoginRequest
			switch strings.ToLower(role) {
			case session.RolePetitioner:
				req = api.PetitionerLogin{Email: email, Password: password}
			case session.RoleOfficial:
				if department == "" {
					return errors.New("official login requires --department")
				}
				req = api.OfficialLogin{Email: email, Password: password, Department: department, EmployeeID: employeeID}
			case session.RoleAdmin:
				if adminID == "" {
					return errors.New("admin login requires --admin-id")
				}
				req = api.AdminLogin{Email: email, Password: password, AdminID: adminID}
			default:
				return fmt.Errorf("unknown role %q (petitioner, official or admin)", role)
			}

			route, err := a.client.Login(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in. Continue at %s\n", route)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", session.RolePetitioner, "login role: petitioner, official or admin")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&department, "department", "", "department (official login)")
	cmd.Flags().StringVar(&employeeID, "employee-id", "", "employee id (official login)")
	cmd.Flags().StringVar(&adminID, "admin-id", "", "admin id (admin login)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			route := a.manager.Logout()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out. Sign in again at %s\n", route)
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state:\t%s\n", a.manager.State())
			if role := a.manager.Role(); role != "" {
				fmt.Fprintf(out, "role:\t%s\n", role)
			}
			if a.manager.ExpiryWarning() {
				fmt.Fprintln(out, "note:\tsession expires soon; save your work and log in again")
			}
			if profile := a.manager.Profile(); len(profile) > 0 {
				fmt.Fprintf(out, "profile:\t%s\n", profile)
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "list <pending|assigned|inProgress|resolved>",
		Short: "Fetch one grievance bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := grievance.ParseStatus(args[0])
			if err != nil {
				return err
			}
			dept, err := a.department(department)
			if err != nil {
				return err
			}
			store, _ := a.workflow(dept)

			snap, err := store.Refresh(cmd.Context(), bucket)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREF\tPRIORITY\tTITLE")
			for _, g := range snap.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.ID, g.PetitionID, g.Priority, g.Title)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			stats, _ := store.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "\npending %d  assigned %d  inProgress %d  resolved %d\n",
				stats.Pending, stats.Assigned, stats.InProgress, stats.Resolved)
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department override")
	return cmd
}

func newAcceptCmd(a *app) *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "accept <grievance>",
		Short: "Accept a pending grievance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dept, err := a.department(department)
			if err != nil {
				return err
			}
			store, wf := a.workflow(dept)
			g, err := findInBucket(cmd.Context(), store, grievance.StatusPending, args[0])
			if err != nil {
				return err
			}
			out, err := wf.Accept(cmd.Context(), g)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Accepted %s; now in %s (%d items)\n",
				args[0], out.NextBucket, len(out.Snapshot.Items))
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department override")
	return cmd
}

func newDeclineCmd(a *app) *cobra.Command {
	var (
		department string
		reason     string
	)
	cmd := &cobra.Command{
		Use:   "decline <grievance>",
		Short: "Decline a pending grievance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dept, err := a.department(department)
			if err != nil {
				return err
			}
			store, wf := a.workflow(dept)
			g, err := findInBucket(cmd.Context(), store, grievance.StatusPending, args[0])
			if err != nil {
				return err
			}
			if _, err := wf.Decline(cmd.Context(), g, reason, func() { reason = "" }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Declined %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department override")
	cmd.Flags().StringVar(&reason, "reason", "", "reason for declining")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newStartCmd(a *app) *cobra.Command {
	var (
		department string
		comment    string
	)
	cmd := &cobra.Command{
		Use:   "start <grievance>",
		Short: "Start progress on an assigned grievance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dept, err := a.department(department)
			if err != nil {
				return err
			}
			store, wf := a.workflow(dept)
			g, err := findInBucket(cmd.Context(), store, grievance.StatusAssigned, args[0])
			if err != nil {
				return err
			}
			out, err := wf.StartProgress(cmd.Context(), g, comment)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s; now in %s\n", args[0], out.NextBucket)
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department override")
	cmd.Flags().StringVar(&comment, "comment", "", "progress comment")
	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	var (
		department string
		message    string
		file       string
	)
	cmd := &cobra.Command{
		Use:   "resolve <grievance>",
		Short: "Resolve an in-progress grievance with an attached document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dept, err := a.department(department)
			if err != nil {
				return err
			}
			doc, err := os.Open(file)
			if err != nil {
				return err
			}
			defer doc.Close()

			store, wf := a.workflow(dept)
			g, err := findInBucket(cmd.Context(), store, grievance.StatusInProgress, args[0])
			if err != nil {
				return err
			}
			out, err := wf.Resolve(cmd.Context(), g, message, grievance.Document{
				Filename: file,
				Content:  doc,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s; now in %s\n", args[0], out.NextBucket)
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department override")
	cmd.Flags().StringVar(&message, "message", "", "resolution message")
	cmd.Flags().StringVar(&file, "file", "", "resolution document to upload")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
