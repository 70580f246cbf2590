package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmed/simpleice/internal/domain"
)

// triggerLayouts are the accepted local-time trigger formats, tried in order
// after RFC 3339.
var triggerLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTrigger parses a trigger date. Dates without a zone are local time.
func parseTrigger(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range triggerLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q (use YYYY-MM-DD HH:MM or RFC 3339)", domain.ErrInvalidTrigger, s)
}

// readBody resolves a --body value, reading stdin for "-".
func readBody(cmd *cobra.Command, body string) (string, error) {
	if body != "-" {
		return body, nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read body from stdin: %w", err)
	}
	return string(b), nil
}

func printMail(cmd *cobra.Command, m domain.IceMail, attempts *attemptCounts) error {
	if jsonFlag {
		out := toJSONIceMail(m, true)
		out.DeliveryAttempts = attempts
		return printJSON(cmd, out)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render(m.Name)+" ~> "+renderStatus(m.Status))
	if m.TriggerAt != nil {
		fmt.Fprintf(w, "Trigger: %s\n", m.TriggerAt.Local().Format("02/01/2006 15:04"))
	}
	if m.SentAt != nil {
		fmt.Fprintf(w, "Sent: %s\n", m.SentAt.Local().Format("02/01/2006 15:04"))
	}
	fmt.Fprintf(w, "To: %s\n", strings.Join(m.Recipients(), ", "))
	fmt.Fprintf(w, "Subject: %s\n", m.Subject)
	if attempts != nil {
		fmt.Fprintf(w, "Delivery attempts: %d (failed %d)\n", attempts.Total, attempts.Failed)
	}
	fmt.Fprintln(w, mutedTextStyle.Render(strings.Repeat("─", 60)))
	fmt.Fprintln(w, m.Body)
	return nil
}

func newNewCmd() *cobra.Command {
	var recipientFlag, subjectFlag, bodyFlag string

	cmd := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a new ICE mail",
		Long:  "Create a new ICE mail in Draft status. Missing fields are prompted for when run in a terminal.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openMailService()
			if err != nil {
				return err
			}

			body, err := readBody(cmd, bodyFlag)
			if err != nil {
				return err
			}
			f := mailFields{recipient: recipientFlag, subject: subjectFlag, body: body}
			if len(args) > 0 {
				f.name = args[0]
			}

			if f.name == "" || f.recipient == "" {
				if !interactive() {
					if f.name == "" {
						return errNameRequired
					}
					return errors.New("--recipient is required")
				}
				if err := promptMail(&f, f.name == ""); err != nil {
					return err
				}
			}

			m, err := svc.Create(cmd.Context(), f.name, f.recipient, f.subject, f.body)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd, toJSONIceMail(m, true))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s.\n", m.StatusLine())
			return nil
		},
	}

	cmd.Flags().StringVar(&recipientFlag, "recipient", "", "recipient addresses (comma-separated)")
	cmd.Flags().StringVar(&subjectFlag, "subject", "", "mail subject")
	cmd.Flags().StringVar(&bodyFlag, "body", "", "mail body (use '-' to read from stdin)")
	return cmd
}

func newEditCmd() *cobra.Command {
	var nameFlag, recipientFlag, subjectFlag, bodyFlag string

	cmd := &cobra.Command{
		Use:   "edit [name]",
		Short: "Edit an ICE mail",
		Long:  "Change the name or content of a Draft or Active ICE mail. Status and dates are kept.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openMailService()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			name, err := resolveName(ctx, svc, args, "Edit which mail?", func(m domain.IceMail) bool {
				return m.Editable()
			})
			if err != nil {
				return err
			}

			var changes domain.Changes
			flags := cmd.Flags()
			if flags.Changed("name") {
				changes.Name = &nameFlag
			}
			if flags.Changed("recipient") {
				changes.Recipient = &recipientFlag
			}
			if flags.Changed("subject") {
				changes.Subject = &subjectFlag
			}
			if flags.Changed("body") {
				body, err := readBody(cmd, bodyFlag)
				if err != nil {
					return err
				}
				changes.Body = &body
			}

			if changes.Empty() {
				if !interactive() {
					return errors.New("nothing to change: pass --name, --recipient, --subject or --body")
				}
				current, err := svc.Get(ctx, name)
				if err != nil {
					return err
				}
				if !current.Editable() {
					return fmt.Errorf("%q: %w", name, domain.ErrInvalidState)
				}
				f := mailFields{recipient: current.Recipient, subject: current.Subject, body: current.Body}
				if err := promptMail(&f, false); err != nil {
					return err
				}
				changes = domain.Changes{Recipient: &f.recipient, Subject: &f.subject, Body: &f.body}
			}

			m, err := svc.Edit(ctx, name, changes)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd, toJSONIceMail(m, true))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s.\n", m.StatusLine())
			return nil
		},
	}

	cmd.Flags().StringVar(&nameFlag, "name", "", "new name")
	cmd.Flags().StringVar(&recipientFlag, "recipient", "", "recipient addresses (comma-separated)")
	cmd.Flags().StringVar(&subjectFlag, "subject", "", "mail subject")
	cmd.Flags().StringVar(&bodyFlag, "body", "", "mail body (use '-' to read from stdin)")
	return cmd
}

func newActivateCmd() *cobra.Command {
	var atFlag string
	var inFlag time.Duration

	cmd := &cobra.Command{
		Use:   "activate [name]",
		Short: "Schedule an ICE mail",
		Long: "Activate an ICE mail so it is delivered once the trigger date passes.\n" +
			"Dates are YYYY-MM-DD HH:MM in local time or RFC 3339. Activating an\n" +
			"Active mail moves its trigger date.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if atFlag != "" && inFlag != 0 {
				return errors.New("--at and --in are mutually exclusive")
			}
			svc, _, err := openMailService()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			name, err := resolveName(ctx, svc, args, "Activate which mail?", func(m domain.IceMail) bool {
				return m.Status != domain.StatusSent
			})
			if err != nil {
				return err
			}

			var triggerAt time.Time
			switch {
			case inFlag != 0:
				triggerAt = time.Now().Add(inFlag)
			case atFlag != "":
				if triggerAt, err = parseTrigger(atFlag); err != nil {
					return err
				}
			case interactive():
				s, err := promptTrigger()
				if err != nil {
					return err
				}
				if triggerAt, err = parseTrigger(s); err != nil {
					return err
				}
			default:
				return errors.New("a trigger date is required: pass --at or --in")
			}

			m, err := svc.Activate(ctx, name, triggerAt)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd, toJSONIceMail(m, false))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Activated %s.\n", m.StatusLine())
			return nil
		},
	}

	cmd.Flags().StringVar(&atFlag, "at", "", "trigger date (YYYY-MM-DD HH:MM or RFC 3339)")
	cmd.Flags().DurationVar(&inFlag, "in", 0, "trigger after this duration from now (e.g. 720h)")
	return cmd
}

func newDeactivateCmd() *cobra.Command {
	var yesFlag bool

	cmd := &cobra.Command{
		Use:   "deactivate [name]",
		Short: "Cancel a scheduled ICE mail",
		Long:  "Return an Active ICE mail to Draft and clear its trigger date.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openMailService()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			name, err := resolveName(ctx, svc, args, "Deactivate which mail?", func(m domain.IceMail) bool {
				return m.Status == domain.StatusActive
			})
			if err != nil {
				return err
			}
			ok, err := confirm(fmt.Sprintf("Deactivate %q?", name), yesFlag)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			m, err := svc.Deactivate(ctx, name)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd, toJSONIceMail(m, false))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %s.\n", m.StatusLine())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var yesFlag bool

	cmd := &cobra.Command{
		Use:     "remove [name]",
		Aliases: []string{"rm"},
		Short:   "Delete an ICE mail",
		Long:    "Delete an ICE mail regardless of its status.",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openMailService()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			name, err := resolveName(ctx, svc, args, "Remove which mail?", nil)
			if err != nil {
				return err
			}
			ok, err := confirm(fmt.Sprintf("Remove %q? This cannot be undone.", name), yesFlag)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			removed, err := svc.Remove(ctx, name)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd, jsonAction{OK: true, Action: "remove", Name: removed.Name})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", removed.Name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newListCmd() *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List ICE mails",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := openMailService()
			if err != nil {
				return err
			}
			mails, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}

			if statusFlag != "" {
				filtered := mails[:0:0]
				for _, m := range mails {
					if strings.EqualFold(string(m.Status), statusFlag) {
						filtered = append(filtered, m)
					}
				}
				mails = filtered
			}

			if jsonFlag {
				return printJSON(cmd, toJSONIceMails(mails))
			}
			if len(mails) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No ICE mails found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tTRIGGER\tRECIPIENTS\tSUBJECT")
			for _, m := range mails {
				trigger := "-"
				if m.TriggerAt != nil {
					trigger = m.TriggerAt.Local().Format("02/01/2006 15:04")
				}
				subject := m.Subject
				if len(subject) > 40 {
					subject = subject[:37] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.Name, string(m.Status), trigger,
					strings.Join(m.Recipients(), ", "), subject,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "only show mails with this status (Draft, Active, Sent)")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Show an ICE mail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cfg, err := openMailService()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			name, err := resolveName(ctx, svc, args, "Show which mail?", nil)
			if err != nil {
				return err
			}
			m, err := svc.Get(ctx, name)
			if err != nil {
				return err
			}
			attempts, err := countAttempts(ctx, cfg, m.Name)
			if err != nil {
				return err
			}
			return printMail(cmd, m, attempts)
		},
	}
}
