package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/rmed/simpleice/internal/app"
	"github.com/rmed/simpleice/internal/domain"
)

// interactive reports whether prompts may be shown. Tests replace it.
var interactive = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var errNameRequired = errors.New("an ice mail name is required")

// mailFields holds the values collected by the compose form.
type mailFields struct {
	name      string
	recipient string
	subject   string
	body      string
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// promptMail asks for the mail fields, starting from the values in f.
func promptMail(f *mailFields, withName bool) error {
	var fields []huh.Field
	if withName {
		fields = append(fields,
			huh.NewInput().
				Title("Name").
				Placeholder("unique name for this mail").
				Value(&f.name).
				Validate(validateRequired("Name")),
		)
	}
	fields = append(fields,
		huh.NewInput().
			Title("Recipients").
			Placeholder("alice@example.com, bob@example.com").
			Value(&f.recipient).
			Validate(validateRequired("Recipients")),
		huh.NewInput().
			Title("Subject").
			Value(&f.subject),
		huh.NewText().
			Title("Message").
			Lines(8).
			Value(&f.body),
	)
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

// promptTrigger asks for a trigger date.
func promptTrigger() (string, error) {
	var s string
	err := huh.NewInput().
		Title("Trigger date").
		Placeholder("YYYY-MM-DD HH:MM").
		Value(&s).
		Validate(func(v string) error {
			_, err := parseTrigger(v)
			return err
		}).
		Run()
	return s, err
}

// promptSecret asks for a password without echoing it.
func promptSecret(username string) (string, error) {
	var s string
	err := huh.NewInput().
		Title("Secret for " + username).
		EchoMode(huh.EchoModePassword).
		Value(&s).
		Validate(validateRequired("Secret")).
		Run()
	return s, err
}

// confirm asks a yes/no question. yes skips the prompt; without a terminal
// the caller must pass --yes.
func confirm(title string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	if !interactive() {
		return false, errors.New("confirmation required: pass --yes")
	}
	ok := false
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	return ok, err
}

// resolveName returns the mail name from args or, on a terminal, lets the
// user pick one of the mails accepted by keep.
func resolveName(ctx context.Context, svc *app.MailService, args []string, title string, keep func(domain.IceMail) bool) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if !interactive() {
		return "", errNameRequired
	}

	mails, err := svc.List(ctx)
	if err != nil {
		return "", err
	}
	var opts []huh.Option[string]
	for _, m := range mails {
		if keep == nil || keep(m) {
			opts = append(opts, huh.NewOption(m.StatusLine(), m.Name))
		}
	}
	if len(opts) == 0 {
		return "", fmt.Errorf("%w: no matching ice mails", domain.ErrNotFound)
	}

	var name string
	err = huh.NewSelect[string]().
		Title(title).
		Options(opts...).
		Value(&name).
		Run()
	return name, err
}
