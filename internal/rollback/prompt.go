package rollback

import (
	"context"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// Prompter asks the operator for input.
type Prompter interface {
	Version(ctx context.Context) (string, error)
	Confirm(ctx context.Context, question string) (bool, error)
}

// IsTerminal reports whether stdin is attached to a terminal.
func IsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// TerminalPrompter prompts on the terminal.
type TerminalPrompter struct{}

// NewTerminalPrompter returns a prompter, or nil when stdin is not a terminal.
func NewTerminalPrompter() Prompter {
	if !IsTerminal() {
		return nil
	}
	return TerminalPrompter{}
}

// Version asks for the version to roll back.
func (TerminalPrompter) Version(ctx context.Context) (string, error) {
	var version string
	input := huh.NewInput().
		Title("Version to roll back").
		Description("The last commit is not a release commit.").
		Placeholder("1.2.3").
		Validate(ValidateVersion).
		Value(&version)
	err := huh.NewForm(huh.NewGroup(input)).RunWithContext(ctx)
	return version, err
}

// Confirm asks a yes/no question.
func (TerminalPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	var ok bool
	confirm := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)
	err := huh.NewForm(huh.NewGroup(confirm)).RunWithContext(ctx)
	return ok, err
}
