package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// readPassword reads a password from the terminal without echo
func (a *App) readPassword(label string) (string, error) {
	if !a.interactive() {
		return "", fmt.Errorf("password is required in non-interactive mode (use --password flag or HPA_PASSWORD env var)")
	}

	fmt.Fprintf(a.errOut, "%s: ", label)
	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.errOut) // New line after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(bytePassword), nil
}

// readNewPassword asks for a password twice
func (a *App) readNewPassword() (password, confirm string, err error) {
	password, err = a.readPassword("New password")
	if err != nil {
		return "", "", err
	}
	confirm, err = a.readPassword("Confirm password")
	if err != nil {
		return "", "", err
	}
	return password, confirm, nil
}

// promptText asks for a value unless one was already given
func (a *App) promptText(label, value, flagName string, validate func(string) error) (string, error) {
	if value != "" {
		return value, nil
	}
	if !a.interactive() {
		return "", fmt.Errorf("%s is required in non-interactive mode (use --%s)", label, flagName)
	}

	prompt := promptui.Prompt{
		Label:    label,
		Validate: validate,
	}
	result, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("%s prompt cancelled: %w", label, err)
	}
	return result, nil
}

// confirm asks a yes/no question, defaulting to no
func (a *App) confirm(label string) (bool, error) {
	if !a.interactive() {
		return false, nil
	}

	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, fmt.Errorf("prompt cancelled: %w", err)
	}
	return true, nil
}

// selectOption shows an interactive list and returns the chosen item
func (a *App) selectOption(label string, items []string) (string, error) {
	if !a.interactive() {
		return "", fmt.Errorf("%s is required in non-interactive mode", label)
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ . | cyan }}",
		Inactive: "  {{ . }}",
		Selected: "{{ . | green }}",
	}

	prompt := promptui.Select{
		Label:     label,
		Items:     items,
		Templates: templates,
		Size:      10,
	}

	_, choice, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("selection cancelled: %w", err)
	}
	return choice, nil
}
