package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kashyapanjali/periskope/internal/domain"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and failed
	ExitCommandError = 2 // bad usage or no usable session
)

// ExitError carries the exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Print writes data as indented JSON, or calls text for human output.
func (f *OutputFormatter) Print(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	text(f.Writer)
	return nil
}

func printChats(w io.Writer, chats []domain.Chat) {
	if len(chats) == 0 {
		fmt.Fprintln(w, "No chats found.")
		return
	}
	for i, c := range chats {
		last := ""
		if c.LastMessage != nil {
			last = truncate(*c.LastMessage, 40)
		}
		fmt.Fprintf(w, "%2d. %-24s %-36s %s  %s\n", i+1, truncate(c.Name, 24), c.ID, stamp(c.LastActivityAt), last)
	}
}

func printMessage(w io.Writer, m domain.Message) {
	line := fmt.Sprintf("[%s] %s: %s", stamp(m.CreatedAt), sanitizeForTerminal(m.Sender.DisplayName()), sanitizeForTerminal(m.Content))
	if m.AttachmentURL != nil {
		line += " <" + *m.AttachmentURL + ">"
	}
	fmt.Fprintln(w, line)
}

func printUsers(w io.Writer, users []domain.User) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return
	}
	for _, u := range users {
		fmt.Fprintf(w, "%-36s %-24s %s\n", u.ID, truncate(u.DisplayName(), 24), u.Email)
	}
}

func printLabels(w io.Writer, labels []domain.Label) {
	if len(labels) == 0 {
		fmt.Fprintln(w, "No labels found.")
		return
	}
	for _, l := range labels {
		fmt.Fprintf(w, "%-36s %-20s %s\n", l.ID, l.Name, l.Color)
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	s = sanitizeForTerminal(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
