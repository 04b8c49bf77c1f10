package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kashyapanjali/periskope/internal/bus"
	"github.com/kashyapanjali/periskope/internal/directory"
	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/notify"
	chatsync "github.com/kashyapanjali/periskope/internal/sync"
	"github.com/kashyapanjali/periskope/internal/workspace"
)

const sessionHelp = `Commands:
  /chats                 list chats
  /open <n|id>           open a chat
  /search <text>         list chats whose name contains text
  /label <id|->          list chats with a label (- for all)
  /assignee <id|->       list chats assigned to a user (- for all)
  /all                   clear filters
  /new <name> @user...   create a chat (users by id or email)
  /file <path> [text]    send a file
  /users                 list users
  /adduser <email> [name] [phone]
  /labels                list labels
  /logout                sign out and leave
  /quit                  leave, staying signed in
Anything else is sent to the open chat.`

// NewSessionCommand creates the interactive session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Interactive chat session with live updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()

			b := bus.New()
			msgs, unsubMsgs := b.Subscribe(bus.KindMessages, 64)
			notes, unsubNotes := b.Subscribe(bus.NamespaceNotify, 16)

			s, err := a.session(ctx, b)
			if err != nil {
				unsubMsgs()
				unsubNotes()
				return err
			}

			r := &repl{
				app:       a,
				s:         s,
				dir:       a.directory(),
				out:       &lockedWriter{w: cmd.OutOrStdout()},
				tokenPath: workspace.TokenPath(a.profile),
				printed:   map[string]bool{},
			}
			r.greet()
			done := make(chan struct{})
			go func() {
				defer close(done)
				r.watch(msgs, notes)
			}()

			err = r.run(ctx, cmd.InOrStdin())
			unsubMsgs()
			unsubNotes()
			<-done
			return err
		},
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func (l *lockedWriter) with(fn func(w io.Writer)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.w)
}

type repl struct {
	app       *app
	s         *chatsync.Synchronizer
	dir       *directory.Directory
	out       *lockedWriter
	tokenPath string

	mu      sync.Mutex
	printed map[string]bool
}

func (r *repl) greet() {
	if me := r.s.CurrentUser(); me != nil {
		r.out.printf("Signed in as %s. /help for commands.\n", me.DisplayName())
	}
	if c := r.s.ActiveChat(); c != nil {
		r.out.printf("# %s\n", c.Name)
	}
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	defer r.s.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := r.handle(ctx, line)
		if err != nil {
			if errors.Is(err, chatsync.ErrSessionClosed) {
				return nil
			}
			r.out.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

// handle runs one input line. Synchronizer failures are reported through
// notifications, so only other errors are returned.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	c, ok := parseCommand(line)
	if !ok {
		_, err := r.s.SendMessage(ctx, line, nil)
		return false, closedOnly(err)
	}

	arg := c.Args
	switch c.Name {
	case "help":
		r.out.printf("%s\n", sessionHelp)
	case "chats":
		r.printChats()
	case "open":
		chat, err := resolveChat(r.s.Chats(), arg)
		if err != nil {
			return false, err
		}
		r.resetPrinted()
		r.out.printf("# %s\n", chat.Name)
		return false, closedOnly(r.s.SelectChat(ctx, chat))
	case "search":
		return false, r.filtered(r.s.Search(ctx, arg))
	case "label":
		return false, r.filtered(r.s.FilterByLabel(ctx, dash(arg)))
	case "assignee":
		return false, r.filtered(r.s.FilterByAssignee(ctx, dash(arg)))
	case "all":
		return false, r.filtered(r.s.ReloadChats(ctx))
	case "new":
		return false, r.newChat(ctx, arg)
	case "file":
		path, caption, _ := strings.Cut(arg, " ")
		if path == "" {
			return false, errors.New("usage: /file <path> [text]")
		}
		up, err := readUpload(path)
		if err != nil {
			return false, err
		}
		_, err = r.s.SendMessage(ctx, strings.TrimSpace(caption), up)
		return false, closedOnly(err)
	case "users":
		if _, err := r.dir.ListUsers(ctx); err != nil {
			return false, err
		}
		r.s.ReloadDirectory(ctx)
		r.out.with(func(w io.Writer) { printUsers(w, r.s.Users()) })
	case "adduser":
		email, fullName, phone := parseAddUser(arg)
		u, err := r.app.addUser(ctx, r.dir, email, fullName, phone)
		if err != nil {
			return false, err
		}
		r.s.ReloadDirectory(ctx)
		r.out.printf("Added %s (%s)\n", u.DisplayName(), u.ID)
	case "labels":
		r.out.with(func(w io.Writer) { printLabels(w, r.s.Labels()) })
	case "logout":
		if err := r.s.Logout(ctx); err != nil {
			r.out.printf("error: %v\n", err)
		}
		if err := workspace.ClearToken(r.tokenPath); err != nil {
			return true, err
		}
		r.out.printf("Signed out.\n")
		return true, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", c.Name)
	}
	return false, nil
}

// parseAddUser splits "<email> [name] [phone]". A trailing word made of
// digits with an optional leading + is taken as the phone number.
func parseAddUser(arg string) (email, fullName, phone string) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return "", "", ""
	}
	email, fields = fields[0], fields[1:]
	if n := len(fields); n > 0 && isPhone(fields[n-1]) {
		phone, fields = fields[n-1], fields[:n-1]
	}
	return email, strings.Join(fields, " "), phone
}

func isPhone(s string) bool {
	digits := strings.TrimPrefix(s, "+")
	if len(digits) < 4 {
		return false
	}
	for _, r := range digits {
		if (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}

func (r *repl) filtered(err error) error {
	if err != nil {
		return closedOnly(err)
	}
	r.printChats()
	return nil
}

func (r *repl) printChats() {
	chats := r.s.Chats()
	r.out.with(func(w io.Writer) { printChats(w, chats) })
}

// newChat parses "<name> @user..." where each user is an id or an email.
func (r *repl) newChat(ctx context.Context, arg string) error {
	var nameParts, ids []string
	users := r.s.Users()
	for _, f := range strings.Fields(arg) {
		ref, ok := strings.CutPrefix(f, "@")
		if !ok {
			nameParts = append(nameParts, f)
			continue
		}
		id := ref
		for _, u := range users {
			if strings.EqualFold(u.Email, ref) {
				id = u.ID
				break
			}
		}
		ids = append(ids, id)
	}
	if len(nameParts) == 0 {
		return errors.New("usage: /new <name> @user...")
	}
	chat, err := r.s.CreateChat(ctx, strings.Join(nameParts, " "), ids)
	if err != nil {
		return closedOnly(err)
	}
	r.resetPrinted()
	r.out.printf("# %s\n", chat.Name)
	return nil
}

// watch prints messages for the open chat and notifications as they arrive.
func (r *repl) watch(msgs, notes <-chan bus.Event) {
	for msgs != nil || notes != nil {
		select {
		case evt, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			list, _ := evt.Payload.([]domain.Message)
			r.printNew(list)
		case evt, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			if n, ok := evt.Payload.(notify.Notification); ok {
				mark := "*"
				if n.Level == notify.LevelError {
					mark = "!"
				}
				r.out.printf("%s %s\n", mark, n.Text())
			}
		}
	}
}

func (r *repl) printNew(list []domain.Message) {
	active := r.s.ActiveChat()
	if active == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range list {
		if m.ChatID != active.ID || r.printed[m.ID] {
			continue
		}
		r.printed[m.ID] = true
		r.out.with(func(w io.Writer) { printMessage(w, m) })
	}
}

func (r *repl) resetPrinted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed = map[string]bool{}
}

func closedOnly(err error) error {
	if errors.Is(err, chatsync.ErrSessionClosed) {
		return err
	}
	return nil
}

func dash(v string) string {
	if v == "-" {
		return ""
	}
	return v
}
