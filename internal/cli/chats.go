package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kashyapanjali/periskope/internal/client"
	"github.com/kashyapanjali/periskope/internal/domain"
)

// NewChatsCommand creates the chats command group.
func NewChatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List, create and read chats",
	}
	cmd.AddCommand(newChatsListCommand(rootOpts))
	cmd.AddCommand(newChatsNewCommand(rootOpts))
	cmd.AddCommand(newChatsShowCommand(rootOpts))
	return cmd
}

func newChatsListCommand(rootOpts *RootOptions) *cobra.Command {
	var f client.ChatFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your chats, most recent first",
		Long: `List the chats you participate in, most recent activity first.

Filters are applied one at a time: pass at most one of --search, --label
or --assignee.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 0
			for _, v := range []string{f.Search, f.LabelID, f.AssignedTo} {
				if v != "" {
					n++
				}
			}
			if n > 1 {
				return NewExitError(ExitCommandError, "use one of --search, --label or --assignee")
			}

			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireToken(); err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()

			chats, err := a.client.ListChats(ctx, f)
			if err != nil {
				return WrapExitError(ExitFailure, "list chats", err)
			}
			domain.SortChatsByActivity(chats)
			if chats == nil {
				chats = []domain.Chat{}
			}
			return a.out.Print(chats, func(w io.Writer) { printChats(w, chats) })
		},
	}
	cmd.Flags().StringVar(&f.Search, "search", "", "only chats whose name contains text")
	cmd.Flags().StringVar(&f.LabelID, "label", "", "only chats with this label id")
	cmd.Flags().StringVar(&f.AssignedTo, "assignee", "", "only chats assigned to this user id")
	return cmd
}

func newChatsNewCommand(rootOpts *RootOptions) *cobra.Command {
	var with []string
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a chat with you and the given users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireToken(); err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()

			s, err := a.session(ctx, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			chat, err := s.CreateChat(ctx, strings.Join(args, " "), with)
			if err != nil {
				return WrapExitError(ExitFailure, "create chat", err)
			}
			return a.out.Print(chat, func(w io.Writer) {
				fmt.Fprintf(w, "Created chat %s (%s)\n", chat.Name, chat.ID)
			})
		},
	}
	cmd.Flags().StringSliceVar(&with, "with", nil, "user ids to add as participants")
	return cmd
}

func newChatsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <n|chat-id>",
		Short: "Print a chat's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireToken(); err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()

			chats, err := a.client.ListChats(ctx, client.ChatFilter{})
			if err != nil {
				return WrapExitError(ExitFailure, "list chats", err)
			}
			domain.SortChatsByActivity(chats)
			chat, err := resolveChat(chats, args[0])
			if err != nil {
				return err
			}
			msgs, err := a.client.ListMessages(ctx, chat.ID)
			if err != nil {
				return WrapExitError(ExitFailure, "list messages", err)
			}
			if msgs == nil {
				msgs = []domain.Message{}
			}
			return a.out.Print(msgs, func(w io.Writer) {
				fmt.Fprintf(w, "# %s\n", chat.Name)
				for _, m := range msgs {
					printMessage(w, m)
				}
			})
		},
	}
}

// resolveChat finds a chat by its 1-based position in chats, its id or a
// unique id prefix.
func resolveChat(chats []domain.Chat, ref string) (domain.Chat, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(chats) {
			return domain.Chat{}, NewExitError(ExitCommandError, fmt.Sprintf("no chat number %d", n))
		}
		return chats[n-1], nil
	}
	var found []domain.Chat
	for _, c := range chats {
		if c.ID == ref {
			return c, nil
		}
		if ref != "" && strings.HasPrefix(c.ID, ref) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return domain.Chat{}, NewExitError(ExitCommandError, fmt.Sprintf("no chat %q", ref))
	default:
		return domain.Chat{}, NewExitError(ExitCommandError, fmt.Sprintf("chat %q is ambiguous", ref))
	}
}
