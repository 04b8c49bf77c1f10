package cli

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kashyapanjali/periskope/internal/blob"
	chatsync "github.com/kashyapanjali/periskope/internal/sync"
)

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "send <n|chat-id> [text...]",
		Short: "Send a message, optionally with a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()

			content := strings.Join(args[1:], " ")
			var up *chatsync.Upload
			if file != "" {
				if up, err = readUpload(file); err != nil {
					return err
				}
			}
			if strings.TrimSpace(content) == "" && up == nil {
				return NewExitError(ExitCommandError, "nothing to send")
			}

			s, err := a.session(ctx, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			chat, err := resolveChat(s.Chats(), args[0])
			if err != nil {
				return err
			}
			if err := s.SelectChat(ctx, chat); err != nil {
				return WrapExitError(ExitFailure, "open chat", err)
			}
			msg, err := s.SendMessage(ctx, content, up)
			if err != nil {
				return WrapExitError(ExitFailure, "send message", err)
			}
			return a.out.Print(msg, func(w io.Writer) {
				fmt.Fprintf(w, "Sent to %s (%s)\n", chat.Name, msg.ID)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "attach a file")
	return cmd
}

func readUpload(path string) (*chatsync.Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read file", err)
	}
	if info.Size() > blob.MaxObjectSize {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s is larger than %d bytes", path, blob.MaxObjectSize))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read file", err)
	}
	return &chatsync.Upload{
		Name:        filepath.Base(path),
		Data:        data,
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
	}, nil
}
