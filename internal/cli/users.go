package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kashyapanjali/periskope/internal/directory"
	"github.com/kashyapanjali/periskope/internal/domain"
)

// NewUsersCommand creates the users command group.
func NewUsersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List and add directory users",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
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

			users, err := a.directory().ListUsers(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "list users", err)
			}
			if users == nil {
				users = []domain.User{}
			}
			return a.out.Print(users, func(w io.Writer) { printUsers(w, users) })
		},
	})

	var name, phone string
	add := &cobra.Command{
		Use:   "add <email>",
		Short: "Create an account and profile for a new user",
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

			u, err := a.addUser(ctx, a.directory(), args[0], name, phone)
			if err != nil {
				if errors.Is(err, directory.ErrInvalidEmail) {
					return WrapExitError(ExitCommandError, "add user", err)
				}
				return WrapExitError(ExitFailure, "add user", err)
			}
			return a.out.Print(u, func(w io.Writer) {
				fmt.Fprintf(w, "Added %s (%s)\n", u.DisplayName(), u.ID)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "full name")
	add.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.AddCommand(add)
	return cmd
}

// NewLabelsCommand creates the labels command group.
func NewLabelsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List and add chat labels",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List labels",
		Args:  cobra.NoArgs,
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

			labels, err := a.client.ListLabels(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "list labels", err)
			}
			if labels == nil {
				labels = []domain.Label{}
			}
			return a.out.Print(labels, func(w io.Writer) { printLabels(w, labels) })
		},
	})

	var color string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a label",
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

			l, err := a.client.InsertLabel(ctx, &domain.Label{Name: args[0], Color: color})
			if err != nil {
				return WrapExitError(ExitFailure, "add label", err)
			}
			return a.out.Print(l, func(w io.Writer) {
				fmt.Fprintf(w, "Added label %s (%s)\n", l.Name, l.ID)
			})
		},
	}
	add.Flags().StringVar(&color, "color", "#888888", "label color")
	cmd.AddCommand(add)
	return cmd
}
