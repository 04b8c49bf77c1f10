package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/client"
	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/workspace"
)

type credentialOptions struct {
	password string
	name     string
	phone    string
}

// readPassword returns the flag value, or the first line of stdin.
func readPassword(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", NewExitError(ExitCommandError, "password required (--password or stdin)")
	}
	return line, nil
}

// NewSignupCommand creates the signup command.
func NewSignupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentialOptions{}
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()

			password, err := readPassword(cmd, opts.password)
			if err != nil {
				return err
			}
			meta := domain.IdentityMetadata{FullName: opts.name, PhoneNumber: opts.phone}
			if _, err := a.client.SignUp(ctx, args[0], password, meta); err != nil {
				if errors.Is(err, client.ErrRateLimited) {
					return WrapExitError(ExitFailure, "too many sign-ups, try again later", err)
				}
				return WrapExitError(ExitFailure, "sign up", err)
			}
			return login(cmd, a, args[0], password)
		},
	}
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "account password (read from stdin when empty)")
	cmd.Flags().StringVar(&opts.name, "name", "", "full name")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "phone number")
	return cmd
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentialOptions{}
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and store the access token for the profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			password, err := readPassword(cmd, opts.password)
			if err != nil {
				return err
			}
			return login(cmd, a, args[0], password)
		},
	}
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "account password (read from stdin when empty)")
	return cmd
}

func login(cmd *cobra.Command, a *app, email, password string) error {
	ctx, cancel := commandContext(cmd, 0)
	defer cancel()

	ident, err := a.client.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, client.ErrUnauthenticated) {
			return WrapExitError(ExitFailure, "invalid email or password", err)
		}
		return WrapExitError(ExitFailure, "sign in", err)
	}
	if err := workspace.SaveToken(a.tokenPath(), a.client.Token()); err != nil {
		return WrapExitError(ExitFailure, "store token", err)
	}
	return a.out.Print(ident, func(w io.Writer) {
		fmt.Fprintf(w, "Signed in as %s (profile %s)\n", ident.Email, a.profile)
	})
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()

			if a.client.Token() != "" {
				if err := a.client.SignOut(ctx); err != nil && !errors.Is(err, client.ErrUnauthenticated) {
					a.log.Warn("sign out failed; clearing local token anyway", zap.Error(err))
				}
			}
			if err := workspace.ClearToken(a.tokenPath()); err != nil {
				return WrapExitError(ExitFailure, "clear token", err)
			}
			return a.out.Print(map[string]string{"profile": a.profile, "status": "signed_out"}, func(w io.Writer) {
				fmt.Fprintln(w, "Signed out.")
			})
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()

			ident, err := a.client.CurrentIdentity(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "resolve identity", err)
			}
			if ident == nil {
				return NewExitError(ExitCommandError, "not signed in")
			}
			return a.out.Print(ident, func(w io.Writer) {
				fmt.Fprintf(w, "Email:   %s\n", ident.Email)
				fmt.Fprintf(w, "ID:      %s\n", ident.ID)
				fmt.Fprintf(w, "Profile: %s\n", a.profile)
			})
		},
	}
}
