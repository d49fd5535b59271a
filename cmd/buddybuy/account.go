package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/erazemk/buddybuy/internal/remote"
	"github.com/erazemk/buddybuy/internal/session"
)

var signupCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Create an account and sign in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFlag(cmd)
		if err != nil {
			return err
		}
		id, err := current.sessions.SignUp(cmd.Context(), args[0], password)
		if err != nil {
			return fmt.Errorf("signing up: %w", err)
		}
		color.Green("Signed up as %s", id.Email)
		current.waitInitialSync(cmd.Context())
		return nil
	},
}

var signinCmd = &cobra.Command{
	Use:     "signin <email>",
	Aliases: []string{"login"},
	Short:   "Sign in to an existing account",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFlag(cmd)
		if err != nil {
			return err
		}
		id, err := current.sessions.SignIn(cmd.Context(), args[0], password)
		if err != nil {
			return fmt.Errorf("signing in: %w", err)
		}
		color.Green("Signed in as %s", id.Email)

		if current.waitInitialSync(cmd.Context()) {
			fmt.Printf("%d items\n", current.engine.Stats().Total)
		} else {
			color.Yellow("Could not sync with the server, showing items saved on this device")
		}
		return nil
	},
}

var signoutCmd = &cobra.Command{
	Use:     "signout",
	Aliases: []string{"logout"},
	Short:   "Sign out on this device",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pending := current.engine.Stats().Pending; pending > 0 {
			color.Yellow("%d changes were not synced yet and stay on this device until you sign in again", pending)
		}
		if err := current.sessions.SignOut(cmd.Context()); err != nil {
			if errors.Is(err, session.ErrNotSignedIn) {
				fmt.Println("Not signed in")
				return nil
			}
			return err
		}
		color.Green("Signed out")
		return nil
	},
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the account password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := current.requireUser(); err != nil {
			return err
		}

		in := bufio.NewReader(cmd.InOrStdin())
		oldPassword, _ := cmd.Flags().GetString("current")
		newPassword, _ := cmd.Flags().GetString("new")
		var err error
		if oldPassword == "" {
			if oldPassword, err = prompt(cmd, in, "Current password"); err != nil {
				return err
			}
		}
		if newPassword == "" {
			if newPassword, err = prompt(cmd, in, "New password"); err != nil {
				return err
			}
		}

		if err := current.client.ChangePassword(cmd.Context(), oldPassword, newPassword); err != nil {
			if errors.Is(err, remote.ErrUnauthorized) {
				return errors.New("current password is incorrect")
			}
			return err
		}
		color.Green("Password changed")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id := current.sessions.Current()
		if id == nil {
			color.Yellow("Not signed in")
			return nil
		}
		fmt.Println(id.Email)
		fmt.Printf("  User ID: %s\n", id.ID)
		fmt.Printf("  Server:  %s\n", cfg.Server)
		return nil
	},
}

// passwordFlag returns --password, or prompts for it on stdin when the flag
// is not set.
func passwordFlag(cmd *cobra.Command) (string, error) {
	password, _ := cmd.Flags().GetString("password")
	if password != "" {
		return password, nil
	}
	return prompt(cmd, bufio.NewReader(cmd.InOrStdin()), "Password")
}

func prompt(cmd *cobra.Command, r *bufio.Reader, label string) (string, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
	return readLine(r)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

func init() {
	for _, cmd := range []*cobra.Command{signupCmd, signinCmd} {
		cmd.Flags().StringP("password", "p", "", "account password (read from stdin when omitted)")
	}
	passwdCmd.Flags().String("current", "", "current password (prompted when omitted)")
	passwdCmd.Flags().String("new", "", "new password (prompted when omitted)")
	rootCmd.AddCommand(signupCmd, signinCmd, signoutCmd, passwdCmd, whoamiCmd)
}
