package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/audiolibrelab/micmagic/internal/auth"

	"github.com/spf13/cobra"
)

const passwordEnv = "MICMAGIC_PASSWORD"

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in on this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		username, _ := cmd.Flags().GetString("username")

		a, err := openAccounts(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		resp, err := a.accounts.Register(cmd.Context(), auth.RegisterRequest{Email: email, Password: password, Username: username})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		if err := a.tokens.Save(resp.Token); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Welcome %s, you are signed in\n", resp.User.Username)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in on this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		a, err := openAccounts(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		resp, err := a.accounts.Login(cmd.Context(), auth.LoginRequest{Email: email, Password: password})
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if err := a.tokens.Save(resp.Token); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", resp.User.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out on this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens := auth.TokenFile{Path: cfg.Auth.TokenFile}
		if err := tokens.Remove(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openAccounts(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		claims, err := a.identity.Claims()
		if err != nil {
			return err
		}
		user, err := a.accounts.Profile(cmd.Context(), claims.OwnerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", user.Username, user.Email)
		fmt.Fprintf(cmd.OutOrStdout(), "id: %s\n", user.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "token expires: %s\n", claims.ExpiresAt.Time.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or change the account profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, user, err := signedInUser(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())
		printProfile(cmd.OutOrStdout(), user)
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the username, notification setting or image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, user, err := signedInUser(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		p := user.Profile()
		if cmd.Flags().Changed("username") {
			p.Username, _ = cmd.Flags().GetString("username")
		}
		if cmd.Flags().Changed("notifications") {
			p.Notifications, _ = cmd.Flags().GetBool("notifications")
		}
		if cmd.Flags().Changed("image") {
			p.ImageURI, _ = cmd.Flags().GetString("image")
		}
		updated, err := a.accounts.UpdateProfile(cmd.Context(), user.ID, p)
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		printProfile(cmd.OutOrStdout(), updated)
		return nil
	},
}

func signedInUser(cmd *cobra.Command) (*app, auth.User, error) {
	a, err := openAccounts(cmd.Context())
	if err != nil {
		return nil, auth.User{}, err
	}
	owner, err := a.identity.CurrentOwnerID(cmd.Context())
	if err != nil {
		_ = a.Close(context.Background())
		return nil, auth.User{}, err
	}
	user, err := a.accounts.Profile(cmd.Context(), owner)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, auth.User{}, err
	}
	return a, user, nil
}

func printProfile(w io.Writer, u auth.User) {
	fmt.Fprintf(w, "username: %s\n", u.Username)
	fmt.Fprintf(w, "email: %s\n", u.Email)
	fmt.Fprintf(w, "notifications: %t\n", u.Notifications)
	if u.ImageURI != "" {
		fmt.Fprintf(w, "image: %s\n", u.ImageURI)
	}
}

// readPassword takes the password from the environment, or the first line of
// stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("password is required (or set %s)", passwordEnv)
	}
	return pw, nil
}

func init() {
	registerCmd.Flags().String("email", "", "account email")
	registerCmd.Flags().String("username", "", "display name (default is the part of the email before @)")
	_ = registerCmd.MarkFlagRequired("email")

	loginCmd.Flags().String("email", "", "account email")
	_ = loginCmd.MarkFlagRequired("email")

	profileSetCmd.Flags().String("username", "", "new username")
	profileSetCmd.Flags().Bool("notifications", true, "receive notifications")
	profileSetCmd.Flags().String("image", "", "profile image URI")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}
