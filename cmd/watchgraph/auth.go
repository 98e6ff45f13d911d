package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"watchgraph/pkg/auth"
	"watchgraph/pkg/ui"
)

var loginCookies string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored FurAffinity cookies",
	Long: `Manage cookie profiles used to authenticate watchlist requests.

Profiles are stored in:
  - System keychain (when available)
  - Encrypted file protected by WATCHGRAPH_PASSPHRASE
  - WATCHGRAPH_COOKIES environment variable (read only)

Never share your cookies or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store cookie values for a profile",
	Long: `Store FurAffinity cookie values under a profile name (default "default").

You will be prompted for each cookie value; input is hidden. Leave a value
empty to skip that cookie.`,
	Example: `  # Interactive login for the default profile
  watchgraph auth login

  # Non-interactive
  watchgraph auth login main --cookies "a=...;b=..."`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored profile",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

// showAuthCmd represents the auth show command
var showAuthCmd = &cobra.Command{
	Use:   "show [profile]",
	Short: "Show stored profiles with masked values",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(showAuthCmd)

	loginCmd.Flags().StringVar(&loginCookies, "cookies", "", "cookies as name=value;name=value instead of prompting")
}

func profileArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return "default"
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := profileArg(args)
	out := cmd.OutOrStdout()

	var cookies *auth.CookieSet
	if loginCookies != "" {
		if cookies, err = auth.ParseCookies(loginCookies); err != nil {
			return err
		}
	} else {
		auth.ShowCookieExtractionGuide(out)
		fmt.Fprintln(out)

		in := bufio.NewReader(os.Stdin)
		read := func() (string, error) { return readPassword(in) }
		if cookies, err = promptCookies(out, read); err != nil {
			return err
		}
	}

	if cookies.Len() == 0 {
		return errors.New("no cookie values entered")
	}

	profile := &auth.Profile{Name: name, Cookies: cookies}
	if err := manager.Store(profile); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Profile saved: %s (%s)", name, cookies))
	fmt.Fprintf(out, "\nUse it with:\n  watchgraph collect --profile %s --users-file users.txt\n", name)
	return nil
}

// promptCookies asks for each default cookie name, skipping empty answers
func promptCookies(out io.Writer, read func() (string, error)) (*auth.CookieSet, error) {
	cookies := auth.NewCookieSet()
	for _, name := range auth.DefaultCookieNames {
		fmt.Fprintf(out, "%s cookie value: ", name)
		value, err := read()
		if err != nil {
			return nil, fmt.Errorf("failed to read cookie %s: %w", name, err)
		}
		if value != "" {
			cookies.Set(name, value)
		}
	}
	return cookies, nil
}

// readPassword reads a value without echo when stdin is a terminal
func readPassword(in *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(value)), nil
		}
	}

	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := profileArg(args)
	if err := manager.Delete(name); err != nil {
		return err
	}
	ui.PrintSuccess("Profile removed: " + name)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var profiles []*auth.Profile
	if len(args) > 0 {
		profile, err := manager.Retrieve(profileArg(args))
		if err != nil {
			return err
		}
		profiles = append(profiles, profile)
	} else {
		if profiles, err = manager.List(); err != nil {
			return fmt.Errorf("failed to list profiles: %w", err)
		}
	}

	if len(profiles) == 0 {
		ui.PrintInfo("No stored profiles", "use 'watchgraph auth login' to add one")
		return nil
	}

	out := cmd.OutOrStdout()
	ui.PrintHighlight("Stored Profiles")
	for i, p := range profiles {
		sanitized := auth.SanitizeProfile(p)
		fmt.Fprintf(out, "%d. %s\n", i+1, sanitized.Name)
		for _, ck := range sanitized.Cookies.List() {
			fmt.Fprintf(out, "   %s: %s\n", ck.Name, ck.Value)
		}
		fmt.Fprintf(out, "   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}
