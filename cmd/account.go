package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/output"
)

func newAuthorizeAccountCmd(a *app) *cobra.Command {
	var dev, staging bool
	c := &cobra.Command{
		Short: "Prompt for an application key and store the authorization",
		Long: `Prompts for a Backblaze applicationKeyId and applicationKey (unless they
are given on the command line).

You can authorize with either the master application key or a normal
application key. To use the master key, give the account ID as the key ID.

The key ID and key may also be given in the environment variables
B2_APPLICATION_KEY_ID and B2_APPLICATION_KEY.

Stores an account auth token in the account info file. The key must allow
listBuckets.`,
	}
	c.Flags().BoolVar(&dev, "dev", false, "")
	c.Flags().BoolVar(&staging, "staging", false, "")
	c.Flags().MarkHidden("dev")
	c.Flags().MarkHidden("staging")
	c.MarkFlagsMutuallyExclusive("dev", "staging")
	pos := withPositionals(c, optional("applicationKeyId"), optional("applicationKey"))

	c.RunE = func(c *cobra.Command, args []string) error {
		bound := pos.bind(args)
		realm := "production"
		switch {
		case dev:
			realm = "dev"
		case staging:
			realm = "staging"
		}
		url, err := a.api.RealmURL(realm)
		if err != nil {
			return err
		}
		a.printer.Print("Using " + url)

		keyID, ok := bound["applicationKeyId"]
		if !ok {
			keyID = a.env.Getenv("B2_APPLICATION_KEY_ID")
		}
		if keyID == "" {
			if keyID, err = a.readLine("Backblaze application key ID: "); err != nil {
				return err
			}
		}
		key, ok := bound["applicationKey"]
		if !ok {
			key = a.env.Getenv("B2_APPLICATION_KEY")
		}
		if key == "" {
			if key, err = a.readSecret("Backblaze application key: "); err != nil {
				return err
			}
		}

		info, err := a.api.AuthorizeAccount(c.Context(), realm, keyID, key)
		if err != nil {
			if clierr.Is(err, clierr.Interrupted) {
				return err
			}
			a.logger.WithError(err).Info("authorization failed")
			return clierr.Wrap(clierr.Domain, errors.Newf("unable to authorize account: %v", err))
		}

		allowed := info.Allowed
		if !allowed.Has("listBuckets") {
			if err := a.api.ClearAccount(); err != nil {
				return err
			}
			return clierr.Domainf("application key has no listBuckets capability, which is required for the b2 command-line tool")
		}
		if allowed.BucketID != nil && allowed.BucketName == nil {
			if err := a.api.ClearAccount(); err != nil {
				return err
			}
			return clierr.Domainf("application key is restricted to bucket id '%s', which no longer exists", *allowed.BucketID)
		}
		return nil
	}
	return c
}

// readLine prompts on stdout and reads one line from stdin.
func (a *app) readLine(prompt string) (string, error) {
	fmt.Fprint(a.env.Stdout, prompt)
	if a.stdin == nil {
		a.stdin = bufio.NewReader(a.env.Stdin)
	}
	line, err := a.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", clierr.Wrap(clierr.Syntax, errors.Wrap(err, "cannot read application key ID"))
	}
	return strings.TrimSpace(line), nil
}

// readSecret prompts for a value without echoing it.
func (a *app) readSecret(prompt string) (string, error) {
	if a.env.ReadSecret != nil {
		return a.env.ReadSecret(prompt)
	}
	fmt.Fprint(a.env.Stdout, prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return a.readLine("")
	}
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(a.env.Stdout)
	if err != nil {
		return "", errors.Wrap(err, "cannot read application key")
	}
	return strings.TrimSpace(string(raw)), nil
}

func newClearAccountCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Erase the stored authorization",
		Long:  "Erases everything in the account info file.",
		RunE: func(*cobra.Command, []string) error {
			return a.api.ClearAccount()
		},
	}
	withPositionals(c)
	return c
}

func newGetAccountInfoCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Show the stored authorization",
		Long: `Shows the account ID, key, auth token, URLs and what capabilities
the current application key has.`,
		RunE: func(*cobra.Command, []string) error {
			info, err := a.api.AccountInfo()
			if err != nil {
				return err
			}
			return a.printer.PrintJSON(map[string]interface{}{
				"accountId":        info.AccountID,
				"allowed":          info.Allowed,
				"applicationKey":   info.ApplicationKey,
				"accountAuthToken": info.AuthToken,
				"apiUrl":           info.APIURL,
				"downloadUrl":      info.DownloadURL,
			}, output.IndentWide)
		},
	}
	withPositionals(c)
	return c
}

func newVersionCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Short: "Print the version number of this tool",
		RunE: func(*cobra.Command, []string) error {
			return a.printer.Print("b2 command line tool, version", version)
		},
	}
	withPositionals(c)
	return c
}
