package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"quicktext/internal/client"
)

const maxContentSize = 50000

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var server string

	root := &cobra.Command{
		Use:           "quicktext",
		Short:         "Share short-lived text and code snippets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultServer := os.Getenv("QUICKTEXT_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	root.PersistentFlags().StringVarP(&server, "server", "s", defaultServer, "server base URL (env QUICKTEXT_URL)")

	newClient := func() *client.Client { return client.New(server, nil) }

	root.AddCommand(
		newShareCmd(newClient),
		newGetCmd(newClient),
		newUpdateCmd(newClient),
	)
	return root
}

func newShareCmd(newClient func() *client.Client) *cobra.Command {
	var params client.CreateParams

	cmd := &cobra.Command{
		Use:   "share [file|-]",
		Short: "Share a file or standard input",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			params.Content = doc.Content
			if !cmd.Flags().Changed("type") {
				params.ContentType = doc.ContentType
			}
			if !cmd.Flags().Changed("lang") {
				params.Language = doc.Language
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			res, err := newClient().Create(ctx, params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Shared as %s\n", res.Code)
			fmt.Fprintf(out, "  %s\n", res.URL)
			fmt.Fprintf(out, "  expires %s (%s)\n", res.ExpiresAt.Local().Format(time.Kitchen), res.Duration)
			if res.HasPassword {
				fmt.Fprintln(out, "  password protected")
			}
			if res.OneTimeAccess {
				fmt.Fprintln(out, "  deleted after first view")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&params.Duration, "duration", "d", "15m", "lifetime: 5m, 15m, 30m or 1h")
	f.StringVarP(&params.Password, "password", "p", "", "require a password to view")
	f.IntVar(&params.MaxViews, "max-views", 0, "delete after this many views (0 = unlimited)")
	f.BoolVar(&params.OneTimeAccess, "one-time", false, "delete after the first view")
	f.StringVar(&params.ContentType, "type", "text", "content type: text or code")
	f.StringVar(&params.Language, "lang", "", "language for code highlighting")
	return cmd
}

func newGetCmd(newClient func() *client.Client) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "get CODE",
		Short: "Print a share's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			share, err := newClient().Retrieve(ctx, args[0], password)
			if errors.Is(err, client.ErrPasswordRequired) {
				return fmt.Errorf("share %s is password protected, use --password", args[0])
			}
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), share.Content)
			fmt.Fprintf(cmd.ErrOrStderr(), "\n-- views: %d, expires %s\n",
				share.Views, share.ExpiresAt.Local().Format(time.Kitchen))
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "share password")
	return cmd
}

func newUpdateCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "update CODE [file|-]",
		Short: "Replace a share's content",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[1:], cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := newClient().Update(ctx, args[0], doc.Content); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated %s\n", args[0])
			return nil
		},
	}
}

func readDocument(args []string, stdin io.Reader) (*client.Document, error) {
	src, err := client.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	return src.Read(stdin, maxContentSize)
}
