package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	app "github.com/okian/pepai/internal/app"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/internal/share"
	"github.com/okian/pepai/pkg/logger"
)

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Encode and decode session share links",
	}
	cmd.AddCommand(newShareEncodeCmd(), newShareDecodeCmd())
	return cmd
}

func newShareEncodeCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "encode [session.json]",
		Short: "Compress a session into a share payload",
		Long:  "Reads a session as JSON from the file argument or stdin and prints its share payload, or a full link when --base-url is set.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			payload, err := encodeSession(in)
			if err != nil {
				return err
			}
			if baseURL != "" {
				payload = strings.TrimRight(baseURL, "/") + "/?data=" + url.QueryEscape(payload)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), payload)
			return err
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "print a full link on this client URL")
	return cmd
}

func encodeSession(r io.Reader) (string, error) {
	var s session.Session
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	return share.Compress(s)
}

func newShareDecodeCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "decode <link>",
		Short: "Print the session behind a share link",
		Long:  "Accepts a full share URL, a query string or a raw payload. Links with an id are read from the configured store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := decodeLink(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), format, s)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json or yaml")
	return cmd
}

func decodeLink(ctx context.Context, link string) (session.Session, error) {
	id, data := share.ParseLink(link)
	if id == "" {
		return share.Decompress(data)
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return session.Session{}, err
	}
	st, err := app.OpenStore(ctx, cfg, logger.Get())
	if err != nil {
		return session.Session{}, err
	}
	defer st.Close()

	shared, err := st.GetShared(ctx, id)
	if err != nil {
		return session.Session{}, fmt.Errorf("shared session %s: %w", id, err)
	}
	return shared.Session, nil
}
