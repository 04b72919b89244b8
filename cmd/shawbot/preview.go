package main

import (
	"errors"
	"fmt"
	"io/fs"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"shawbot/internal/app"
	"shawbot/internal/document"
	"shawbot/internal/segment"
)

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <document>",
		Short: "Print the fragments a document would be published as",
		Long: `Preview loads one document with the configured segmenter and prints every
fragment with its length. When the config file does not exist the defaults
are used. A document that fails to load makes the command exit non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := previewLoader(cmd)
			if err != nil {
				return err
			}
			doc, err := loader.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  tag=%s  fragments=%d  fingerprint=%s\n",
				doc.Path, doc.Tag, len(doc.Fragments), doc.FingerprintHex())
			for i, f := range doc.Fragments {
				fmt.Fprintf(out, "%4d  %3d  %s\n", i, utf8.RuneCountInString(f), f)
			}
			return nil
		},
	}
	cmd.Flags().Int("max-len", 0, "override feed.max_len")
	cmd.Flags().String("overlong", "", "override feed.overlong (split or reject)")
	return cmd
}

func previewLoader(cmd *cobra.Command) (*document.Loader, error) {
	maxLen, _ := cmd.Flags().GetInt("max-len")
	overlong, _ := cmd.Flags().GetString("overlong")

	cfg, err := loadConfig(cmd)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		policy, perr := segment.ParsePolicy(overlong)
		if perr != nil {
			return nil, perr
		}
		return document.NewLoader(segment.New(maxLen, segment.DefaultMarker, policy), document.DefaultTagMarker), nil
	case err != nil:
		return nil, err
	}
	if maxLen > 0 {
		cfg.Feed.MaxLen = maxLen
	}
	if overlong != "" {
		cfg.Feed.Overlong = overlong
	}
	return app.NewLoader(cfg)
}
