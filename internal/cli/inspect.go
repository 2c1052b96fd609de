package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/templatex"
)

func (a *app) newInspectCommand() *cobra.Command {
	var (
		asJSON  bool
		entries bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Show an archive's metadata without verifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}
			info, err := templatex.Inspect(args[0], opts...)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			a.printInfo(&info, entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print metadata as JSON")
	cmd.Flags().BoolVar(&entries, "entries", false, "list every entry")
	return cmd
}

func (a *app) printInfo(info *templatex.Info, entries bool) {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "path:\t%s\n", info.Path)
	if info.ContentType != "" {
		fmt.Fprintf(tw, "content type:\t%s\n", info.ContentType)
	}
	fmt.Fprintf(tw, "files:\t%d\n", info.FileCount())
	fmt.Fprintf(tw, "size:\t%d bytes (%d stored)\n", info.TotalSize(), info.DataSize)
	fmt.Fprintf(tw, "manifest:\t%s\n", info.ManifestDigest)
	if info.DataIntact {
		fmt.Fprintf(tw, "data:\tintact\n")
	} else {
		fmt.Fprintf(tw, "data:\tcorrupt\n")
	}
	if sig := info.Signature; sig != nil {
		fmt.Fprintf(tw, "signature:\t%s by %s at %s\n", sig.Algorithm, sig.Thumbprint, sig.SignedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(tw, "signature:\tnone\n")
	}
	_ = tw.Flush()

	if !entries {
		return
	}
	fmt.Fprintln(a.stdout)
	tw = tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSIZE\tSTORED\tCOMPRESSION")
	for _, e := range info.Entries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", e.Path, e.OriginalSize, e.DataSize, e.Compression)
	}
	_ = tw.Flush()
}
