package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/templatex"
)

func (a *app) newExtractCommand() *cobra.Command {
	var (
		noVerify     bool
		keepExisting bool
	)
	cmd := &cobra.Command{
		Use:   "extract <archive> [destination]",
		Short: "Verify and extract an archive",
		Long: `Extract an archive into destination (default: the current directory).

The signature is validated first unless --no-verify is given; an archive
that fails validation is not extracted at all.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}
			var dest string
			if len(args) == 2 {
				dest = args[1]
			}
			if keepExisting {
				opts = append(opts, templatex.ExtractWithOverwrite(false))
			}
			if err := templatex.Extract(cmd.Context(), args[0], dest, !noVerify, opts...); err != nil {
				return err
			}
			if dest == "" {
				dest = "."
			}
			fmt.Fprintf(a.stdout, "extracted %s to %s\n", args[0], dest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip signature validation")
	cmd.Flags().BoolVar(&keepExisting, "keep-existing", false, "do not overwrite existing files")
	return cmd
}
