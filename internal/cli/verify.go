package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/templatex"
)

func (a *app) newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <archive>",
		Short: "Check an archive's signature",
		Long: `Recompute an archive's content digest and check its signature against
the certificate stores. Exits with status 2 when the archive is not validly
signed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}
			res, err := templatex.Verify(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			if !res.Valid {
				fmt.Fprintf(a.stdout, "INVALID: %s\n", res.Reason)
				return &ExitError{Code: ExitInvalid}
			}
			fmt.Fprintf(a.stdout, "OK: signed by %s (%s) at %s\n",
				res.Thumbprint, res.Algorithm, res.SignedAt.Format(time.RFC3339))
			if res.Signer != nil {
				fmt.Fprintf(a.stdout, "subject: %s\n", res.Signer.Leaf.Subject)
			}
			fmt.Fprintf(a.stdout, "digest: %s\n", res.ContentDigest)
			return nil
		},
	}
}
