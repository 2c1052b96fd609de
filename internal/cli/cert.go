package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/templatex"
)

func (a *app) newCertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cert <thumbprint>",
		Short: "Look a certificate up in the certificate stores",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}
			cert, err := templatex.LoadCertificateByThumbprint(args[0], opts...)
			if err != nil {
				return err
			}
			if cert == nil {
				return fmt.Errorf("%w: %s", templatex.ErrSignCertNotFound, args[0])
			}
			leaf := cert.Leaf
			fmt.Fprintf(a.stdout, "thumbprint:  %s\n", cert.Thumbprint())
			fmt.Fprintf(a.stdout, "subject:     %s\n", leaf.Subject)
			fmt.Fprintf(a.stdout, "issuer:      %s\n", leaf.Issuer)
			fmt.Fprintf(a.stdout, "not before:  %s\n", leaf.NotBefore.Format(time.RFC3339))
			fmt.Fprintf(a.stdout, "not after:   %s\n", leaf.NotAfter.Format(time.RFC3339))
			fmt.Fprintf(a.stdout, "private key: %t\n", cert.HasPrivateKey())
			if cert.Source != "" {
				fmt.Fprintf(a.stdout, "source:      %s\n", cert.Source)
			}
			return nil
		},
	}
}
