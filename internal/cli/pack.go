package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/templatex"
	"github.com/meigma/templatex/certstore"
)

func (a *app) newPackCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pack <input>",
		Short: "Pack a directory or file into an unsigned archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}
			out, err := templatex.Pack(cmd.Context(), args[0], output, a.contentType(), opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default: generated in the work directory)")
	cmd.Flags().String(flagContentType, "", "content type recorded in the manifest")
	return cmd
}

func (a *app) newSignCommand() *cobra.Command {
	var (
		output     string
		certPath   string
		passEnv    string
		thumbprint string
	)
	cmd := &cobra.Command{
		Use:   "sign <input>",
		Short: "Pack a directory or file into a signed archive",
		Long: `Pack a directory or file and sign the archive.

The signing certificate comes either from a PKCS#12 file (--cert, with the
passphrase read from the environment variable named by --pass-env) or from
the user and machine certificate stores (--thumbprint).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}
			var ref certstore.Ref
			if certPath != "" {
				var pass certstore.Secret
				if passEnv != "" {
					pass = certstore.Secret(os.Getenv(passEnv))
				}
				ref = certstore.FileRef{Path: certPath, Passphrase: pass}
			} else {
				ref = certstore.ThumbprintRef{Thumbprint: thumbprint}
			}
			out, err := templatex.PackAndSign(cmd.Context(), args[0], output, ref, a.contentType(), opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "archive path (default: generated in the work directory)")
	f.String(flagContentType, "", "content type recorded in the manifest")
	f.StringVar(&certPath, "cert", "", "PKCS#12 credential file")
	f.StringVar(&passEnv, "pass-env", "", "environment variable holding the credential passphrase")
	f.StringVar(&thumbprint, "thumbprint", "", "SHA-1 thumbprint of a certificate in the stores")
	cmd.MarkFlagsMutuallyExclusive("cert", "thumbprint")
	cmd.MarkFlagsOneRequired("cert", "thumbprint")
	return cmd
}
