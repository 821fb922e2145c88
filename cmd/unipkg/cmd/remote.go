package cmd

import (
	"github.com/spf13/cobra"

	"github.com/aweris/unipkg"
	"github.com/aweris/unipkg/internal/compression"
	"github.com/aweris/unipkg/internal/remote"
)

// remote opens ref, or the configured remote when ref is empty.
func (e *env) remote(ref string, c *compression.Compressor) (*remote.OCIRemote, error) {
	if ref == "" {
		ref = e.cfg.Remote
	}
	if ref == "" {
		return nil, unipkg.ErrNoRemote
	}

	r, err := remote.NewOCIRemote(ref, remote.NewEnvAuthenticator(), c)
	if err != nil {
		return nil, err
	}
	r.SetLogger(e.log)
	return r, nil
}

// packageRef returns the package named in args, or the configured one.
func (e *env) packageRef(args []string) (string, error) {
	if ref := firstArg(args); ref != "" {
		return ref, nil
	}
	pkg, err := e.cfg.NamedPackage()
	if err != nil {
		return "", err
	}
	return pkg.Ref(), nil
}

func (e *env) packageFlag(cmd *cobra.Command) (string, error) {
	ref, _ := cmd.Flags().GetString("package")
	if ref != "" {
		return ref, nil
	}
	return e.packageRef(nil)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
