package ctl

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Print fresh random secrets in dotenv form",
		Args:  cobra.NoArgs,
		// Needs no settings or logger.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 32 {
				return fmt.Errorf("size must be at least 32 bytes")
			}
			out := cmd.OutOrStdout()
			for _, name := range []string{"RECOVERYHUB_SESSION_KEY", "RECOVERYHUB_JWT_SECRET"} {
				key := securecookie.GenerateRandomKey(size)
				if key == nil {
					return errors.New("system random source failed")
				}
				fmt.Fprintf(out, "%s=%s\n", name, hex.EncodeToString(key))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 32, "bytes of randomness per secret")
	return cmd
}
