package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quillnotes/quillsync/internal/api"
	"github.com/quillnotes/quillsync/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize this device with the note server",
		Long: `Start the device code login flow.

Prints a short code and a verification URL; open the URL in any browser,
enter the code, and the command completes once the server confirms.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runLogin,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	// Login bootstraps before a config file may exist, so it resolves
	// settings itself and only requires the server URL.
	settings, err := resolveLoginSettings(cc)
	if err != nil {
		return err
	}

	if mkErr := os.MkdirAll(filepath.Dir(settings.TokenPath), 0o700); mkErr != nil {
		return fmt.Errorf("creating data directory: %w", mkErr)
	}

	_, err = api.Login(cmd.Context(), settings.ServerURL, settings.TokenPath, func(da api.DeviceAuth) {
		fmt.Printf("To authorize this device, open:\n\n    %s\n\nand enter the code: %s\n\n", da.VerificationURI, da.UserCode)
		fmt.Println("Waiting for authorization...")
	}, cc.Logger)
	if err != nil {
		return err
	}

	fmt.Println("Logged in. Credentials saved to", settings.TokenPath)

	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Remove saved credentials",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			settings, err := resolveLoginSettings(cc)
			if err != nil {
				return err
			}

			if delErr := tokenfile.Delete(settings.TokenPath); delErr != nil {
				return fmt.Errorf("removing credentials: %w", delErr)
			}

			fmt.Println("Logged out.")

			return nil
		},
	}
}
