package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesa-ayuda/helpdesk-service/internal/config"
	"github.com/mesa-ayuda/helpdesk-service/internal/glpi"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "glpi-check",
		Short: "Verify GLPI API connectivity using the configured credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			client, err := glpi.NewClient(cfg.Glpi)
			if err != nil {
				if errors.Is(err, glpi.ErrNotConfigured) {
					return errors.New("set GLPI_API_URL, GLPI_APP_TOKEN and GLPI_USER_TOKEN")
				}
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			info, err := client.InitSession(ctx)
			if err != nil {
				return fmt.Errorf("init session: %w", err)
			}
			defer func() {
				if err := client.KillSession(ctx, info.SessionToken); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: kill session: %v\n", err)
				}
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "GLPI session established\n")
			fmt.Fprintf(cmd.OutOrStdout(), "  user id:   %d\n", info.GlpiID)
			fmt.Fprintf(cmd.OutOrStdout(), "  user name: %s\n", info.GlpiName)
			if info.GlpiRealName != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  real name: %s\n", info.GlpiRealName)
			}
			return nil
		},
		SilenceUsage: true,
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
