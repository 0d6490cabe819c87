package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskwing/deskwing/internal/auth"
	"github.com/deskwing/deskwing/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		userID    string
		channel   string
		adapterID string
		expiresIn string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed JWT for an operator or a channel adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(userID, channel, adapterID, expiresIn)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "operator user id")
	cmd.Flags().StringVar(&channel, "channel", "", "adapter channel (email, chat or web_form)")
	cmd.Flags().StringVar(&adapterID, "adapter-id", "", "adapter id, required with --channel")
	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "token lifetime, defaults to auth.jwt_expires_in")
	return cmd
}

func runToken(userID, channel, adapterID, expiresIn string) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	signed, expiresAt, err := mintToken(cfg, userID, channel, adapterID, expiresIn)
	if err != nil {
		return err
	}

	fmt.Println(signed)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func mintToken(cfg config.Config, userID, channel, adapterID, expiresIn string) (string, time.Time, error) {
	if expiresIn == "" {
		expiresIn = cfg.Auth.JWTExpiresIn
	}
	ttl, err := time.ParseDuration(expiresIn)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse expires-in: %w", err)
	}

	switch {
	case userID != "" && channel == "" && adapterID == "":
		return auth.GenerateToken(userID, cfg.Auth.JWTSecret, ttl)
	case userID == "" && channel != "" && adapterID != "":
		info := auth.AdapterToken{Channel: channel, AdapterID: adapterID}
		return auth.GenerateAdapterToken(info, cfg.Auth.JWTSecret, ttl)
	default:
		return "", time.Time{}, fmt.Errorf("pass either --user or both --channel and --adapter-id")
	}
}
