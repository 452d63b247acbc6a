package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/david/campus-notice/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for /crawl/request, or hash an admin secret.",
	RunE: func(cmd *cobra.Command, args []string) error {
		hashSecret, _ := cmd.Flags().GetString("hash-admin")
		if hashSecret != "" {
			hash, err := auth.HashSecret(hashSecret)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		}

		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set to mint tokens a server will accept")
		}
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		svc, err := auth.NewService(cfg.JWTSecret, cfg.AdminSecret, cfg.AdminSecretHash)
		if err != nil {
			return err
		}
		tok, err := svc.IssueToken(subject, ttl)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringP("subject", "s", "backend", "token subject")
	tokenCmd.Flags().Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	tokenCmd.Flags().String("hash-admin", "", "print the bcrypt hash of this admin secret and exit")
}
