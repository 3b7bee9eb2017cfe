package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/canonproof/keys"
)

func (a *app) keyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "Manage signing seeds in the local key store"}

	var name, seedHex, initAlg string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init --name <name>",
		Short: "Create a root seed (random unless --seed-hex is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := keys.CheckKeyName(name); err != nil {
				return fmt.Errorf("invalid --name: %w", err)
			}
			ks, err := a.cfg.KeyStore()
			if err != nil {
				return err
			}
			var seed []byte
			if seedHex != "" {
				if seed, err = keys.ParseSeedHex(seedHex); err != nil {
					return fmt.Errorf("invalid --seed-hex: %w", err)
				}
			} else {
				seed = make([]byte, ed25519.SeedSize)
				if _, err := rand.Read(seed); err != nil {
					return err
				}
			}
			if initAlg == "" {
				initAlg = a.cfg.Signer.Algorithm
			}
			k, err := ks.InitializeRootKey(name, initAlg, seed, force)
			if err != nil {
				return err
			}
			a.logger.Info("root key created", "path", k.Path, "alg", k.Algorithm)
			return writeLine(cmd, k.PublicKey)
		},
	}
	initCmd.Flags().StringVar(&name, "name", "", "key name")
	initCmd.Flags().StringVar(&seedHex, "seed-hex", "", "seed as 64 hex chars (for reproducible setups)")
	initCmd.Flags().StringVar(&initAlg, "alg", "", "algorithm the key is pinned to: ed25519 or dilithium3 (default from config)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	_ = initCmd.MarkFlagRequired("name")

	var from, role string
	var forceDerive bool
	deriveCmd := &cobra.Command{
		Use:   "derive --from <name> --role <role>",
		Short: "Derive and store a role seed from a root seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := a.cfg.KeyStore()
			if err != nil {
				return err
			}
			k, err := ks.DeriveKeyFromRole(from, role, forceDerive)
			if err != nil {
				return err
			}
			a.logger.Info("role key created", "path", k.Path, "alg", k.Algorithm)
			return writeLine(cmd, k.PublicKey)
		},
	}
	deriveCmd.Flags().StringVar(&from, "from", "", "root key name")
	deriveCmd.Flags().StringVar(&role, "role", "", "role identifier, e.g. release")
	deriveCmd.Flags().BoolVar(&forceDerive, "force", false, "overwrite an existing role key")
	_ = deriveCmd.MarkFlagRequired("from")
	_ = deriveCmd.MarkFlagRequired("role")

	var exportName, exportRole, alg string
	exportCmd := &cobra.Command{
		Use:   "export --name <name> [--role <role>]",
		Short: "Print the public key of a stored seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := a.cfg.KeyStore()
			if err != nil {
				return err
			}
			pub, err := ks.ExportKey(exportName, exportRole, alg)
			if err != nil {
				return err
			}
			return writeLine(cmd, pub)
		},
	}
	exportCmd.Flags().StringVar(&exportName, "name", "", "key name")
	exportCmd.Flags().StringVar(&exportRole, "role", "", "derived role to export")
	exportCmd.Flags().StringVar(&alg, "alg", "", "ed25519 or dilithium3 (default: the algorithm the key is pinned to)")
	_ = exportCmd.MarkFlagRequired("name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys, their roles and public keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := a.cfg.KeyStore()
			if err != nil {
				return err
			}
			entries, err := ks.ListKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s\t%s\n", e.Name, e.PublicKey)
				for _, r := range e.Roles {
					fmt.Fprintf(out, "  - %s\t%s\n", r.Role, r.PublicKey)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, deriveCmd, exportCmd, listCmd)
	return cmd
}
