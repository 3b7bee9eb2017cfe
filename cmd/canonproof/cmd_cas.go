package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/canonproof/storage"
	"xdao.co/canonproof/storage/casregistry"
)

func (a *app) casCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cas", Short: "Store and fetch raw blocks in a CAS backend"}

	put := &cobra.Command{
		Use:   "put [file]",
		Short: "Store bytes and print their CIDv1",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readInput(cmd, argOrStdin(args))
			if err != nil {
				return err
			}
			return a.withCAS(cmd.Context(), func(ctx context.Context, cas storage.CAS) error {
				id, err := cas.Put(ctx, b)
				if err != nil {
					return err
				}
				a.logger.Debug("stored", "cid", id.String(), "backend", a.backend)
				return writeLine(cmd, id.String())
			})
		},
	}
	a.casFlags(put)

	var out string
	get := &cobra.Command{
		Use:   "get <cid>",
		Short: "Fetch a block by CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cid.Decode(args[0])
			if err != nil {
				return fmt.Errorf("invalid cid: %w", err)
			}
			return a.withCAS(cmd.Context(), func(ctx context.Context, cas storage.CAS) error {
				b, err := cas.Get(ctx, id)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = cmd.OutOrStdout().Write(b)
					return err
				}
				return os.WriteFile(out, b, 0o644)
			})
		},
	}
	get.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	a.casFlags(get)

	backends := &cobra.Command{
		Use:   "backends",
		Short: "List CAS backends linked into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, b := range casregistry.List(casregistry.UsageCLI) {
				if b.Description == "" {
					fmt.Fprintln(cmd.OutOrStdout(), b.Name)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", b.Name, b.Description)
			}
			return nil
		},
	}

	cmd.AddCommand(put, get, backends)
	return cmd
}
