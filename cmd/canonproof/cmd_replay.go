package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"

	"github.com/spf13/cobra"

	"xdao.co/canonproof/replay"
)

func (a *app) replayCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "replay", Short: "Capture and check RNG state snapshots"}

	var seedHex string
	state := &cobra.Command{
		Use:   "state [--seed <64hex>]",
		Short: "Print a hashed ChaCha8 state snapshot for a seed (random by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var seed [32]byte
			if seedHex == "" {
				if _, err := rand.Read(seed[:]); err != nil {
					return err
				}
			} else {
				b, err := hex.DecodeString(seedHex)
				if err != nil || len(b) != len(seed) {
					return fmt.Errorf("--seed must be %d hex characters", 2*len(seed))
				}
				copy(seed[:], b)
			}
			snap, err := replay.Capture(mrand.NewChaCha8(seed))
			if err != nil {
				return err
			}
			return writeReport(cmd, snap)
		},
	}
	state.Flags().StringVar(&seedHex, "seed", "", "ChaCha8 seed as 64 hex chars")

	check := &cobra.Command{
		Use:   "check [snapshot.json]",
		Short: "Verify a snapshot's hash against its state and restore it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap replay.Snapshot
			if err := readInto(cmd, argOrStdin(args), &snap); err != nil {
				return err
			}
			if err := snap.Restore(replay.NewChaCha8()); err != nil {
				_ = writeLine(cmd, "CORRUPT")
				a.logger.Debug("snapshot rejected", "error", err)
				return errFailed
			}
			return writeLine(cmd, "OK "+snap.Hash.String())
		},
	}

	cmd.AddCommand(state, check)
	return cmd
}
