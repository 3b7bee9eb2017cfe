package main

import (
	"context"

	"github.com/spf13/cobra"

	"xdao.co/canonproof/provenance"
	"xdao.co/canonproof/storage"
)

type chainInput struct {
	SketchHash     string                       `json:"sketch_hash"`
	ParentHash     string                       `json:"parent_hash"`
	DeltaHash      string                       `json:"delta_hash"`
	Evidence       []provenance.EvidenceBinding `json:"evidence"`
	CertificateRef string                       `json:"certificate_ref"`
	ClosureHash    string                       `json:"closure_hash"`
}

func (a *app) chainCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "chain", Short: "Build and verify provenance chains"}

	build := &cobra.Command{
		Use:   "build [input.json]",
		Short: "Compute a provenance chain; an empty parent_hash means genesis",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in chainInput
			if err := readInto(cmd, argOrStdin(args), &in); err != nil {
				return err
			}
			if in.ParentHash == "" {
				in.ParentHash = provenance.GenesisParent
			}
			c, err := provenance.Build(provenance.Input{
				SketchHash:     in.SketchHash,
				ParentHash:     in.ParentHash,
				DeltaHash:      in.DeltaHash,
				Evidence:       in.Evidence,
				CertificateRef: in.CertificateRef,
				ClosureHash:    in.ClosureHash,
			})
			if err != nil {
				return err
			}
			return writeCanonical(cmd, c)
		},
	}

	var resolve bool
	verifyCmd := &cobra.Command{
		Use:   "verify [chain.json]",
		Short: "Recompute a chain hash and, with --resolve, fetch every reference from CAS",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c provenance.Chain
			if err := readInto(cmd, argOrStdin(args), &c); err != nil {
				return err
			}
			report := func(rep provenance.Report) error {
				if err := writeReport(cmd, rep); err != nil {
					return err
				}
				if !rep.Outcome.OK() {
					return errFailed
				}
				return nil
			}
			if !resolve {
				return report(provenance.Verify(cmd.Context(), c, nil))
			}
			var rep provenance.Report
			err := a.withCAS(cmd.Context(), func(ctx context.Context, cas storage.CAS) error {
				rep = provenance.Verify(ctx, c, provenance.CASResolver{CAS: cas})
				return nil
			})
			if err != nil {
				return err
			}
			return report(rep)
		},
	}
	verifyCmd.Flags().BoolVar(&resolve, "resolve", false, "resolve references through the CAS backend")
	a.casFlags(verifyCmd)

	cmd.AddCommand(build, verifyCmd)
	return cmd
}
