package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/canonproof/bundle"
	"xdao.co/canonproof/cert"
	"xdao.co/canonproof/commit"
	"xdao.co/canonproof/provenance"
	"xdao.co/canonproof/storage"
)

func (a *app) bundleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "bundle", Short: "Assemble, move and verify verification bundles"}
	cmd.AddCommand(
		a.bundlePackCmd(),
		a.bundleVerifyCmd(),
		a.bundleExportCmd(),
		a.bundleImportCmd(),
		a.bundlePublishCmd(),
		a.bundleFetchCmd(),
	)
	return cmd
}

// loadBundle reads a bundle directory or archive file.
func loadBundle(ctx context.Context, path string) (bundle.Bundle, commit.CommitmentHash, error) {
	info, err := os.Stat(path)
	if err != nil {
		return bundle.Bundle{}, commit.CommitmentHash{}, err
	}
	if info.IsDir() {
		return bundle.FromDirectory(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return bundle.Bundle{}, commit.CommitmentHash{}, err
	}
	defer f.Close()
	return bundle.ReadArchive(ctx, f, nil)
}

func (a *app) bundlePackCmd() *cobra.Command {
	var certPath, chainPath, promotedPath, revocationPath, out, asOf string
	var revokedCerts, revokedOps []string
	cmd := &cobra.Command{
		Use:   "pack --certificate <file> --chain <file> --out <dir>",
		Short: "Write a bundle directory from a certificate and its provenance chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var c cert.Certificate
			if err := readInto(cmd, certPath, &c); err != nil {
				return err
			}
			var ch provenance.Chain
			if err := readInto(cmd, chainPath, &ch); err != nil {
				return err
			}
			b := bundle.Bundle{
				Certificate: bundle.ProjectCertificate(c),
				Provenance:  bundle.ProjectProvenance(ch),
				Revocation:  bundle.NewRevocationSnapshot(asOf, revokedCerts, revokedOps),
			}
			if revocationPath != "" {
				var r bundle.RevocationSnapshot
				if err := readInto(cmd, revocationPath, &r); err != nil {
					return err
				}
				b.Revocation = bundle.NewRevocationSnapshot(r.AsOf, r.RevokedCertificates, r.RevokedOperators)
			}
			if promotedPath != "" {
				var p bundle.PromotedArtifact
				if err := readInto(cmd, promotedPath, &p); err != nil {
					return err
				}
				b.Promoted = &p
			}
			h, err := bundle.ToDirectory(b, out)
			if err != nil {
				return err
			}
			a.logger.Info("bundle written", "path", out, "bundle_hash", h.String())
			return writeLine(cmd, h.String())
		},
	}
	f := cmd.Flags()
	f.StringVar(&certPath, "certificate", "", "certificate JSON")
	f.StringVar(&chainPath, "chain", "", "provenance chain JSON")
	f.StringVar(&promotedPath, "promoted", "", "optional promoted artifact JSON")
	f.StringVar(&revocationPath, "revocation", "", "revocation snapshot JSON (overrides --revoked-*)")
	f.StringVar(&asOf, "as-of", "", "revocation snapshot label, e.g. an RFC 3339 time")
	f.StringSliceVar(&revokedCerts, "revoked-cert", nil, "revoked certificate id (repeatable)")
	f.StringSliceVar(&revokedOps, "revoked-operator", nil, "revoked operator public key (repeatable)")
	f.StringVar(&out, "out", "", "destination directory (must not exist)")
	for _, name := range []string{"certificate", "chain", "out"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) bundleVerifyCmd() *cobra.Command {
	var certPath, expected, manifestCID string
	var resolve, requireSig bool
	cmd := &cobra.Command{
		Use:   "verify [dir|archive.tar]",
		Short: "Verify a bundle directory, archive, or published manifest (--cid)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (manifestCID == "") {
				return fmt.Errorf("give exactly one of a path or --cid")
			}
			opts := bundle.VerifyOptions{ExpectedHash: expected, RequireSignature: requireSig || a.cfg.Strict}
			if certPath != "" {
				var c cert.Certificate
				if err := readInto(cmd, certPath, &c); err != nil {
					return err
				}
				opts.Certificate = &c
			}

			var rep bundle.Report
			run := func(ctx context.Context, cas storage.CAS) error {
				var b bundle.Bundle
				var err error
				if manifestCID != "" {
					id, perr := cid.Decode(manifestCID)
					if perr != nil {
						return perr
					}
					b, _, err = bundle.Load(ctx, cas, id)
				} else {
					b, _, err = loadBundle(ctx, args[0])
				}
				if err != nil {
					return err
				}
				if resolve {
					opts.Resolver = provenance.CASResolver{CAS: cas}
				}
				rep = bundle.Verify(ctx, b, opts)
				return nil
			}
			var err error
			if resolve || manifestCID != "" {
				err = a.withCAS(cmd.Context(), run)
			} else {
				err = run(cmd.Context(), nil)
			}
			if err != nil {
				return err
			}
			if err := writeReport(cmd, rep); err != nil {
				return err
			}
			if !rep.Outcome.OK() {
				return errFailed
			}
			if rep.CertificateRevoked || rep.OperatorRevoked {
				a.logger.Warn("bundle certificate revoked", "bundle_hash", rep.BundleHash,
					"certificate", rep.CertificateRevoked, "operator", rep.OperatorRevoked)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&certPath, "certificate", "", "full certificate to check against the projection")
	f.StringVar(&expected, "expected", "", "expected bundle hash")
	f.StringVar(&manifestCID, "cid", "", "load the bundle from CAS by manifest CID")
	f.BoolVar(&resolve, "resolve", false, "resolve provenance references through the CAS backend")
	f.BoolVar(&requireSig, "require-signature", false, "fail unsigned certificates (with --certificate)")
	a.casFlags(cmd)
	return cmd
}

func (a *app) bundleExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <dir> --out <archive.tar>",
		Short: "Write a bundle directory as a deterministic tar archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := bundle.FromDirectory(args[0])
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			h, err := bundle.WriteArchive(cmd.Context(), &buf, b)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			a.logger.Info("bundle archived", "path", out, "bundle_hash", h.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "archive path (default stdout)")
	return cmd
}

func (a *app) bundleImportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "import <archive.tar> --out <dir>",
		Short: "Unpack a bundle archive into a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, argOrStdin(args))
			if err != nil {
				return err
			}
			b, _, err := bundle.ReadArchive(cmd.Context(), bytes.NewReader(raw), nil)
			if err != nil {
				return err
			}
			h, err := bundle.ToDirectory(b, out)
			if err != nil {
				return err
			}
			return writeLine(cmd, h.String())
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination directory (must not exist)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) bundlePublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <dir|archive.tar>",
		Short: "Store every bundle file in CAS and print the manifest CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCAS(cmd.Context(), func(ctx context.Context, cas storage.CAS) error {
				b, h, err := loadBundle(ctx, args[0])
				if err != nil {
					return err
				}
				id, err := bundle.Publish(ctx, cas, b)
				if err != nil {
					return err
				}
				a.logger.Info("bundle published", "cid", id.String(), "bundle_hash", h.String())
				return writeLine(cmd, id.String())
			})
		},
	}
	a.casFlags(cmd)
	return cmd
}

func (a *app) bundleFetchCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "fetch <manifest-cid> --out <dir>",
		Short: "Load a published bundle from CAS into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cid.Decode(args[0])
			if err != nil {
				return err
			}
			return a.withCAS(cmd.Context(), func(ctx context.Context, cas storage.CAS) error {
				b, _, err := bundle.Load(ctx, cas, id)
				if err != nil {
					return err
				}
				h, err := bundle.ToDirectory(b, out)
				if err != nil {
					return err
				}
				return writeLine(cmd, h.String())
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination directory (must not exist)")
	_ = cmd.MarkFlagRequired("out")
	a.casFlags(cmd)
	return cmd
}
