package main

import (
	"github.com/spf13/cobra"

	"xdao.co/canonproof/cert"
	"xdao.co/canonproof/keys"
	"xdao.co/canonproof/sign"
)

type signerFlags struct {
	seedHex string
	keyFile string
	name    string
	role    string
	alg     string
}

func (s *signerFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.seedHex, "seed-hex", "", "32-byte signing seed as 64 hex chars")
	cmd.Flags().StringVar(&s.keyFile, "key-file", "", "file holding a hex seed")
	cmd.Flags().StringVar(&s.name, "signer", "", "key store identity (default from config)")
	cmd.Flags().StringVar(&s.role, "signer-role", "", "derived role key of --signer")
	cmd.Flags().StringVar(&s.alg, "alg", "", "signature algorithm: ed25519 or dilithium3 (default from config)")
}

// provider resolves the key capability. No key material at all yields a nil
// provider, which produces unsigned blocks. Store keys sign under their pinned
// algorithm unless --alg asks for another; raw seeds use the configured one.
func (a *app) provider(s signerFlags) (keys.Provider, error) {
	src := keys.SeedSource{Hex: s.seedHex, File: s.keyFile, Name: s.name, Role: s.role, Algorithm: s.alg}
	if src.Hex == "" && src.File == "" && src.Name == "" {
		src.Name, src.Role = a.cfg.Signer.Name, a.cfg.Signer.Role
	}
	if src.Hex == "" && src.File == "" && src.Name == "" {
		return nil, nil
	}
	ks, err := a.cfg.KeyStore()
	if err != nil {
		return nil, err
	}
	if src.Name != "" && src.Hex == "" && src.File == "" {
		return ks.Provider(src.Name, src.Role, src.Algorithm), nil
	}
	if src.Algorithm == "" {
		src.Algorithm = a.cfg.Signer.Algorithm
	}
	k, err := ks.Resolve(src)
	if err != nil {
		return nil, err
	}
	return keys.Static(k), nil
}

func (a *app) signCmd() *cobra.Command {
	var sf signerFlags
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Sign the canonical bytes of a JSON value and print the signature block",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.contractFlag(cmd, "contract")
			if err != nil {
				return err
			}
			p, err := a.provider(sf)
			if err != nil {
				return err
			}
			v, err := readJSON(cmd, argOrStdin(args))
			if err != nil {
				return err
			}
			block, err := sign.Signer{Keys: p, Contract: c}.Sign(v)
			if err != nil {
				return err
			}
			return writeCanonical(cmd, block)
		},
	}
	sf.add(cmd)
	cmd.Flags().String("contract", "", "canonical encoding contract (default from config)")
	return cmd
}

func (a *app) verifySignatureCmd() *cobra.Command {
	var sigPath string
	var requireSigned bool
	cmd := &cobra.Command{
		Use:   "verify-signature --sig <block.json> [file]",
		Short: "Classify a signature block against a JSON payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.contractFlag(cmd, "contract")
			if err != nil {
				return err
			}
			var block sign.SignatureBlock
			if err := readInto(cmd, sigPath, &block); err != nil {
				return err
			}
			v, err := readJSON(cmd, argOrStdin(args))
			if err != nil {
				return err
			}
			st := sign.Verifier{Contract: c}.Status(v, block)
			if err := writeLine(cmd, string(st)); err != nil {
				return err
			}
			switch st {
			case sign.StatusSignedValid:
				return nil
			case sign.StatusUnsigned:
				if !requireSigned && !a.cfg.Strict {
					return nil
				}
			}
			return errFailed
		},
	}
	cmd.Flags().StringVar(&sigPath, "sig", "", "signature block file")
	cmd.Flags().BoolVar(&requireSigned, "require-signed", false, "treat UNSIGNED as a failure")
	cmd.Flags().String("contract", "", "canonical encoding contract (default from config)")
	_ = cmd.MarkFlagRequired("sig")
	return cmd
}

// certInput is the JSON form of cert.Input accepted by `cert build`.
type certInput struct {
	Kind           string             `json:"kind"`
	Domain         string             `json:"domain"`
	TargetHash     string             `json:"target_hash"`
	PolicyHash     string             `json:"policy_hash"`
	ClosureHash    string             `json:"closure_hash"`
	Closure        []cert.ArtifactRef `json:"closure"`
	EvidenceHashes []string           `json:"evidence_hashes"`
	PinnedInputs   map[string]string  `json:"pinned_inputs"`
	SuiteResults   []cert.SuiteResult `json:"suite_results"`
	Anchors        map[string]string  `json:"anchors"`
}

func (c certInput) input() cert.Input {
	return cert.Input{
		Kind:           c.Kind,
		Domain:         c.Domain,
		TargetHash:     c.TargetHash,
		PolicyHash:     c.PolicyHash,
		ClosureHash:    c.ClosureHash,
		Closure:        c.Closure,
		EvidenceHashes: c.EvidenceHashes,
		PinnedInputs:   c.PinnedInputs,
		SuiteResults:   c.SuiteResults,
		Anchors:        c.Anchors,
	}
}

func (a *app) certCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cert", Short: "Build and verify certificates"}

	var sf signerFlags
	build := &cobra.Command{
		Use:   "build [input.json]",
		Short: "Build a certificate from an input document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in certInput
			if err := readInto(cmd, argOrStdin(args), &in); err != nil {
				return err
			}
			p, err := a.provider(sf)
			if err != nil {
				return err
			}
			c, err := cert.Builder{Signer: sign.Signer{Keys: p}}.Build(in.input())
			if err != nil {
				return err
			}
			a.logger.Debug("certificate built", "certificate_id", c.ID)
			return writeCanonical(cmd, c)
		},
	}
	sf.add(build)

	var closurePath string
	var requireSig bool
	verifyCmd := &cobra.Command{
		Use:   "verify [certificate.json]",
		Short: "Re-derive a certificate's identity, signature and closure",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c cert.Certificate
			if err := readInto(cmd, argOrStdin(args), &c); err != nil {
				return err
			}
			opts := cert.VerifyOptions{RequireSignature: requireSig || a.cfg.Strict}
			if closurePath != "" {
				var refs []cert.ArtifactRef
				if err := readInto(cmd, closurePath, &refs); err != nil {
					return err
				}
				opts.Closure = refs
			}
			rep := cert.VerifyCertificate(c, opts)
			if err := writeReport(cmd, rep); err != nil {
				return err
			}
			if !rep.Outcome.OK() {
				return errFailed
			}
			return nil
		},
	}
	verifyCmd.Flags().StringVar(&closurePath, "closure", "", "JSON list of {artifact_id, digest} to check closure_hash against")
	verifyCmd.Flags().BoolVar(&requireSig, "require-signature", false, "fail unsigned certificates")

	cmd.AddCommand(build, verifyCmd)
	return cmd
}
