package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/commit"
	"xdao.co/canonproof/hashfmt"
	"xdao.co/canonproof/versioned"
)

func (a *app) contractFlag(cmd *cobra.Command, name string) (canon.Contract, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return a.cfg.ContractValue(), nil
	}
	return canon.ParseContract(strings.ToUpper(v))
}

func (a *app) hashCmd() *cobra.Command {
	var domain string
	var raw, showCID bool
	cmd := &cobra.Command{
		Use:   "hash [file]",
		Short: "Print the content hash of a JSON value (or raw bytes with --raw)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.contractFlag(cmd, "contract")
			if err != nil {
				return err
			}
			var d canon.Digest
			if raw {
				b, err := readInput(cmd, argOrStdin(args))
				if err != nil {
					return err
				}
				d, err = canon.Hash(b, c, domain)
				if err != nil {
					return err
				}
			} else {
				v, err := readJSON(cmd, argOrStdin(args))
				if err != nil {
					return err
				}
				d, err = canon.ComputeContentHash(v, c, domain)
				if err != nil {
					return err
				}
			}
			if showCID {
				id, err := d.CID()
				if err != nil {
					return err
				}
				return writeLine(cmd, d.String()+"\t"+id.String())
			}
			return writeLine(cmd, d.String())
		},
	}
	cmd.Flags().String("contract", "", "hash contract: GOVERNANCE, CANONICALIZATION or PROOFS (default from config)")
	cmd.Flags().StringVar(&domain, "domain", "", "domain prefix mixed into the hash input")
	cmd.Flags().BoolVar(&raw, "raw", false, "hash input bytes as-is instead of canonical JSON")
	cmd.Flags().BoolVar(&showCID, "cid", false, "also print the CIDv1 of the digest")
	return cmd
}

func (a *app) normalizeCmd() *cobra.Command {
	var bare, strict bool
	cmd := &cobra.Command{
		Use:   "normalize <hash>",
		Short: "Normalize a sha256 hash string to its strict form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			if strict {
				check := hashfmt.ValidatePrefixed
				if bare {
					check = hashfmt.ValidateBare
				}
				if err := check(in); err != nil {
					return err
				}
				return writeLine(cmd, in)
			}
			norm := hashfmt.NormalizePrefixed
			if bare {
				norm = hashfmt.NormalizeBare
			}
			out, err := norm(in)
			if err != nil {
				return err
			}
			return writeLine(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&bare, "bare", false, "emit bare hex instead of sha256:<hex>")
	cmd.Flags().BoolVar(&strict, "strict", false, "validate only; reject anything not already strict")
	return cmd
}

func (a *app) hasher(cmd *cobra.Command) (*versioned.Hasher, error) {
	version, _ := cmd.Flags().GetString("version")
	if version == "" {
		version = a.cfg.HashVersion
	}
	c := canon.Canonicalization
	if v, _ := cmd.Flags().GetString("contract"); v != "" {
		var err error
		if c, err = canon.ParseContract(strings.ToUpper(v)); err != nil {
			return nil, err
		}
	}
	return versioned.New(versioned.Config{Current: version, Contract: c})
}

func versionedFlags(cmd *cobra.Command) {
	cmd.Flags().String("version", "", "hash version tag (default from config)")
	cmd.Flags().String("contract", "", "canonical encoding contract (default CANONICALIZATION)")
	cmd.Flags().String("base", "", "chain from this prior versioned hash")
}

func (a *app) vhashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vhash [file]",
		Short: "Print the version-tagged hash of a JSON value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.hasher(cmd)
			if err != nil {
				return err
			}
			v, err := readJSON(cmd, argOrStdin(args))
			if err != nil {
				return err
			}
			base, _ := cmd.Flags().GetString("base")
			out, err := h.HashChained(v, h.Current(), base)
			if err != nil {
				return err
			}
			return writeLine(cmd, out)
		},
	}
	versionedFlags(cmd)
	return cmd
}

func (a *app) vverifyCmd() *cobra.Command {
	var stored string
	cmd := &cobra.Command{
		Use:   "vverify --stored <hash> [file]",
		Short: "Check a JSON value against a stored version-tagged hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.hasher(cmd)
			if err != nil {
				return err
			}
			v, err := readJSON(cmd, argOrStdin(args))
			if err != nil {
				return err
			}
			base, _ := cmd.Flags().GetString("base")
			ok, err := h.VerifyChained(v, stored, base)
			if err != nil {
				return err
			}
			if !ok {
				_ = writeLine(cmd, "MISMATCH")
				return errFailed
			}
			return writeLine(cmd, "OK")
		},
	}
	versionedFlags(cmd)
	cmd.Flags().StringVar(&stored, "stored", "", "stored hash to verify against")
	_ = cmd.MarkFlagRequired("stored")
	return cmd
}

// parseDomain accepts a full literal or its short name, e.g. PROVENANCE_CHAIN.
func parseDomain(s string) (commit.Domain, error) {
	if d, err := commit.ParseDomain(s); err == nil {
		return d, nil
	}
	want := "CANONPROOF::" + strings.ToUpper(s) + "::V1"
	if d, err := commit.ParseDomain(want); err == nil {
		return d, nil
	}
	names := make([]string, 0, len(commit.Domains()))
	for _, d := range commit.Domains() {
		names = append(names, d.String())
	}
	return 0, fmt.Errorf("unknown domain %q (known: %s)", s, strings.Join(names, ", "))
}

func (a *app) commitCmd() *cobra.Command {
	var domain string
	var showPayload bool
	cmd := &cobra.Command{
		Use:   "commit --domain <name> [file]",
		Short: "Print the domain-separated commitment hash of a JSON value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDomain(domain)
			if err != nil {
				return err
			}
			v, err := readJSON(cmd, argOrStdin(args))
			if err != nil {
				return err
			}
			if showPayload {
				b, err := commit.CanonicalPayload(v)
				if err != nil {
					return err
				}
				return writeLine(cmd, string(b))
			}
			h, err := commit.Commit(d, v)
			if err != nil {
				return err
			}
			return writeLine(cmd, h.String())
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "commitment domain, e.g. PROVENANCE_CHAIN")
	cmd.Flags().BoolVar(&showPayload, "payload", false, "print the committed payload bytes instead of the hash")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}
