// Command canonproof hashes, commits, signs, certifies and verifies
// artifacts from the command line. JSON is read from a file argument or
// stdin; artifacts are written as canonical bytes, reports as indented JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/internal/config"
	"xdao.co/canonproof/internal/logging"
	"xdao.co/canonproof/storage"
	"xdao.co/canonproof/storage/casconfig"
	"xdao.co/canonproof/storage/casregistry"

	_ "xdao.co/canonproof/storage/badgercas"
	_ "xdao.co/canonproof/storage/grpccas"
	_ "xdao.co/canonproof/storage/localfs"
	_ "xdao.co/canonproof/storage/s3cas"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// errFailed marks a command that ran but whose verification did not pass.
var errFailed = errors.New("verification failed")

type app struct {
	configPath string
	logFormat  string
	logLevel   string
	backend    string
	casConfig  string

	cfg    config.Config
	logger *slog.Logger
}

func execute(args []string, in io.Reader, out, errOut io.Writer) int {
	a := &app{}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFailed):
		return 1
	default:
		if a.logger != nil {
			a.logger.Error("command failed", "error", err)
		} else {
			fmt.Fprintln(errOut, err)
		}
		return 2
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "canonproof",
		Short:         "Canonical hashing, commitments, certificates and verification bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetGlobalNormalizationFunc(dashFlags)
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvConfig+")")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: json or text")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		a.hashCmd(),
		a.normalizeCmd(),
		a.vhashCmd(),
		a.vverifyCmd(),
		a.commitCmd(),
		a.signCmd(),
		a.verifySignatureCmd(),
		a.certCmd(),
		a.chainCmd(),
		a.bundleCmd(),
		a.keyCmd(),
		a.casCmd(),
		a.replayCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// dashFlags lets --cas_config and --cas-config name the same flag.
func dashFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// casFlags adds --backend, --cas-config and every registered backend flag.
func (a *app) casFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.backend, "backend", "localfs", "CAS backend name")
	cmd.Flags().StringVar(&a.casConfig, "cas-config", "", "multi-backend CAS config file (YAML or JSON)")
	gfs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	casregistry.RegisterFlags(gfs, casregistry.UsageCLI)
	cmd.Flags().AddGoFlagSet(gfs)
}

func (a *app) openCAS() (storage.CAS, func() error, error) {
	path := a.casConfig
	if path == "" {
		path = a.cfg.CASConfig
	}
	if path != "" {
		c, err := casconfig.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		return c.Open(casregistry.UsageCLI, "")
	}
	return casregistry.Open(a.backend, casregistry.UsageCLI)
}

func (a *app) withCAS(ctx context.Context, fn func(context.Context, storage.CAS) error) error {
	cas, closeFn, err := a.openCAS()
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				a.logger.Warn("close CAS", "error", err)
			}
		}()
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	return fn(ctx, cas)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func argOrStdin(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return args[0]
}

// readJSON decodes input preserving number literals.
func readJSON(cmd *cobra.Command, path string) (any, error) {
	raw, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	return decodeJSON(raw)
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid JSON: trailing data")
	}
	return v, nil
}

func readInto(cmd *cobra.Command, path string, v any) error {
	raw, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%s: %w", displayName(path), err)
	}
	return nil
}

func displayName(path string) string {
	if path == "" || path == "-" {
		return "stdin"
	}
	return path
}

// writeCanonical prints v as CANONICALIZATION bytes without a trailing newline.
func writeCanonical(cmd *cobra.Command, v any) error {
	b, err := canon.Encode(v, canon.Canonicalization)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

func writeReport(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeLine(cmd *cobra.Command, s string) error {
	_, err := fmt.Fprintln(cmd.OutOrStdout(), s)
	return err
}
