package s3cas

import (
	"context"
	"flag"
	"os"
	"time"

	"xdao.co/canonproof/storage"
	"xdao.co/canonproof/storage/casregistry"
)

var flagCfg Config

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "s3",
		Description: "S3-compatible object store CAS (MinIO, AWS)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagCfg.Endpoint, "s3-endpoint", "", "S3 endpoint host:port (for --backend=s3)")
			fs.StringVar(&flagCfg.Bucket, "s3-bucket", "", "S3 bucket (for --backend=s3)")
			fs.StringVar(&flagCfg.Region, "s3-region", "", "S3 region (for --backend=s3)")
			fs.StringVar(&flagCfg.Prefix, "s3-prefix", defaultPrefix, "Object key prefix (for --backend=s3)")
			fs.BoolVar(&flagCfg.UseSSL, "s3-ssl", true, "Use TLS (for --backend=s3)")
			fs.BoolVar(&flagCfg.CreateBucket, "s3-create-bucket", false, "Create the bucket if missing (for --backend=s3)")
		},
		Open: func() (storage.CAS, func() error, error) {
			cfg := flagCfg
			cfg.AccessKey, cfg.SecretKey = credentialsFromEnv(nil)
			return open(cfg)
		},
		OpenConfig: func(m map[string]string) (storage.CAS, func() error, error) {
			cfg := Config{
				Endpoint:     m["endpoint"],
				Bucket:       m["bucket"],
				Region:       m["region"],
				Prefix:       m["prefix"],
				UseSSL:       m["ssl"] != "false",
				CreateBucket: m["create-bucket"] == "true",
			}
			cfg.AccessKey, cfg.SecretKey = credentialsFromEnv(m)
			return open(cfg)
		},
	})
}

// credentialsFromEnv keeps secrets out of flags and config files by default.
func credentialsFromEnv(m map[string]string) (string, string) {
	access, secret := os.Getenv("CANONPROOF_S3_ACCESS_KEY"), os.Getenv("CANONPROOF_S3_SECRET_KEY")
	if v := m["access-key"]; v != "" {
		access = v
	}
	if v := m["secret-key"]; v != "" {
		secret = v
	}
	return access, secret
}

func open(cfg Config) (storage.CAS, func() error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cas, err := Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cas, nil, nil
}
