package badgercas

import (
	"flag"
	"strconv"

	"xdao.co/canonproof/storage"
	"xdao.co/canonproof/storage/casregistry"
)

var (
	flagPath string
	flagSync bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "badger",
		Description: "Embedded BadgerDB CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagPath, "badger-dir", "", "BadgerDB directory (for --backend=badger)")
			fs.BoolVar(&flagSync, "badger-sync", true, "fsync every write (for --backend=badger)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(Config{Path: flagPath, SyncWrites: flagSync})
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			c := Config{Path: cfg["dir"], SyncWrites: true}
			if v, ok := cfg["sync"]; ok {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return nil, nil, err
				}
				c.SyncWrites = b
			}
			c.InMemory = cfg["in-memory"] == "true"
			return open(c)
		},
	})
}

func open(cfg Config) (storage.CAS, func() error, error) {
	cas, err := Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cas, cas.Close, nil
}
