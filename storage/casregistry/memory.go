package casregistry

import (
	"flag"

	"xdao.co/canonproof/storage"
)

func init() {
	MustRegister(Backend{
		Name:          "memory",
		Description:   "In-process CAS (contents are lost on exit)",
		Usage:         UsageCLI | UsageDaemon,
		RegisterFlags: func(*flag.FlagSet) {},
		Open: func() (storage.CAS, func() error, error) {
			return storage.NewMemoryCAS(), nil, nil
		},
		OpenConfig: func(map[string]string) (storage.CAS, func() error, error) {
			return storage.NewMemoryCAS(), nil, nil
		},
	})
}
