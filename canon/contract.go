package canon

import "fmt"

// Contract names one immutable bundle of serialization and hash-rendering rules.
//
// The set of contracts is closed. Adding behavior means adding a new Contract
// value with its own row in the table below; existing rows MUST NOT change,
// because every digest ever produced under them depends on the exact bytes.
type Contract uint8

const (
	// Governance emits literal UTF-8 and renders digests as "sha256:<hex>".
	Governance Contract = iota + 1
	// Canonicalization escapes non-ASCII as \uXXXX, renders bare hex and
	// refuses caller domain prefixes.
	Canonicalization
	// Proofs escapes non-ASCII as \uXXXX, renders bare hex and accepts caller
	// domain prefixes.
	Proofs
)

// Rules is the fixed per-contract metadata.
type Rules struct {
	Name string
	// EscapeNonASCII selects \uXXXX escaping for every rune above U+007F.
	EscapeNonASCII bool
	// OutputPrefix is prepended to the rendered hex digest ("" for bare hex).
	OutputPrefix string
	// DomainPrefix reports whether a caller-supplied domain prefix is accepted.
	DomainPrefix bool
}

// HashPrefix is the only literal output prefix any contract uses.
const HashPrefix = "sha256:"

var contractTable = map[Contract]Rules{
	Governance: {
		Name:           "GOVERNANCE",
		EscapeNonASCII: false,
		OutputPrefix:   HashPrefix,
		DomainPrefix:   true,
	},
	Canonicalization: {
		Name:           "CANONICALIZATION",
		EscapeNonASCII: true,
		OutputPrefix:   "",
		DomainPrefix:   false,
	},
	Proofs: {
		Name:           "PROOFS",
		EscapeNonASCII: true,
		OutputPrefix:   "",
		DomainPrefix:   true,
	},
}

// Contracts returns every defined contract in declaration order.
func Contracts() []Contract {
	return []Contract{Governance, Canonicalization, Proofs}
}

// Rules returns the contract's metadata. ok is false for undefined values.
func (c Contract) Rules() (Rules, bool) {
	r, ok := contractTable[c]
	return r, ok
}

func (c Contract) Valid() bool {
	_, ok := contractTable[c]
	return ok
}

func (c Contract) String() string {
	if r, ok := contractTable[c]; ok {
		return r.Name
	}
	return fmt.Sprintf("Contract(%d)", uint8(c))
}

// ParseContract resolves a contract from its upper-case name.
func ParseContract(name string) (Contract, error) {
	for _, c := range Contracts() {
		if contractTable[c].Name == name {
			return c, nil
		}
	}
	return 0, newError(KindInternal, "CANON-CON-001", fmt.Sprintf("unknown hash contract %q", name))
}

func (c Contract) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, newError(KindInternal, "CANON-CON-002", "undefined hash contract")
	}
	return []byte(c.String()), nil
}

func (c *Contract) UnmarshalText(b []byte) error {
	v, err := ParseContract(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func rulesFor(c Contract) (Rules, error) {
	r, ok := contractTable[c]
	if !ok {
		return Rules{}, newError(KindInternal, "CANON-CON-002", "undefined hash contract")
	}
	return r, nil
}
