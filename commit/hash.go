package commit

import (
	"errors"

	"xdao.co/canonproof/hashfmt"
)

// ErrZeroCommitment is returned when an unset CommitmentHash is marshaled.
var ErrZeroCommitment = errors.New("commit: zero commitment hash")

// CommitmentHash is exactly 64 lowercase hex characters.
//
// The zero value is "unset". Non-zero values are only produced by Commit or
// ParseCommitmentHash, both of which validate the form.
type CommitmentHash struct {
	hex string
}

// ParseCommitmentHash validates s with the strict bare-hex tier.
func ParseCommitmentHash(s string) (CommitmentHash, error) {
	if err := hashfmt.ValidateBare(s); err != nil {
		return CommitmentHash{}, err
	}
	return CommitmentHash{hex: s}, nil
}

func (h CommitmentHash) String() string { return h.hex }

func (h CommitmentHash) IsZero() bool { return h.hex == "" }

func (h CommitmentHash) Equal(o CommitmentHash) bool { return h.hex == o.hex }

func (h CommitmentHash) MarshalText() ([]byte, error) {
	if h.IsZero() {
		return nil, ErrZeroCommitment
	}
	return []byte(h.hex), nil
}

func (h *CommitmentHash) UnmarshalText(b []byte) error {
	v, err := ParseCommitmentHash(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}
