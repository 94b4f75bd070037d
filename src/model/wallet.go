package model

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// WalletAddr is an EVM wallet address in EIP-55 checksummed form. All
// addresses entering the system go through NormalizeWallet so that two
// spellings of the same address always compare equal.
type WalletAddr string

var ErrInvalidWallet = errors.New("invalid wallet address")

func NormalizeWallet(raw string) (WalletAddr, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if len(s) != 40 {
		return "", errors.Wrapf(ErrInvalidWallet, "expected 40 hex chars, got %d", len(s))
	}
	lower := strings.ToLower(s)
	for _, c := range lower {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", errors.Wrapf(ErrInvalidWallet, "non-hex char %q", c)
		}
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lower))
	sum := hasher.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' {
			continue // digits keep their case
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return WalletAddr("0x" + string(out)), nil
}

// MustWallet is for constants and tests; panics on malformed input.
func MustWallet(raw string) WalletAddr {
	w, err := NormalizeWallet(raw)
	if err != nil {
		panic(err)
	}
	return w
}
