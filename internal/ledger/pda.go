package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Seed prefixes used by the stablecoin program
const (
	ConfigSeed    = "config"
	BlacklistSeed = "blacklist"
)

const (
	pubkeyLength = 32
	maxSeedLen   = 32
	maxSeeds     = 16
	pdaMarker    = "ProgramDerivedAddress"
)

// ErrNoViableBump is returned when no bump yields an off-curve address
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// DecodePubkey parses a base58 public key
func DecodePubkey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid public key %q: %w", s, err)
	}
	if len(b) != pubkeyLength {
		return nil, fmt.Errorf("invalid public key %q: length %d", s, len(b))
	}
	return b, nil
}

// IsValidPubkey reports whether s is a base58 32-byte key
func IsValidPubkey(s string) bool {
	_, err := DecodePubkey(s)
	return err == nil
}

// CreateProgramAddress hashes seeds ‖ program ‖ marker and rejects on-curve results
func CreateProgramAddress(seeds [][]byte, programID []byte) ([]byte, error) {
	if len(seeds) > maxSeeds {
		return nil, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return nil, fmt.Errorf("seed exceeds %d bytes", maxSeedLen)
		}
		h.Write(seed)
	}
	h.Write(programID)
	h.Write([]byte(pdaMarker))
	hash := h.Sum(nil)

	if isOnCurve(hash) {
		return nil, errors.New("derived address is on the ed25519 curve")
	}
	return hash, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodePubkey(programID)
	if err != nil {
		return "", 0, err
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return base58.Encode(addr), uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

// ConfigAddress derives the config account of a token instance
func ConfigAddress(mint, programID string) (string, error) {
	mintKey, err := DecodePubkey(mint)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte(ConfigSeed), mintKey}, programID)
	return addr, err
}

// BlacklistEntryAddress derives the blacklist entry for account under mint
func BlacklistEntryAddress(mint, account, programID string) (string, error) {
	mintKey, err := DecodePubkey(mint)
	if err != nil {
		return "", err
	}
	accountKey, err := DecodePubkey(account)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte(BlacklistSeed), mintKey, accountKey}, programID)
	return addr, err
}

func isOnCurve(point []byte) bool {
	if len(point) != pubkeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
