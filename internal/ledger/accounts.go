package ledger

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

const discriminatorLen = 8

// BlacklistEntry is the per-(mint, account) blacklist record
type BlacklistEntry struct {
	Bump          uint8
	Account       string
	IsBlacklisted bool
}

// StablecoinConfig is the per-mint configuration account
type StablecoinConfig struct {
	Bump            uint8
	MasterAuthority string
	Mint            string
	Name            string
	Symbol          string
	URI             string
	Decimals        uint8
	IsPaused        bool
}

// borshReader walks account data left to right
type borshReader struct {
	data []byte
	off  int
	err  error
}

func (r *borshReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("account data too short: need %d bytes at offset %d, have %d", n, r.off, len(r.data))
		return false
	}
	return true
}

func (r *borshReader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *borshReader) boolean() bool {
	return r.u8() != 0
}

func (r *borshReader) pubkey() string {
	if !r.need(pubkeyLength) {
		return ""
	}
	v := base58.Encode(r.data[r.off : r.off+pubkeyLength])
	r.off += pubkeyLength
	return v
}

func (r *borshReader) str() string {
	if !r.need(4) {
		return ""
	}
	n := int(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	if !r.need(n) {
		return ""
	}
	v := string(r.data[r.off : r.off+n])
	r.off += n
	return v
}

func (r *borshReader) skip(n int) {
	if r.need(n) {
		r.off += n
	}
}

// DecodeBlacklistEntry parses blacklist entry account data
func DecodeBlacklistEntry(data []byte) (*BlacklistEntry, error) {
	r := &borshReader{data: data}
	r.skip(discriminatorLen)
	entry := &BlacklistEntry{
		Bump:          r.u8(),
		Account:       r.pubkey(),
		IsBlacklisted: r.boolean(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode blacklist entry: %w", r.err)
	}
	return entry, nil
}

// DecodeStablecoinConfig parses config account data up to is_paused
func DecodeStablecoinConfig(data []byte) (*StablecoinConfig, error) {
	r := &borshReader{data: data}
	r.skip(discriminatorLen)
	cfg := &StablecoinConfig{}
	cfg.Bump = r.u8()
	cfg.MasterAuthority = r.pubkey()
	cfg.Mint = r.pubkey()
	cfg.Name = r.str()
	cfg.Symbol = r.str()
	cfg.URI = r.str()
	cfg.Decimals = r.u8()
	cfg.IsPaused = r.boolean()
	if r.err != nil {
		return nil, fmt.Errorf("decode stablecoin config: %w", r.err)
	}
	return cfg, nil
}

// FetchAccountData reads and base64-decodes an account.
// Returns ErrAccountNotFound when the account does not exist.
func FetchAccountData(ctx context.Context, reader AccountReader, pubkey string) ([]byte, error) {
	info, err := reader.GetAccountInfo(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrAccountNotFound
	}
	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account %s data: %w", pubkey, err)
	}
	return data, nil
}

// FetchBlacklistEntry loads the blacklist entry for account under mint
func FetchBlacklistEntry(ctx context.Context, reader AccountReader, mint, account, programID string) (*BlacklistEntry, error) {
	addr, err := BlacklistEntryAddress(mint, account, programID)
	if err != nil {
		return nil, err
	}
	data, err := FetchAccountData(ctx, reader, addr)
	if err != nil {
		return nil, err
	}
	return DecodeBlacklistEntry(data)
}

// FetchStablecoinConfig loads the config account of mint
func FetchStablecoinConfig(ctx context.Context, reader AccountReader, mint, programID string) (*StablecoinConfig, error) {
	addr, err := ConfigAddress(mint, programID)
	if err != nil {
		return nil, err
	}
	data, err := FetchAccountData(ctx, reader, addr)
	if err != nil {
		return nil, err
	}
	return DecodeStablecoinConfig(data)
}
