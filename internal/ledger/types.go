package ledger

import (
	"context"
	"errors"
)

// ErrAccountNotFound is returned when an account does not exist on the ledger
var ErrAccountNotFound = errors.New("account not found")

// SignatureInfo from getSignaturesForAddress
type SignatureInfo struct {
	Signature string      `json:"signature"`
	Slot      uint64      `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress
type SignaturesOpts struct {
	Before string // start searching backwards from this signature
	Until  string // search until this signature
	Limit  int
}

// Transaction is the subset of a confirmed transaction the backend reads
type Transaction struct {
	Slot        uint64
	Signature   string
	BlockTime   *int64
	Err         interface{}
	LogMessages []string
	AccountKeys []string
}

// AccountInfo represents account information with base64 data
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"`
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// SignatureSource lists and fetches program transactions
type SignatureSource interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// AccountReader fetches raw accounts. A missing account is (nil, nil).
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}

// NodeMonitor reports node reachability and client statistics
type NodeMonitor interface {
	HealthCheck(ctx context.Context) error
	Stats() ConnectionStats
}
