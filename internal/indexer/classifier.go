// File: internal/indexer/classifier.go
package indexer

import (
	"regexp"
	"strings"

	"github.com/irfanfaraaz/sss-backend/internal/ledger"
	"github.com/irfanfaraaz/sss-backend/internal/models"
)

// instructionMarker maps a log substring to an event type
type instructionMarker struct {
	Marker    string
	EventType models.EventType
}

// instructionMarkers is checked in order; the first marker present in any
// log line wins.
var instructionMarkers = []instructionMarker{
	{"Instruction: Mint", models.EventTypeMint},
	{"Instruction: Burn", models.EventTypeBurn},
	{"Instruction: AddToBlacklist", models.EventTypeBlacklistAdd},
	{"Instruction: RemoveFromBlacklist", models.EventTypeBlacklistRemove},
	{"Seize", models.EventTypeSeize},
}

var programDataLine = regexp.MustCompile(`Program data: (\w+)`)

// mintAccountIndex is the account-key position guessed to hold the mint
const mintAccountIndex = 1

// Classification is the outcome of classifying one transaction
type Classification struct {
	EventType models.EventType
	Mint      string
}

// ClassifyLogs returns the event type for a transaction's log lines
func ClassifyLogs(logs []string) models.EventType {
	for _, m := range instructionMarkers {
		for _, line := range logs {
			if strings.Contains(line, m.Marker) {
				return m.EventType
			}
		}
	}
	return models.EventTypeTransaction
}

// InferMint guesses the token instance a transaction touched. The result is
// advisory: it is a fixed-position account key taken whenever a log line
// mentions a mint-related instruction.
func InferMint(accountKeys, logs []string) string {
	for _, line := range logs {
		if programDataLine.MatchString(line) {
			continue
		}
		if strings.Contains(line, "initialize") || strings.Contains(line, "mint") || strings.Contains(line, "Mint") {
			if len(accountKeys) > mintAccountIndex {
				return accountKeys[mintAccountIndex]
			}
		}
	}
	return ""
}

// Classify derives event type and mint from a fetched transaction.
// A nil transaction or one without logs classifies as a plain transaction.
func Classify(tx *ledger.Transaction) Classification {
	if tx == nil || tx.LogMessages == nil {
		return Classification{EventType: models.EventTypeTransaction}
	}
	return Classification{
		EventType: ClassifyLogs(tx.LogMessages),
		Mint:      InferMint(tx.AccountKeys, tx.LogMessages),
	}
}
