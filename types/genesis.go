package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	// MaxChainIDLen is a maximum length of the chain ID.
	MaxChainIDLen = 50
)

// GenesisDoc defines the first block of a chain. Every node of the chain
// must start from the same document.
type GenesisDoc struct {
	ChainID     string    `json:"chain_id"`
	GenesisTime time.Time `json:"genesis_time"`
	Block       *Block    `json:"block"`
}

// SaveAs is a utility method for saving GenensisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := json.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, genDocBytes, 0644) //nolint:gosec
}

// ValidateAndComplete checks that all necessary fields are present
// and fills in defaults for optional fields left empty
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}
	if genDoc.Block == nil || genDoc.Block.Header == nil {
		return errors.New("genesis doc must include the genesis block")
	}
	if genDoc.Block.Height() != 0 {
		return fmt.Errorf("genesis block must be at height 0, got %d", genDoc.Block.Height())
	}
	if err := genDoc.Block.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid genesis block: %w", err)
	}

	blockTime := genDoc.Block.Header.Time()
	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = blockTime
	} else if !genDoc.GenesisTime.Equal(blockTime) {
		return fmt.Errorf("genesis_time %v does not match the genesis block timestamp %v",
			genDoc.GenesisTime, blockTime)
	}
	return nil
}

//------------------------------------------------------------
// Make genesis state from file

// GenesisDocFromJSON unmarshalls JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	if err := json.Unmarshal(jsonBlob, &genDoc); err != nil {
		return nil, err
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return &genDoc, nil
}

// GenesisDocFromFile reads JSON data from a file and unmarshalls it into a GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := os.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %s: %w", genDocFile, err)
	}
	return genDoc, nil
}
