package suirpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// BigUint decodes the node's u64 values, which arrive as decimal strings
// (and occasionally as bare numbers).
type BigUint uint64

func (b *BigUint) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*b = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("suirpc: bad u64 %q: %w", data, err)
	}
	*b = BigUint(v)
	return nil
}

// NormalizedModule is the subset of sui_getNormalizedMoveModulesByPackage
// output the analyzer needs.
type NormalizedModule struct {
	Name             string                        `json:"name"`
	Structs          map[string]NormalizedStruct   `json:"structs"`
	ExposedFunctions map[string]NormalizedFunction `json:"exposedFunctions"`
}

type NormalizedStruct struct {
	Fields []NormalizedField `json:"fields"`
}

type NormalizedField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type NormalizedFunction struct {
	Visibility string            `json:"visibility"`
	IsEntry    bool              `json:"isEntry"`
	Parameters []json.RawMessage `json:"parameters"`
}

// Checkpoint is a sui_getCheckpoint result.
type Checkpoint struct {
	SequenceNumber BigUint  `json:"sequenceNumber"`
	TimestampMs    BigUint  `json:"timestampMs"`
	Transactions   []string `json:"transactions"`
}

// PublishedPackage is one "published" object change from a transaction,
// flattened with the transaction metadata the tracker reports.
type PublishedPackage struct {
	PackageID   string
	Modules     []string
	Sender      string
	TxDigest    string
	TimestampMs uint64
	Checkpoint  *uint64
	GasUsed     *uint64
}

type txBlock struct {
	Digest      string   `json:"digest"`
	TimestampMs BigUint  `json:"timestampMs"`
	Checkpoint  *BigUint `json:"checkpoint"`
	Transaction struct {
		Data struct {
			Sender string `json:"sender"`
		} `json:"data"`
	} `json:"transaction"`
	Effects *struct {
		GasUsed struct {
			ComputationCost BigUint `json:"computationCost"`
		} `json:"gasUsed"`
	} `json:"effects"`
	ObjectChanges []struct {
		Type      string   `json:"type"`
		PackageID string   `json:"packageId"`
		Modules   []string `json:"modules"`
	} `json:"objectChanges"`
}

type objectResponse struct {
	Data *struct {
		ObjectID string `json:"objectId"`
		Type     string `json:"type"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}
