package derive

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethscriptions-protocol/eth-node/op-node/rollup"
	"github.com/ethscriptions-protocol/eth-node/op-service/eth"
)

// Detector classifies an L1Transaction into zero or more Operations. It is
// pure: no contract reads, no side effects, and it never returns an error —
// malformed input is silently dropped per spec.md §4.2/§7.
type Detector struct {
	log log.Logger
	cfg *rollup.Config
}

func NewDetector(log log.Logger, cfg *rollup.Config) *Detector {
	return &Detector{log: log, cfg: cfg}
}

// Detect runs the four independent rules of spec.md §4.2 in order against
// a single L1 transaction, at the given L1 block number (which gates ESIP
// activation), and returns the ordered, deduplicated Operation list.
func (d *Detector) Detect(l1BlockNumber uint64, tx *eth.L1Transaction) []Operation {
	var ops []Operation

	createdFromInput := false
	if op, ok := d.detectCreateFromInput(tx); ok {
		ops = append(ops, op)
		createdFromInput = true
	}

	if d.cfg.IsESIP3(l1BlockNumber) {
		ops = append(ops, d.detectCreatesFromEvents(tx)...)
	}

	if !createdFromInput {
		ops = append(ops, d.detectTransfersFromInput(l1BlockNumber, tx)...)
	}

	if d.cfg.IsESIP1(l1BlockNumber) {
		ops = append(ops, d.detectTransfersFromEvents(l1BlockNumber, tx)...)
	}

	return ops
}

// detectCreateFromInput implements spec.md §4.2 rule 1.
func (d *Detector) detectCreateFromInput(tx *eth.L1Transaction) (Operation, bool) {
	if tx.To == nil {
		return Operation{}, false
	}
	uri := tx.Utf8Input()
	mediatype, params, data, ok := parseDataURI(uri)
	if !ok {
		return Operation{}, false
	}
	esip6 := hasParam(params, "rule", "esip6")

	var tokenParams *TokenParams
	if mediatype == "" && strings.HasPrefix(data, "{") {
		if tp, ok := parseTokenParams(data); ok {
			tokenParams = tp
		}
	}

	op := NewCreateFromInput(tx.TxHash, tx.Index, tx.From, uri, esip6, tokenParams)
	return op, true
}

// detectCreatesFromEvents implements spec.md §4.2 rule 2 (ESIP-3).
func (d *Detector) detectCreatesFromEvents(tx *eth.L1Transaction) []Operation {
	var ops []Operation
	for i, lg := range tx.Logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != esip3CreateEventSig {
			continue
		}
		if len(lg.Topics) != 2 {
			continue
		}
		initialOwner := common.BytesToAddress(lg.Topics[1].Bytes())
		contentURI, ok := decodeABIString(lg.Data)
		if !ok {
			d.log.Debug("dropping malformed ESIP-3 create event", "tx", tx.TxHash, "logIndex", i)
			continue
		}
		ops = append(ops, NewCreateFromEvent(tx.TxHash, tx.Index, int64(i), lg.Address, initialOwner, contentURI, false))
	}
	return ops
}

// detectTransfersFromInput implements spec.md §4.2 rule 3: calldata that is
// an exact multiple of 32 bytes, each chunk an ethscription transaction
// hash. A single chunk is a plain Transfer; more than one chunk is only
// valid once ESIP-5 batch transfers are active, and is emitted as a single
// MultiTransfer rather than one Transfer per chunk.
func (d *Detector) detectTransfersFromInput(l1BlockNumber uint64, tx *eth.L1Transaction) []Operation {
	if tx.To == nil {
		return nil
	}
	raw := tx.InputNoPrefix()
	if len(raw) == 0 || len(raw)%64 != 0 {
		return nil
	}
	n := len(raw) / 64
	hashes := make([]common.Hash, n)
	for i := 0; i < n; i++ {
		hashes[i] = common.HexToHash("0x" + raw[i*64:(i+1)*64])
	}
	if n == 1 {
		return []Operation{NewTransfer(tx.TxHash, tx.Index, -1, tx.From, *tx.To, hashes[0])}
	}
	if !d.cfg.IsESIP5(l1BlockNumber) {
		return nil
	}
	return []Operation{NewMultiTransfer(tx.TxHash, tx.Index, tx.From, *tx.To, hashes)}
}

// detectTransfersFromEvents implements spec.md §4.2 rule 4 (ESIP-1/ESIP-2 event style).
func (d *Detector) detectTransfersFromEvents(l1BlockNumber uint64, tx *eth.L1Transaction) []Operation {
	var ops []Operation
	for i, lg := range tx.Logs {
		if len(lg.Topics) == 0 {
			continue
		}
		switch {
		case lg.Topics[0] == esip1TransferSig && len(lg.Topics) == 3:
			to := common.BytesToAddress(lg.Topics[1].Bytes())
			h := common.Hash(lg.Topics[2])
			ops = append(ops, NewTransfer(tx.TxHash, tx.Index, int64(i), lg.Address, to, h))
		case lg.Topics[0] == esip2TransferSig && len(lg.Topics) == 4 && d.cfg.IsESIP2(l1BlockNumber):
			prev := common.BytesToAddress(lg.Topics[1].Bytes())
			to := common.BytesToAddress(lg.Topics[2].Bytes())
			h := common.Hash(lg.Topics[3])
			ops = append(ops, NewTransferPrevOwner(tx.TxHash, tx.Index, int64(i), lg.Address, to, h, prev))
		}
	}
	return ops
}

// parseDataURI validates and splits an RFC 2397 data URI of the form
// "data:[<mediatype>][;base64],<data>". It returns ok=false for anything
// that does not even have the "data:" scheme; a missing mediatype or empty
// payload (spec.md §8 "Empty data URI") is still a valid create.
func parseDataURI(s string) (mediatype string, params map[string]string, data string, ok bool) {
	const prefix = "data:"
	if !strings.HasPrefix(s, prefix) {
		return "", nil, "", false
	}
	rest := s[len(prefix):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", nil, "", false
	}
	header := rest[:comma]
	payload := rest[comma+1:]

	isBase64 := false
	parts := strings.Split(header, ";")
	mediatype = parts[0]
	params = map[string]string{}
	for _, p := range parts[1:] {
		if p == "base64" {
			isBase64 = true
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 2 {
			params[strings.ToLower(kv[0])] = kv[1]
		}
	}
	if isBase64 {
		if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
			if _, err2 := base64.RawStdEncoding.DecodeString(payload); err2 != nil {
				return "", nil, "", false
			}
		}
	}
	return mediatype, params, payload, true
}

func hasParam(params map[string]string, key, value string) bool {
	v, ok := params[key]
	return ok && v == value
}

// parseTokenParams implements spec.md §4.2 rule 1's optional token params:
// JSON payloads of the shape {"p":..., "op": "deploy"|"mint", ...}. Per the
// Design Note, "id" is packed into Max for mint operations, matching the
// contract convention that only mint uses an id.
func parseTokenParams(data string) (*TokenParams, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, false
	}
	opRaw, ok := raw["op"]
	if !ok {
		return nil, false
	}
	var op string
	if err := json.Unmarshal(opRaw, &op); err != nil {
		return nil, false
	}
	if op != "deploy" && op != "mint" {
		return nil, false
	}
	get := func(key string) string {
		var v string
		if r, ok := raw[key]; ok {
			_ = json.Unmarshal(r, &v)
		}
		return v
	}
	tp := &TokenParams{
		Protocol:  get("p"),
		Operation: op,
		Tick:      get("tick"),
		Max:       get("max"),
		Lim:       get("lim"),
		Amount:    get("amt"),
	}
	if op == "mint" {
		if id := get("id"); id != "" {
			tp.Max = id
		}
	}
	return tp, true
}

// decodeABIString decodes the ABI encoding of a single dynamic `string`
// argument (offset word + length word + UTF-8 bytes), as emitted in the
// `data` field of an ESIP-3 creation event.
func decodeABIString(data []byte) (string, bool) {
	if len(data) < 64 {
		return "", false
	}
	// First word: offset (always 32 for a single dynamic argument, unused
	// here since there is exactly one argument). Second word: length.
	length := new(big.Int).SetBytes(data[32:64])
	if !length.IsUint64() {
		return "", false
	}
	start := uint64(64)
	end := start + length.Uint64()
	if end < start || end > uint64(len(data)) {
		return "", false
	}
	return string(data[start:end]), true
}
