package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ReferenceAPIClient is the validator-only HTTP client for the independent
// reference API (spec.md §4.7, §6). No RPC retry/JWT machinery is needed
// here: a single GET per page, paginated via has_more/page_key.
type ReferenceAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewReferenceAPIClient(baseURL string) *ReferenceAPIClient {
	return &ReferenceAPIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type paginationEnvelope[T any] struct {
	Result     []T `json:"result"`
	Pagination struct {
		HasMore bool   `json:"has_more"`
		PageKey string `json:"page_key"`
	} `json:"pagination"`
}

type referenceCreation struct {
	TxHash        string `json:"transaction_hash"`
	Creator       string `json:"creator"`
	InitialOwner  string `json:"initial_owner"`
	ContentURI    string `json:"content_uri"`
	L1BlockNumber uint64 `json:"block_number"`
	Mimetype      string `json:"mimetype"`
	MediaType     string `json:"media_type"`
	MimeSubtype   string `json:"mime_subtype"`
	ESIP6         bool   `json:"esip6"`
}

type referenceTransfer struct {
	TokenID string `json:"ethscription_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// ExpectedCreation is one reference-API creation record, normalized to
// go-ethereum types for comparison against on-chain state. Carries every
// field spec.md §4.7 step 4 requires the Validator to check in storage:
// creator, initial_owner, content, L1 block number, mimetype triple, and
// the ESIP-6 flag.
type ExpectedCreation struct {
	TxHash        common.Hash
	Creator       common.Address
	InitialOwner  common.Address
	ContentURI    string
	L1BlockNumber uint64
	Mimetype      string
	MediaType     string
	MimeSubtype   string
	ESIP6         bool
}

// ExpectedTransfer is one reference-API transfer record.
type ExpectedTransfer struct {
	TokenID common.Hash
	From    common.Address
	To      common.Address
}

// FetchCreations retrieves every expected creation for L1 block number,
// following pagination to completion (spec.md §4.7 step 1).
func (c *ReferenceAPIClient) FetchCreations(ctx context.Context, l1BlockNumber uint64) ([]ExpectedCreation, error) {
	var out []ExpectedCreation
	pageKey := ""
	for {
		var page paginationEnvelope[referenceCreation]
		if err := c.get(ctx, "/ethscriptions", l1BlockNumber, pageKey, &page); err != nil {
			return nil, err
		}
		for _, r := range page.Result {
			out = append(out, ExpectedCreation{
				TxHash:        common.HexToHash(r.TxHash),
				Creator:       common.HexToAddress(r.Creator),
				InitialOwner:  common.HexToAddress(r.InitialOwner),
				ContentURI:    r.ContentURI,
				L1BlockNumber: r.L1BlockNumber,
				Mimetype:      r.Mimetype,
				MediaType:     r.MediaType,
				MimeSubtype:   r.MimeSubtype,
				ESIP6:         r.ESIP6,
			})
		}
		if !page.Pagination.HasMore {
			return out, nil
		}
		pageKey = page.Pagination.PageKey
	}
}

// FetchTransfers retrieves every expected transfer for L1 block number,
// following pagination to completion.
func (c *ReferenceAPIClient) FetchTransfers(ctx context.Context, l1BlockNumber uint64) ([]ExpectedTransfer, error) {
	var out []ExpectedTransfer
	pageKey := ""
	for {
		var page paginationEnvelope[referenceTransfer]
		if err := c.get(ctx, "/ethscription_transfers", l1BlockNumber, pageKey, &page); err != nil {
			return nil, err
		}
		for _, r := range page.Result {
			out = append(out, ExpectedTransfer{
				TokenID: common.HexToHash(r.TokenID),
				From:    common.HexToAddress(r.From),
				To:      common.HexToAddress(r.To),
			})
		}
		if !page.Pagination.HasMore {
			return out, nil
		}
		pageKey = page.Pagination.PageKey
	}
}

func (c *ReferenceAPIClient) get(ctx context.Context, path string, l1BlockNumber uint64, pageKey string, out any) error {
	q := url.Values{}
	q.Set("block_number", strconv.FormatUint(l1BlockNumber, 10))
	q.Set("max_results", "50")
	if pageKey != "" {
		q.Set("page_key", pageKey)
	}
	reqURL := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build reference API request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reference API request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reference API returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode reference API response: %w", err)
	}
	return nil
}
