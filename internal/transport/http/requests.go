package httptransport

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

type registrationRequest struct {
	Holder   string             `json:"holder"`
	Identity string             `json:"identity"`
	Country  domain.CountryCode `json:"country"`
}

type registrationBatchRequest struct {
	Registrations []registrationRequest `json:"registrations"`
}

type updateIdentityRequest struct {
	Identity string `json:"identity"`
}

type updateCountryRequest struct {
	Country domain.CountryCode `json:"country"`
}

type topicRequest struct {
	Topic domain.ClaimTopic `json:"topic"`
}

type topicBatchRequest struct {
	Topics []domain.ClaimTopic `json:"topics"`
}

type issuerRequest struct {
	Issuer   string              `json:"issuer"`
	Identity string              `json:"identity"`
	Topics   []domain.ClaimTopic `json:"topics"`
}

type issuerBatchRequest struct {
	Issuers []issuerRequest `json:"issuers"`
}

type issuerTopicsRequest struct {
	Topics []domain.ClaimTopic `json:"topics"`
}

type addKeyRequest struct {
	KeyHash string            `json:"key_hash"`
	Purpose domain.KeyPurpose `json:"purpose"`
	KeyType domain.KeyType    `json:"key_type"`
}

type addClaimRequest struct {
	Topic     domain.ClaimTopic  `json:"topic"`
	Scheme    domain.ClaimScheme `json:"scheme"`
	Issuer    string             `json:"issuer"`
	Signature hexutil.Bytes      `json:"signature"`
	Data      hexutil.Bytes      `json:"data"`
	URI       string             `json:"uri,omitempty"`
}

type settlementRequest struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Amount uint64 `json:"amount"`
}

type limitsRequest struct {
	DailyLimit       uint64 `json:"daily_limit"`
	MonthlyLimit     uint64 `json:"monthly_limit"`
	MaxBalance       uint64 `json:"max_balance"`
	MinHoldingPeriod string `json:"min_holding_period"`
}

type restrictionRequest struct {
	Restricted bool `json:"restricted"`
}

type holderCapRequest struct {
	Cap uint64 `json:"cap"`
}

type bindTokenRequest struct {
	Token string `json:"token"`
}

// parseAddress translates a hex address field, naming the field on failure.
func parseAddress(field, value string) (domain.Address, error) {
	addr, ok := domain.ParseAddress(value)
	if !ok {
		return domain.Address{}, fmt.Errorf("%s: malformed address %q: %w", field, value, sentinel.ErrInvalidArgument)
	}
	return addr, nil
}

// parseOptionalAddress is parseAddress with the empty string standing in for
// the zero address (mint/burn sentinel in settlement payloads).
func parseOptionalAddress(field, value string) (domain.Address, error) {
	if value == "" {
		return domain.ZeroAddress, nil
	}
	return parseAddress(field, value)
}

func addressParam(r *http.Request, name string) (domain.Address, error) {
	return parseAddress(name, chi.URLParam(r, name))
}

func uint64Param(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: malformed number: %w", name, sentinel.ErrInvalidArgument)
	}
	return v, nil
}

func parseHash(field, value string) (domain.Hash, error) {
	raw, err := hexutil.Decode(value)
	if err != nil || len(raw) != len(domain.Hash{}) {
		return domain.Hash{}, fmt.Errorf("%s: malformed hash: %w", field, sentinel.ErrInvalidArgument)
	}
	return domain.Hash(raw), nil
}

func hashParam(r *http.Request, name string) (domain.Hash, error) {
	return parseHash(name, chi.URLParam(r, name))
}
