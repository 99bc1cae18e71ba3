// Package fees quotes relayer fees for a pending deposit.
package fees

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bridgeui/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var Logger = zerolog.Nop()

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// feeScale is the fixed-point scale of relay fee percentages (1e18 = 100%).
const feeScale = 18

// Quote describes the deposit a fee is requested for.
type Quote struct {
	ChainID uint64
	Token   common.Address
	Amount  *big.Int
}

// Service returns the relay fees for a pending deposit.
type Service interface {
	RelayFees(ctx context.Context, q Quote) (models.RelayFees, error)
}

// ParsePct converts a fraction such as "0.0005" into the 1e18-scaled value
// expected by the deposit box. The fraction must lie in [0, 1).
func ParsePct(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid fee %q: %w", s, err)
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee %q must be in [0, 1)", s)
	}
	scaled := d.Shift(feeScale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("fee %q has more than %d decimals", s, feeScale)
	}
	return scaled.BigInt(), nil
}

// FormatPct renders a 1e18-scaled fee as a percentage, e.g. "0.05%".
func FormatPct(v *big.Int) string {
	if v == nil {
		return "0%"
	}
	return decimal.NewFromBigInt(v, -feeScale+2).String() + "%"
}

// Static always quotes the same fees.
type Static struct {
	fees models.RelayFees
}

func NewStatic(slowPct, instantPct string) (*Static, error) {
	slow, err := ParsePct(slowPct)
	if err != nil {
		return nil, fmt.Errorf("slow relay fee: %w", err)
	}
	instant, err := ParsePct(instantPct)
	if err != nil {
		return nil, fmt.Errorf("instant relay fee: %w", err)
	}
	return &Static{fees: models.RelayFees{SlowRelayFee: slow, InstantRelayFee: instant}}, nil
}

func (s *Static) RelayFees(ctx context.Context, _ Quote) (models.RelayFees, error) {
	if err := ctx.Err(); err != nil {
		return models.RelayFees{}, err
	}
	return models.RelayFees{
		SlowRelayFee:    new(big.Int).Set(s.fees.SlowRelayFee),
		InstantRelayFee: new(big.Int).Set(s.fees.InstantRelayFee),
	}, nil
}

// HTTP asks a relayer fee endpoint:
//
//	GET <base>?chainId=10&token=0x..&amount=1000
//	{"slowRelayFeePct": "500000000000000", "instantRelayFeePct": "500000000000000"}
type HTTP struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type feeResponse struct {
	SlowRelayFeePct    decimal.Decimal `json:"slowRelayFeePct"`
	InstantRelayFeePct decimal.Decimal `json:"instantRelayFeePct"`
}

func (h *HTTP) RelayFees(ctx context.Context, q Quote) (models.RelayFees, error) {
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return models.RelayFees{}, fmt.Errorf("invalid relay fee url: %w", err)
	}
	params := u.Query()
	params.Set("chainId", strconv.FormatUint(q.ChainID, 10))
	params.Set("token", q.Token.Hex())
	if q.Amount != nil {
		params.Set("amount", q.Amount.String())
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.RelayFees{}, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return models.RelayFees{}, fmt.Errorf("relay fee request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return models.RelayFees{}, fmt.Errorf("relay fee service returned %s", resp.Status)
	}

	var body feeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.RelayFees{}, fmt.Errorf("invalid relay fee response: %w", err)
	}
	slow, err := scaledFee(body.SlowRelayFeePct)
	if err != nil {
		return models.RelayFees{}, fmt.Errorf("slow relay fee: %w", err)
	}
	instant, err := scaledFee(body.InstantRelayFeePct)
	if err != nil {
		return models.RelayFees{}, fmt.Errorf("instant relay fee: %w", err)
	}

	fees := models.RelayFees{SlowRelayFee: slow, InstantRelayFee: instant}
	Logger.Debug().Uint64("chain_id", q.ChainID).Str("token", q.Token.Hex()).
		Str("slow", FormatPct(fees.SlowRelayFee)).Str("instant", FormatPct(fees.InstantRelayFee)).
		Msg("Relay fees quoted")
	return fees, nil
}

// scaledFee checks a relayer quote that is already 1e18-scaled: a whole
// number in [0, 1e18).
func scaledFee(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("fee %s is negative", d)
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("fee %s is not a whole 1e18-scaled value", d)
	}
	if d.GreaterThanOrEqual(decimal.New(1, feeScale)) {
		return nil, fmt.Errorf("fee %s must be below 1e18", d)
	}
	return d.BigInt(), nil
}
