package polymarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether a flag is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexString accepts a JSON string or number, since order ids and sizes
// arrive as either depending on the endpoint.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// apiOrder is the wire form of a signed order inside a POST /orders body.
type apiOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// postOrderArgs is one element of the POST /orders array.
type postOrderArgs struct {
	DeferExec bool     `json:"deferExec"`
	Order     apiOrder `json:"order"`
	Owner     string   `json:"owner"`
	OrderType string   `json:"orderType"`
}

func newPostOrderArgs(o domain.SignedOrder, owner string) postOrderArgs {
	return postOrderArgs{
		Order: apiOrder{
			Salt:          o.Salt,
			Maker:         o.Maker,
			Signer:        o.Signer,
			Taker:         o.Taker,
			TokenID:       o.TokenID,
			MakerAmount:   o.MakerAmount,
			TakerAmount:   o.TakerAmount,
			Expiration:    o.Expiration,
			Nonce:         o.Nonce,
			FeeRateBps:    o.FeeRateBps,
			Side:          string(o.Side),
			SignatureType: o.SignatureType,
			Signature:     o.Signature,
		},
		Owner:     owner,
		OrderType: string(o.TimeInForce),
	}
}

// apiOrderResult is one entry of a batch placement response. Success is a
// pointer because a missing field means success.
type apiOrderResult struct {
	Success  *bool      `json:"success"`
	ErrorMsg string     `json:"errorMsg"`
	OrderID  flexString `json:"orderID"`
	Status   string     `json:"status"`
	Error    string     `json:"error"`
}

func (r apiOrderResult) failed() bool {
	return r.Success != nil && !*r.Success
}

func (r apiOrderResult) reason() string {
	switch {
	case r.ErrorMsg != "":
		return r.ErrorMsg
	case r.Error != "":
		return r.Error
	case r.Status != "":
		return r.Status
	default:
		return "rejected"
	}
}

// decodeBatchResponse maps every shape the batch endpoint is known to return
// (a list of results, a single result object, or an error object) onto the
// tagged domain.BatchResponse.
func decodeBatchResponse(body []byte) domain.BatchResponse {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return domain.BatchErrorResponse("empty response body")
	}

	var results []apiOrderResult
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return domain.BatchErrorResponse(fmt.Sprintf("decode batch response: %v", err))
		}
	case '{':
		var single apiOrderResult
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return domain.BatchErrorResponse(fmt.Sprintf("decode batch response: %v", err))
		}
		if single.OrderID == "" {
			if single.Error != "" || single.ErrorMsg != "" {
				return domain.BatchErrorResponse(single.reason())
			}
			return domain.BatchErrorResponse("no order ids in response")
		}
		results = []apiOrderResult{single}
	default:
		return domain.BatchErrorResponse(fmt.Sprintf("unexpected response: %.200s", trimmed))
	}

	ids := make([]string, 0, len(results))
	var failures []domain.OrderFailure
	for i, r := range results {
		if r.failed() {
			failures = append(failures, domain.OrderFailure{Index: i, Reason: r.reason()})
		}
		if r.OrderID != "" {
			ids = append(ids, string(r.OrderID))
		}
	}
	return domain.NewBatchResponse(ids, failures)
}

// apiCancelResult is the DELETE /orders response body.
type apiCancelResult struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// apiEventPage is the /events/pagination response.
type apiEventPage struct {
	Data []apiEvent `json:"data"`
}

type apiEvent struct {
	ID     string   `json:"id"`
	Slug   string   `json:"slug"`
	Title  string   `json:"title"`
	Active flexBool `json:"active"`
	Closed flexBool `json:"closed"`
}

// apiMarket is a Gamma market. ClobTokenIDs is itself a JSON-encoded array
// inside a string, e.g. "[\"123\",\"456\"]".
type apiMarket struct {
	ID             string   `json:"id"`
	Question       string   `json:"question"`
	Slug           string   `json:"slug"`
	MarketSlug     string   `json:"market_slug"`
	ConditionID    string   `json:"conditionId"`
	ClobTokenIDs   string   `json:"clobTokenIds"`
	EventStartTime string   `json:"eventStartTime"`
	StartDate      string   `json:"startDate"`
	EndDate        string   `json:"endDate"`
	NegRisk        flexBool `json:"negRisk"`
	Active         flexBool `json:"active"`
	Closed         flexBool `json:"closed"`
}

var startTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

func parseStartTime(s string) (time.Time, bool) {
	for _, layout := range startTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// toMarketWindow converts a Gamma market into a MarketWindow. Missing or
// malformed fields yield domain.ErrIncompleteMarket.
func (m apiMarket) toMarketWindow() (domain.MarketWindow, error) {
	slug := m.Slug
	if slug == "" {
		slug = m.MarketSlug
	}
	w := domain.MarketWindow{
		Slug:        slug,
		ConditionID: m.ConditionID,
		NegRisk:     bool(m.NegRisk),
	}

	if m.ClobTokenIDs != "" {
		var ids []string
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
			return w, fmt.Errorf("%w: %s: clobTokenIds: %v", domain.ErrIncompleteMarket, slug, err)
		}
		if len(ids) != 2 {
			return w, fmt.Errorf("%w: %s: expected 2 token ids, got %d", domain.ErrIncompleteMarket, slug, len(ids))
		}
		w.OutcomeTokenIDs = [2]string{ids[0], ids[1]}
	}

	start := m.EventStartTime
	if start == "" {
		start = m.StartDate
	}
	if t, ok := parseStartTime(start); ok {
		w.StartTime = t
	}

	if !w.Complete() {
		return w, fmt.Errorf("%w: %s", domain.ErrIncompleteMarket, slug)
	}
	return w, nil
}

// decodeMarkets accepts a list, a single object, or {"markets": [...]}.
func decodeMarkets(body []byte) ([]apiMarket, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []apiMarket
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped struct {
		Markets []apiMarket `json:"markets"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Markets != nil {
		return wrapped.Markets, nil
	}

	var single apiMarket
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	if single == (apiMarket{}) {
		return nil, nil
	}
	return []apiMarket{single}, nil
}

// --------------------------------------------------------------------------
// User channel messages
// --------------------------------------------------------------------------

// userSubscribe is the first frame sent on the user channel.
type userSubscribe struct {
	Markets []string   `json:"markets"`
	Type    string     `json:"type"`
	Auth    userWSAuth `json:"auth"`
}

type userWSAuth struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// userEvent covers the "order" and "trade" events of the user channel and
// the legacy "order_update" shape.
type userEvent struct {
	EventType    string     `json:"event_type"`
	Type         string     `json:"type"`
	ID           flexString `json:"id"`
	OrderID      flexString `json:"orderId"`
	TakerOrderID flexString `json:"taker_order_id"`
	Market       string     `json:"market"`
	AssetID      string     `json:"asset_id"`
	Side         string     `json:"side"`
	Price        flexString `json:"price"`
	SizeMatched  flexString `json:"size_matched"`
	Size         flexString `json:"size"`
	FilledSize   flexString `json:"filledSize"`
	Status       string     `json:"status"`
	MakerOrders  []struct {
		OrderID       flexString `json:"order_id"`
		AssetID       string     `json:"asset_id"`
		MatchedAmount flexString `json:"matched_amount"`
		Price         flexString `json:"price"`
	} `json:"maker_orders"`
}

// fillEvents expands one user-channel event into a FillEvent per order id
// it mentions. Trades name the taker order and every maker order.
func (e userEvent) fillEvents(now time.Time) []domain.FillEvent {
	kind := e.EventType
	if kind == "" {
		kind = e.Type
	}
	base := domain.FillEvent{
		EventType:  kind,
		Status:     e.Status,
		Market:     e.Market,
		AssetID:    e.AssetID,
		Side:       e.Side,
		Price:      string(e.Price),
		ReceivedAt: now,
	}

	switch kind {
	case "order":
		ev := base
		ev.OrderID = string(e.ID)
		ev.SizeMatched = string(e.SizeMatched)
		return []domain.FillEvent{ev}
	case "order_update":
		ev := base
		ev.OrderID = string(e.OrderID)
		ev.SizeMatched = string(e.FilledSize)
		return []domain.FillEvent{ev}
	case "trade":
		out := make([]domain.FillEvent, 0, 1+len(e.MakerOrders))
		if e.TakerOrderID != "" {
			ev := base
			ev.OrderID = string(e.TakerOrderID)
			ev.SizeMatched = string(e.Size)
			out = append(out, ev)
		}
		for _, mo := range e.MakerOrders {
			ev := base
			ev.OrderID = string(mo.OrderID)
			ev.AssetID = mo.AssetID
			ev.Price = string(mo.Price)
			ev.SizeMatched = string(mo.MatchedAmount)
			out = append(out, ev)
		}
		return out
	}
	return nil
}

// decodeUserFrame decodes a frame that holds either one event or an array.
func decodeUserFrame(raw []byte) ([]userEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var evs []userEvent
		if err := json.Unmarshal(trimmed, &evs); err != nil {
			return nil, err
		}
		return evs, nil
	}
	var ev userEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, err
	}
	return []userEvent{ev}, nil
}
