package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type Action string

const (
	ActionAdvertisePeriods        Action = "advertise_periods"
	ActionStatisticsUpdate        Action = "statistics_update"
	ActionScrapeYears             Action = "scrape_years"
	ActionScrapeRange             Action = "scrape_range"
	ActionScrapeRangeAndDumpItems Action = "scrape_range_and_dump_items"
	ActionCheckFeatureAuthorized  Action = "check_feature_authorized"
	ActionShowPaymentUI           Action = "show_payment_ui"
	ActionClearCache              Action = "clear_cache"
	ActionForceLogout             Action = "force_logout"
	ActionAbort                   Action = "abort"
	ActionAuthorisationStatus     Action = "authorisation_status"
	ActionDumpOrderDetail         Action = "dump_order_detail"
	ActionRemoveCookie            Action = "remove_cookie"
	ActionOpenTab                 Action = "open_tab"
	ActionGetItems3M              Action = "get_items_3m"
)

// Message is one variant of the routed message vocabulary. The action tag is
// carried by the type, not by a field.
type Message interface {
	Action() Action
}

type AdvertisePeriods struct {
	Periods []int `json:"periods"`
}

type StatisticsUpdate struct{}

type ScrapeYears struct {
	Years []int `json:"years"`
}

type ScrapeRange struct {
	StartDate json.RawMessage `json:"start_date"`
	EndDate   json.RawMessage `json:"end_date"`
}

type ScrapeRangeAndDumpItems struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

type CheckFeatureAuthorized struct {
	FeatureID FeatureID `json:"feature_id"`
}

type ShowPaymentUI struct{}

type ClearCache struct{}

type ForceLogout struct{}

type Abort struct{}

type AuthorisationStatus struct {
	Authorised bool `json:"authorisation_status"`
}

type DumpOrderDetail struct {
	OrderID string `json:"order_id"`
}

type RemoveCookie struct {
	CookieURL  string `json:"cookie_url"`
	CookieName string `json:"cookie_name"`
}

type OpenTab struct {
	URL string `json:"url"`
}

type GetItems3M struct{}

// Unknown holds any action outside the vocabulary.
type Unknown struct {
	Name Action `json:"-"`
}

func (AdvertisePeriods) Action() Action        { return ActionAdvertisePeriods }
func (StatisticsUpdate) Action() Action        { return ActionStatisticsUpdate }
func (ScrapeYears) Action() Action             { return ActionScrapeYears }
func (ScrapeRange) Action() Action             { return ActionScrapeRange }
func (ScrapeRangeAndDumpItems) Action() Action { return ActionScrapeRangeAndDumpItems }
func (CheckFeatureAuthorized) Action() Action  { return ActionCheckFeatureAuthorized }
func (ShowPaymentUI) Action() Action           { return ActionShowPaymentUI }
func (ClearCache) Action() Action              { return ActionClearCache }
func (ForceLogout) Action() Action             { return ActionForceLogout }
func (Abort) Action() Action                   { return ActionAbort }
func (AuthorisationStatus) Action() Action     { return ActionAuthorisationStatus }
func (DumpOrderDetail) Action() Action         { return ActionDumpOrderDetail }
func (RemoveCookie) Action() Action            { return ActionRemoveCookie }
func (OpenTab) Action() Action                 { return ActionOpenTab }
func (GetItems3M) Action() Action              { return ActionGetItems3M }
func (u Unknown) Action() Action               { return u.Name }

// Inbound is a decoded message together with the exact bytes it arrived as,
// so that forwarded commands reach their recipients unmodified.
type Inbound struct {
	Message Message
	Raw     json.RawMessage
}

func DecodeMessage(raw []byte) (Inbound, error) {
	var head struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	var (
		msg Message
		err error
	)
	switch head.Action {
	case ActionAdvertisePeriods:
		msg, err = decodeVariant[AdvertisePeriods](raw)
	case ActionStatisticsUpdate:
		msg = StatisticsUpdate{}
	case ActionScrapeYears:
		msg = decodeForwarded[ScrapeYears](raw)
	case ActionScrapeRange:
		msg = decodeForwarded[ScrapeRange](raw)
	case ActionScrapeRangeAndDumpItems:
		msg, err = decodeVariant[ScrapeRangeAndDumpItems](raw)
	case ActionCheckFeatureAuthorized:
		msg, err = decodeVariant[CheckFeatureAuthorized](raw)
	case ActionShowPaymentUI:
		msg = ShowPaymentUI{}
	case ActionClearCache:
		msg = ClearCache{}
	case ActionForceLogout:
		msg = ForceLogout{}
	case ActionAbort:
		msg = Abort{}
	case ActionAuthorisationStatus:
		msg, err = decodeVariant[AuthorisationStatus](raw)
	case ActionDumpOrderDetail:
		msg, err = decodeVariant[DumpOrderDetail](raw)
	case ActionRemoveCookie:
		msg, err = decodeVariant[RemoveCookie](raw)
	case ActionOpenTab:
		msg, err = decodeVariant[OpenTab](raw)
	case ActionGetItems3M:
		msg = GetItems3M{}
	default:
		msg = Unknown{Name: head.Action}
	}
	if err != nil {
		return Inbound{}, fmt.Errorf("%w: decode %s: %w", ErrMalformedMessage, head.Action, err)
	}

	return Inbound{Message: msg, Raw: append(json.RawMessage(nil), raw...)}, nil
}

// decodeForwarded reads a command that is relayed as its raw bytes. A field
// of the wrong shape leaves that field empty instead of rejecting the frame.
func decodeForwarded[T Message](raw []byte) Message {
	var v T
	_ = json.Unmarshal(raw, &v)
	return v
}

func decodeVariant[T Message](raw []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeMessage renders msg as a JSON object with its action tag.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformedMessage)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Action(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Action(), err)
	}
	tag, err := json.Marshal(msg.Action())
	if err != nil {
		return nil, fmt.Errorf("encode %s action: %w", msg.Action(), err)
	}
	fields["action"] = tag

	return json.Marshal(fields)
}
