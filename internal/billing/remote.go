// AngelaMos | 2026
// remote.go

package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RemoteSubscription is the processor-side subscription snapshot the
// reconciler works from. The period fields mirror the places Stripe has
// exposed the period end across API versions.
type RemoteSubscription struct {
	ID               string
	CustomerID       string
	Status           string
	Metadata         map[string]string
	CurrentPeriodEnd int64
	PeriodEnd        int64
	CurrentPeriod    *RemotePeriod
	Items            []RemoteItem
}

type RemoteItem struct {
	PriceID          string
	CurrentPeriodEnd int64
	Period           *RemotePeriod
}

type RemotePeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (s *RemoteSubscription) PriceID() string {
	if s == nil || len(s.Items) == 0 {
		return ""
	}
	return s.Items[0].PriceID
}

func (s *RemoteSubscription) HotelID() string {
	if s == nil {
		return ""
	}
	return s.Metadata[MetadataHotelID]
}

type RemoteInvoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	PeriodEnd      int64
	LinePeriodEnds []int64
}

// expandableID decodes a Stripe reference that is either a bare id or an
// expanded object carrying an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type subscriptionPayload struct {
	ID               string            `json:"id"`
	Customer         expandableID      `json:"customer"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	PeriodEnd        int64             `json:"period_end"`
	CurrentPeriod    *RemotePeriod     `json:"current_period"`
	Items            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodEnd int64         `json:"current_period_end"`
			Period           *RemotePeriod `json:"period"`
		} `json:"data"`
	} `json:"items"`
}

// ParseSubscription decodes a raw Stripe subscription object.
func ParseSubscription(raw []byte) (*RemoteSubscription, error) {
	var p subscriptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse subscription: %w", err)
	}

	sub := &RemoteSubscription{
		ID:               p.ID,
		CustomerID:       string(p.Customer),
		Status:           p.Status,
		Metadata:         p.Metadata,
		CurrentPeriodEnd: p.CurrentPeriodEnd,
		PeriodEnd:        p.PeriodEnd,
		CurrentPeriod:    p.CurrentPeriod,
	}
	for _, item := range p.Items.Data {
		sub.Items = append(sub.Items, RemoteItem{
			PriceID:          item.Price.ID,
			CurrentPeriodEnd: item.CurrentPeriodEnd,
			Period:           item.Period,
		})
	}
	return sub, nil
}

type invoicePayload struct {
	ID           string       `json:"id"`
	Customer     expandableID `json:"customer"`
	Subscription expandableID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	PeriodEnd int64 `json:"period_end"`
	Lines     struct {
		Data []struct {
			Period *RemotePeriod `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// ParseInvoice decodes a raw Stripe invoice object. The subscription id is
// read from the legacy top-level field or the newer parent details.
func ParseInvoice(raw []byte) (*RemoteInvoice, error) {
	var p invoicePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse invoice: %w", err)
	}

	inv := &RemoteInvoice{
		ID:             p.ID,
		CustomerID:     string(p.Customer),
		SubscriptionID: string(p.Subscription),
		PeriodEnd:      p.PeriodEnd,
	}
	if inv.SubscriptionID == "" && p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		inv.SubscriptionID = string(p.Parent.SubscriptionDetails.Subscription)
	}
	for _, line := range p.Lines.Data {
		if line.Period != nil && line.Period.End > 0 {
			inv.LinePeriodEnds = append(inv.LinePeriodEnds, line.Period.End)
		}
	}
	return inv, nil
}

type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          expandableID      `json:"customer"`
	Subscription      expandableID      `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type CompletedCheckout struct {
	ID                string
	Mode              string
	CustomerID        string
	SubscriptionID    string
	ClientReferenceID string
	Metadata          map[string]string
}

func ParseCheckoutSession(raw []byte) (*CompletedCheckout, error) {
	var p checkoutSessionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse checkout session: %w", err)
	}
	return &CompletedCheckout{
		ID:                p.ID,
		Mode:              p.Mode,
		CustomerID:        string(p.Customer),
		SubscriptionID:    string(p.Subscription),
		ClientReferenceID: p.ClientReferenceID,
		Metadata:          p.Metadata,
	}, nil
}

func (c *CompletedCheckout) HotelID() string {
	if id := c.Metadata[MetadataHotelID]; id != "" {
		return id
	}
	return c.ClientReferenceID
}
