package order

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wire mirrors Event with pointer fields so missing keys can be told apart from zero values.
type wire struct {
	EventType     *string    `json:"event_type"`
	OrderID       *string    `json:"order_id"`
	CustomerID    *string    `json:"customer_id"`
	CreatedAtMs   *int64     `json:"created_at_ms"`
	Items         []wireItem `json:"items"`
	Total         *float64   `json:"total"`
	SchemaVersion *int       `json:"schema_version"`
}

type wireItem struct {
	SKU   *string  `json:"sku"`
	Qty   *int     `json:"qty"`
	Price *float64 `json:"price"`
}

// Encode serializes the event as UTF-8 JSON. Output is deterministic for a given event
// and non-ASCII text is written as-is.
func Encode(e *Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("encode: event is nil")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a record value into an Event.
// Unknown fields are ignored so newer schema versions stay readable; a missing
// schema_version is read as version 1. Malformed JSON, missing required fields and
// invalid items yield a *DecodeError.
func Decode(value []byte) (*Event, error) {
	if len(bytes.TrimSpace(value)) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	var w wire
	if err := json.Unmarshal(value, &w); err != nil {
		return nil, &DecodeError{Err: err}
	}

	switch {
	case w.EventType == nil:
		return nil, &DecodeError{Reason: "missing field event_type"}
	case w.OrderID == nil || *w.OrderID == "":
		return nil, &DecodeError{Reason: "missing field order_id"}
	case len(w.Items) == 0:
		return nil, &DecodeError{Reason: "missing or empty field items"}
	}

	e := &Event{
		EventType:     *w.EventType,
		OrderID:       *w.OrderID,
		SchemaVersion: SchemaVersion,
		Items:         make([]Item, 0, len(w.Items)),
	}
	if w.CustomerID != nil {
		e.CustomerID = *w.CustomerID
	}
	if w.CreatedAtMs != nil {
		e.CreatedAtMs = *w.CreatedAtMs
	}
	if w.Total != nil {
		e.Total = *w.Total
	}
	if w.SchemaVersion != nil {
		e.SchemaVersion = *w.SchemaVersion
	}

	for i, wi := range w.Items {
		if wi.SKU == nil || wi.Qty == nil || wi.Price == nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("items[%d]: sku, qty and price are required", i)}
		}
		it := Item{SKU: *wi.SKU, Qty: *wi.Qty, Price: *wi.Price}
		if err := validateItem(i, it); err != nil {
			return nil, &DecodeError{Reason: "invalid item", Err: err}
		}
		e.Items = append(e.Items, it)
	}

	return e, nil
}
