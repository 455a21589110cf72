package amqp

import (
	"encoding/json"
	"time"
)

const (
	EventPurchaseCreated = "purchase.created"
	EventPurchaseDeleted = "purchase.deleted"
	EventInstallmentPaid = "installment.paid"
)

// CardEventMessage tells the balance worker that a card's installment plan
// changed. It carries only IDs; the worker reloads the card and its purchases
// from the database before recomputing balances.
type CardEventMessage struct {
	Event      string    `json:"event"`
	PurchaseID int64     `json:"purchase_id"`
	CardID     int64     `json:"card_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewCardEventMessage(event string, purchaseID, cardID int64) *CardEventMessage {
	return &CardEventMessage{
		Event:      event,
		PurchaseID: purchaseID,
		CardID:     cardID,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *CardEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func CardEventMessageFromJSON(data []byte) (*CardEventMessage, error) {
	var msg CardEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
