package mq

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/lostboard/apiserver/types"
)

const (
	attrEvent    = "event"
	attrItemType = "item_type"
	attrItemID   = "item_id"
)

// EncodeItemEvent serializes an item event and the attributes brokers use
// for filtering.
func EncodeItemEvent(event types.ItemEvent) ([]byte, map[string]string, error) {
	if event.Event == "" {
		return nil, nil, errors.New("event name is required")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, nil, err
	}
	attrs := map[string]string{
		attrEvent:    event.Event,
		attrItemType: string(event.Type),
		attrItemID:   strconv.Itoa(event.ItemID),
	}
	return data, attrs, nil
}

// DecodeItemEvent parses a message produced by EncodeItemEvent.
func DecodeItemEvent(msg Message) (types.ItemEvent, error) {
	var event types.ItemEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.ItemEvent{}, err
	}
	if event.Event == "" {
		event.Event = msg.Attributes[attrEvent]
	}
	return event, nil
}
