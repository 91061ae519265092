package stream

import (
	"bytes"
	"fmt"

	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type decoder func(raw []byte) (Event, error)

func decodeAs[T Event](raw []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var decoders = map[EventType]decoder{
	EventBook:           decodeAs[BookEvent],
	EventPriceChange:    decodeAs[PriceChangeEvent],
	EventLastTradePrice: decodeAs[LastTradePriceEvent],
	EventBestBidAsk:     decodeAs[BestBidAskEvent],
	EventTrade:          decodeAs[TradeEvent],
	EventOrder:          decodeAs[OrderEvent],
	EventFill:           decodeAs[FillEvent],
}

// Decode turns one text frame into events. It never fails: anything that
// cannot be mapped comes back as an UnknownEvent, and the matching decode
// failures are returned alongside for logging.
func Decode(data []byte) ([]Event, []error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []Event{UnknownEvent{Raw: string(data)}}, []error{decodeFailure("empty frame", nil)}
	}

	switch trimmed[0] {
	case '[':
		var elems []jsoniter.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return []Event{UnknownEvent{Raw: string(data)}}, []error{decodeFailure("parse array", err)}
		}
		events := make([]Event, 0, len(elems))
		var errs []error
		for _, elem := range elems {
			ev, err := decodeOne(elem)
			events = append(events, ev)
			if err != nil {
				errs = append(errs, err)
			}
		}
		return events, errs
	case '{':
		ev, err := decodeOne(trimmed)
		if err != nil {
			return []Event{ev}, []error{err}
		}
		return []Event{ev}, nil
	default:
		return []Event{UnknownEvent{Raw: string(data)}}, []error{decodeFailure("not a JSON object or array", nil)}
	}
}

func decodeOne(raw []byte) (Event, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return UnknownEvent{Raw: string(raw)}, decodeFailure("parse object", err)
	}

	eventType, _ := fields["event_type"].(string)
	unknown := UnknownEvent{EventType: eventType, Fields: fields, Raw: string(raw)}

	dec, ok := decoders[EventType(eventType)]
	if !ok {
		return unknown, nil
	}
	ev, err := dec(raw)
	if err != nil {
		return unknown, decodeFailure(fmt.Sprintf("decode %s", eventType), err)
	}
	return ev, nil
}

func decodeFailure(msg string, cause error) error {
	return apperrors.New(apperrors.ErrProtocolDecode, msg, cause)
}
