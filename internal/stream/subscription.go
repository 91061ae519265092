package stream

import (
	"fmt"
	"strings"

	"github.com/GoPolymarket/polyclob/internal/auth"
)

// Channel selects one of the two independent feeds.
type Channel string

const (
	MarketChannel Channel = "market"
	UserChannel   Channel = "user"
)

// Subscription is fixed for the lifetime of a client and re-sent on every
// new connection.
type Subscription struct {
	Channel Channel
	Topics  []string // asset ids for market, condition ids for user
	Auth    *auth.Credentials
}

type marketFrame struct {
	Type      Channel  `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

type userFrame struct {
	Type    Channel           `json:"type"`
	Markets []string          `json:"markets"`
	Auth    *auth.Credentials `json:"auth"`
}

func (s Subscription) validate() error {
	switch s.Channel {
	case MarketChannel:
		return nil
	case UserChannel:
		if s.Auth == nil {
			return fmt.Errorf("user channel requires API credentials")
		}
		return nil
	default:
		return fmt.Errorf("unknown channel %q", s.Channel)
	}
}

// Frame returns the subscribe message sent right after the socket opens.
func (s Subscription) Frame() ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	topics := make([]string, len(s.Topics))
	copy(topics, s.Topics)

	if s.Channel == MarketChannel {
		return json.Marshal(marketFrame{Type: s.Channel, AssetsIDs: topics})
	}
	return json.Marshal(userFrame{Type: s.Channel, Markets: topics, Auth: s.Auth})
}

// URL joins baseURL with /ws/<channel>.
func (s Subscription) URL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/ws/" + string(s.Channel)
}
