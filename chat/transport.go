package chat

import (
	"encoding/json"

	"github.com/vichat/client-go/ws"
)

type wsTransport struct {
	c *ws.Client
}

// NewWSTransport adapts a ws.Client to the Transport interface.
func NewWSTransport(c *ws.Client) Transport {
	return &wsTransport{c: c}
}

func (t *wsTransport) Emit(event string, v interface{}) error {
	return t.c.Emit(event, v)
}

func (t *wsTransport) On(event string, fn func(data json.RawMessage)) Subscription {
	return t.c.On(event, fn)
}
