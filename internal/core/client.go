package core

// Client is a transport connection as seen by the core layer.
type Client struct {
	ID     string
	Events chan *Event
}

// NewClient constructs a client with a bounded event buffer.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
	}
}
