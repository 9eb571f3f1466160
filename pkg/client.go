package pkg

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxClientID = 65_535

// Client is the per-connection presence state. It is owned by the Hub and
// only ever touched under the Hub's lock.
type Client struct {
	id              uint32
	link            link
	room            *string
	pointerXPercent *float32
	pointerYPercent *float32
	logger          *log.Entry
}

func newClient(id uint32, l link) *Client {
	return &Client{
		id:   id,
		link: l,
		logger: log.WithFields(log.Fields{
			"client_id": id,
			"conn":      uuid.New(),
		}),
	}
}

// ID returns the wire id handed to the client on connect.
func (c *Client) ID() uint32 {
	return c.id
}

func (c *Client) pointer() ClientPointer {
	return ClientPointer{
		ID:              c.id,
		PointerXPercent: c.pointerXPercent,
		PointerYPercent: c.pointerYPercent,
	}
}

// idAllocator hands out client ids 0,1,2,... and wraps back to 0 once the
// counter reaches maxClientID. Reuse against a still-connected client is
// possible only after ~65k connects in one process lifetime.
type idAllocator struct {
	last uint32
}

func (a *idAllocator) next() uint32 {
	if a.last >= maxClientID {
		a.last = 0
	}
	id := a.last
	a.last++
	return id
}
