package house

import (
	"liquidityHouse/internal/id"
	"liquidityHouse/internal/model"
)

// MaxEvents caps the number of retained events. The oldest are dropped first.
const MaxEvents = 100

func (o *op) pushEvent(kind model.EventKind, client, initiator model.Address) error {
	ev := model.HouseEvent{
		ID:        id.New(o.env.Block.Time),
		Kind:      kind,
		Block:     o.env.Block,
		Client:    client,
		Initiator: initiator,
	}

	c := &o.counters
	if err := o.txn.PutEvent(c.EventTail, ev); err != nil {
		return err
	}
	c.EventTail++
	for c.EventTail-c.EventHead > MaxEvents {
		o.txn.DeleteEvent(c.EventHead)
		c.EventHead++
	}

	o.resp.Events = append(o.resp.Events, ev)
	return nil
}
