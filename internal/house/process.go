package house

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"liquidityHouse/internal/amount"
	"liquidityHouse/internal/model"
)

// Movement is one leg of a client execution. For the incoming leg Address is
// where the funds came from, for the outgoing leg where they go.
type Movement struct {
	Address model.Address `json:"address" yaml:"address"`
	Amount  amount.Amount `json:"amount" yaml:"amount"`
}

// Process settles a client execution against the pool. The sender is the
// client. The incoming amount is pulled from incoming.Address; when that is
// unset or the sender itself, the sender must attach it. A zero incoming
// amount counts as no incoming leg. The net of the two legs is booked as
// revenue or as a payment, then the outgoing leg is paid out.
//
// When a rate limit is triggered by this execution the incoming amount is
// refunded to the initiator, nothing is booked and Response.Triggered is set.
func (e *Engine) Process(ctx context.Context, env Env, initiator model.Address, incoming, outgoing *Movement) (*Response, error) {
	return e.exec(ctx, "process", env, func(o *op) error {
		if err := validateAddress(o.env.Sender); err != nil {
			return err
		}
		if err := validateAddress(initiator); err != nil {
			return fmt.Errorf("initiator: %w", err)
		}

		if incoming != nil && incoming.Amount.IsZero() {
			incoming = nil
		}

		client, err := o.loadOrCreateClient(o.env.Sender)
		if err != nil {
			return err
		}
		if client.Suspended {
			return fmt.Errorf("%w: %s", ErrClientSuspended, client.Address.Hex())
		}

		if incoming == nil && outgoing == nil {
			if err := o.txn.PutClient(client); err != nil {
				return err
			}
			return o.amortize()
		}

		in, out := amount.Zero, amount.Zero
		if incoming != nil {
			if err := requireAmount(incoming.Amount); err != nil {
				return fmt.Errorf("incoming: %w", err)
			}
			in = incoming.Amount
		}
		if outgoing != nil {
			if err := validateAddress(outgoing.Address); err != nil {
				return fmt.Errorf("outgoing: %w", err)
			}
			if err := requireAmount(outgoing.Amount); err != nil {
				return fmt.Errorf("outgoing: %w", err)
			}
			out = outgoing.Amount
		}
		if incoming != nil {
			if err := o.collectIncoming(*incoming); err != nil {
				return err
			}
		}

		triggered := false
		event, err := o.checkAndRecord(client.Address, client.RateLimit, in, out, scopeClient)
		if err != nil {
			return err
		}
		switch event {
		case rateLimitThrottled:
			return fmt.Errorf("%w: %s", ErrClientSuspended, client.Address.Hex())
		case rateLimitTriggered:
			client.Suspended = true
			triggered = true
			if err := o.pushEvent(model.EventClientRateLimitTriggered, client.Address, initiator); err != nil {
				return err
			}
			o.logger.Warn("client suspended by rate limit", zap.String("client", client.Address.Hex()))
		}

		if initiator != client.Address {
			event, err := o.checkAndRecord(initiator, o.cfg.AccountRateLimit, in, out, scopeAccount)
			if err != nil {
				return err
			}
			switch event {
			case rateLimitThrottled:
				return fmt.Errorf("%w: %s", ErrAccountSuspended, initiator.Hex())
			case rateLimitTriggered:
				triggered = true
				if err := o.pushEvent(model.EventAccountRateLimitTriggered, client.Address, initiator); err != nil {
					return err
				}
			}
		}

		client.Executions++

		if triggered {
			o.pay(initiator, in)
			o.resp.Triggered = true
			o.resp.Amount = in
			return o.txn.PutClient(client)
		}

		switch {
		case out.Gt(in):
			payment, err := sub(out, in, "process payment")
			if err != nil {
				return err
			}
			if err := o.applyPayment(payment); err != nil {
				return err
			}
			client.Expense = client.Expense.Add(payment)
		case in.Gt(out):
			revenue, err := sub(in, out, "process revenue")
			if err != nil {
				return err
			}
			if err := o.applyRevenue(revenue); err != nil {
				return err
			}
			client.Revenue = client.Revenue.Add(revenue)
		}
		if outgoing != nil {
			o.pay(outgoing.Address, out)
		}
		o.resp.Amount = out

		if err := o.txn.PutClient(client); err != nil {
			return err
		}
		return o.amortize()
	})
}

// collectIncoming pulls the incoming leg into the house. Funds from a third
// party move directly from its balance; the sender's own funds must be
// attached.
func (o *op) collectIncoming(m Movement) error {
	if m.Address == (model.Address{}) || m.Address == o.env.Sender {
		return o.collect(o.env.Sender, m.Amount)
	}
	if err := validateAddress(m.Address); err != nil {
		return fmt.Errorf("incoming: %w", err)
	}
	o.transfer(m.Address, o.house, m.Amount)
	return nil
}

func (o *op) loadOrCreateClient(addr model.Address) (model.Client, error) {
	client, ok, err := o.txn.Client(addr)
	if err != nil || ok {
		return client, err
	}
	o.counters.NClients++
	o.logger.Info("client connected", zap.String("client", addr.Hex()))
	return model.Client{
		Address:     addr,
		ConnectedAt: o.env.Block.Time,
		RateLimit:   o.cfg.DefaultClientRateLimit,
	}, nil
}
