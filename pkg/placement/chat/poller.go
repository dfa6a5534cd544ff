package chat

import (
	"context"

	"go.uber.org/zap"
)

// poller silently reloads one group on every tick until halted
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (v *View) startPoller(groupID uint) *poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel, done: make(chan struct{})}
	ticker := v.newTicker(v.interval)

	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				v.LoadMessages(ctx, groupID, true)
			}
		}
	}()

	v.log.Debug("polling started", zap.Uint("group_id", groupID), zap.Duration("interval", v.interval))
	return p
}

// halt stops the poller and waits for its goroutine to exit
func (p *poller) halt() {
	p.cancel()
	<-p.done
}
