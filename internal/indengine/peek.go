package indengine

import (
	"context"
	"log"
)

// peekLoop subscribes to forming bar PubSub for live indicator previews.
func (svc *Service) peekLoop(ctx context.Context) {
	if err := svc.redisReader.SubscribeFormingBars(ctx, svc.cfg.EnabledTFs, svc.cfg.PeekBaseTF, svc.barCh); err != nil {
		log.Printf("[indengine] forming bar subscription error: %v", err)
	}
}
