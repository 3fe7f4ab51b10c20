package syncagent

import (
	"context"

	"tradepost/internal/negotiation"
)

// ServiceFetcher polls snapshots straight from the negotiation core,
// used by in-process consumers and tests; remote clients implement
// Fetcher over the HTTP snapshot endpoint instead.
type ServiceFetcher struct {
	svc      *negotiation.Service
	viewerID string
}

func NewServiceFetcher(svc *negotiation.Service, viewerID string) *ServiceFetcher {
	return &ServiceFetcher{svc: svc, viewerID: viewerID}
}

func (f *ServiceFetcher) FetchSnapshot(ctx context.Context, intentID string) (*negotiation.Snapshot, error) {
	return f.svc.Snapshot(ctx, intentID, f.viewerID)
}
