package ports

import "context"

type EntitlementChecker interface {
	CheckAuthorised(ctx context.Context) (bool, error)
}

type BillingUI interface {
	DisplayPaymentUI(ctx context.Context) error
}

type SettingsStore interface {
	StoreBoolean(ctx context.Context, key string, value bool) error
	LoadBoolean(ctx context.Context, key string) (bool, error)
}

// Host exposes the browser capabilities the hub delegates to.
type Host interface {
	RemoveCookie(ctx context.Context, url string, name string) error
	OpenTab(ctx context.Context, url string) error
}
