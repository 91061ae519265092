package market

// Provider serves mirrored books to readers such as the ops API.
type Provider interface {
	Book(assetID string) (*Orderbook, bool)
	Assets() []string
}
