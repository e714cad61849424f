// Package bridge relays encoded chat frames between server instances.
package bridge

// Bridge defines the interface for cross-instance frame broadcasting.
type Bridge interface {
	// Publish sends an encoded envelope to every other instance.
	Publish(frame []byte) error

	// Start begins listening for frames from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the Hub to receive frames from the bridge.
type BroadcastTarget interface {
	BroadcastToLocal(frame []byte)
}
