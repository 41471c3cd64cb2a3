// Package syncutil provides the per-device lock that serializes evaluations
// of one device while leaving other devices free to proceed.
package syncutil

import (
	"context"
)

const lockShards = 256

// DeviceLocks is a fixed pool of channel-based mutexes keyed by device id.
// Two devices may share a slot; that only costs contention, never correctness.
type DeviceLocks struct {
	slots [lockShards]chan struct{}
}

func NewDeviceLocks() *DeviceLocks {
	l := &DeviceLocks{}
	for i := range l.slots {
		l.slots[i] = make(chan struct{}, 1)
		l.slots[i] <- struct{}{}
	}
	return l
}

// Lock waits for the device's slot or for ctx to end. On success the
// returned func releases the slot and must be called exactly once.
func (l *DeviceLocks) Lock(ctx context.Context, deviceID string) (func(), error) {
	slot := l.slots[slotFor(deviceID)]

	// a cancelled context never acquires, even when the slot is free
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-slot:
		return func() { slot <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func slotFor(deviceID string) uint32 {
	hash := uint32(0)
	for i := 0; i < len(deviceID); i++ {
		hash = hash*31 + uint32(deviceID[i])
	}
	return hash % lockShards
}
