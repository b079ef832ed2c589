package raknet

import "time"

var processStart = time.Now()

// nowMillis returns a monotonic millisecond counter suitable for the
// ConnectedPing/Pong round-trip timer; peers only ever echo it back.
func nowMillis() int64 {
	return time.Since(processStart).Milliseconds()
}
