package transport

import (
	"bytes"
	"encoding/json"
	"sync"
)

// jsonBufferPool reuses encode buffers across publishers for low-rate
// control topics (health, kill_switch, audit) that carry JSON payloads.
// This is a synchronous borrow-encode-copy-return: the buffer never
// outlives the call, so it is safe to return to the pool immediately,
// unlike the envelope itself which fans out to multiple subscribers.
var jsonBufferPool = sync.Pool{
	New: func() interface{} { return bytes.NewBuffer(make([]byte, 0, 512)) },
}

// EncodeJSON serializes v to a fresh, independently-owned byte slice
// suitable for use as an Envelope payload, borrowing a pooled buffer for
// the intermediate encode.
func EncodeJSON(v interface{}) ([]byte, error) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
