// Package audio provides the playable clip type and a cross-platform audio
// player built on oto.
package audio

import (
	"strings"
	"sync"
	"time"
)

// PCM format constants. Everything the player touches is normalized to
// 16-bit little-endian mono at 44.1 kHz before it reaches the device.
const (
	SampleRate     = 44100
	Channels       = 1
	BytesPerSample = 2
)

// ContentTypePCM is the content type used for payloads that are already raw
// s16le PCM and need no transcoding.
const ContentTypePCM = "audio/l16"

// Clip is an opaque playable audio resource: the payload bytes plus the
// content type the server reported for them. A clip is handed around by
// pointer; whoever owns it calls Release exactly once when it is no longer
// needed.
type Clip struct {
	ContentType string

	mu       sync.Mutex
	data     []byte
	released bool
	once     sync.Once
}

// NewClip wraps payload bytes and their content type in a Clip.
func NewClip(data []byte, contentType string) *Clip {
	return &Clip{ContentType: contentType, data: data}
}

// Data returns the payload bytes, or nil after Release.
func (c *Clip) Data() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Size returns the payload length in bytes, zero after Release.
func (c *Clip) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Release drops the payload so it can be collected. Safe to call more than
// once; only the first call has any effect.
func (c *Clip) Release() {
	c.once.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.data = nil
		c.released = true
	})
}

// Released reports whether Release has been called.
func (c *Clip) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// IsPCM reports whether the clip payload is already raw PCM.
func (c *Clip) IsPCM() bool {
	return IsPCMContentType(c.ContentType)
}

// IsPCMContentType reports whether a content type denotes raw s16le PCM.
func IsPCMContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case ContentTypePCM, "audio/pcm", "audio/x-raw":
		return true
	}
	return false
}

// PCMDuration returns the play time of n bytes of s16le mono PCM.
func PCMDuration(n int) time.Duration {
	samples := n / (Channels * BytesPerSample)
	return time.Duration(samples) * time.Second / time.Duration(SampleRate)
}
