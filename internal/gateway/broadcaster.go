package gateway

import (
	"strconv"
	"time"

	"chart-indicators/internal/model"
)

// Envelope types sent to clients.
const (
	msgIndicator = "indicator" // confirmed result of a closed bar
	msgLive      = "live"      // preview from a forming bar
	msgInitial   = "initial"   // latest value replayed on subscribe
)

// buildEnvelope hand-crafts the envelope JSON:
// {"type":..,"channel":..,"data":..,"ts":..,"seq":N,"channel_seq":M}.
// channel names never contain characters that need escaping.
func buildEnvelope(typ, channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+192)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, typ...)
	buf = append(buf, `","channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// broadcastConfirmed numbers, stores and fans out one confirmed result.
func (h *Hub) broadcastConfirmed(r *model.IndicatorResult, now time.Time) {
	channel := r.PubSubChannel()
	meta := metaOf(r)
	data := r.JSON()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{meta: meta, channel: channel, data: data, seq: channelSeq}
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(h.replayCap)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	env := buildEnvelope(msgIndicator, channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, env)
	h.fanOut(meta, false, env)
}

// broadcastLive fans out a preview. Previews are not numbered per channel
// and never replayed.
func (h *Hub) broadcastLive(r *model.IndicatorResult, now time.Time) {
	channel := r.PubSubChannel()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	channelSeq := h.channelSeqs[channel]
	h.mu.Unlock()

	h.fanOut(metaOf(r), true, buildEnvelope(msgLive, channel, r.JSON(), now, seq, channelSeq))
}

func (h *Hub) fanOut(meta channelMeta, live bool, env []byte) {
	dropped := 0
	h.mu.RLock()
	for c := range h.clients {
		if !c.matches(meta, live) {
			continue
		}
		select {
		case c.send <- env:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if h.OnDrop != nil {
		for i := 0; i < dropped; i++ {
			h.OnDrop()
		}
	}
}
