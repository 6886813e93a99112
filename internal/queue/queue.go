package queue

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ergochat/irc-go/ircutils"
	"github.com/matt0x6f/irc-engine/internal/charset"
	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/metrics"
	"github.com/rs/zerolog"
)

// Priority orders pending messages, higher first
type Priority uint32

const (
	PriorityMin    Priority = 0
	PriorityNormal Priority = math.MaxUint32 / 2
	PriorityMax    Priority = math.MaxUint32
)

const (
	// MaxPayload is the longest command sent, CRLF excluded
	MaxPayload = 510
	// maxBatch bounds the bytes written by a single tick
	maxBatch = 512 + 2
)

// Message is an encoded, CRLF terminated command waiting to be sent
type Message struct {
	Payload  []byte
	Priority Priority
}

// Options tune flood control
type Options struct {
	// Interval is the minimum delay between two timer driven writes
	Interval time.Duration
	// Burst is the number of messages written per tick
	Burst   int
	Clock   Clock
	Metrics *metrics.Metrics
}

// Queue serializes outgoing commands onto a writer while keeping at most one
// write per Interval, except for PriorityMax messages which bypass it.
// It is not safe for concurrent use.
type Queue struct {
	w         io.Writer
	codec     *charset.Codec
	clock     Clock
	interval  time.Duration
	burst     int
	pending   []Message
	ticker    Ticker
	lastSent  time.Time
	connected bool
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// New creates a queue writing to w
func New(w io.Writer, codec *charset.Codec, opts Options) *Queue {
	if opts.Interval <= 0 {
		opts.Interval = constants.FloodInterval
	}
	if opts.Burst <= 0 {
		opts.Burst = constants.FloodBurst
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &Queue{
		w:        w,
		codec:    codec,
		clock:    opts.Clock,
		interval: opts.Interval,
		burst:    opts.Burst,
		metrics:  opts.Metrics,
		log:      logger.With("queue"),
	}
}

// SetConnected tells the queue whether the transport can be written to
func (q *Queue) SetConnected(connected bool) {
	q.connected = connected
	if !connected {
		q.stopTicker()
		return
	}
	if len(q.pending) > 0 {
		q.startTicker()
	}
}

// Connected reports the last state given to SetConnected
func (q *Queue) Connected() bool {
	return q.connected
}

// Len returns the number of pending messages
func (q *Queue) Len() int {
	return len(q.pending)
}

// C returns the tick channel to wait on, nil while the timer is stopped
func (q *Queue) C() <-chan time.Time {
	if q.ticker == nil {
		return nil
	}
	return q.ticker.C()
}

func (q *Queue) encode(cmd string) []byte {
	var payload []byte
	if q.codec != nil {
		b, err := q.codec.Encode(cmd)
		if err != nil {
			q.log.Debug().Err(err).Msg("Charset conversion failed, sending original bytes")
			payload = []byte(cmd)
		} else {
			payload = b
		}
	} else {
		payload = []byte(cmd)
	}

	if len(payload) > MaxPayload {
		if q.codec == nil || q.codec.UTF8() {
			payload = []byte(ircutils.TruncateUTF8Safe(string(payload), MaxPayload))
		} else {
			payload = payload[:MaxPayload]
		}
	}
	return append(payload, '\r', '\n')
}

// Enqueue encodes cmd and either writes it at once or queues it.
// PriorityMax is always written at once. Other messages are written at once
// only when the queue is idle and at least one interval has passed since the
// last write.
// An error from an immediate write is returned and the message is dropped.
func (q *Queue) Enqueue(cmd string, prio Priority) error {
	payload := q.encode(cmd)
	now := q.clock.Now()

	if prio == PriorityMax || (prio == PriorityNormal && q.connected && q.ticker == nil && now.Sub(q.lastSent) >= q.interval) {
		if err := q.write(payload); err != nil {
			return err
		}
		q.lastSent = now
		return nil
	}

	q.insert(Message{Payload: payload, Priority: prio})
	q.metrics.SetQueueDepth(len(q.pending))
	if q.connected {
		q.startTicker()
	}
	return nil
}

func (q *Queue) insert(msg Message) {
	i := len(q.pending)
	for i > 0 && q.pending[i-1].Priority < msg.Priority {
		i--
	}
	q.pending = append(q.pending, Message{})
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = msg
}

// Tick writes up to Burst pending messages. On a write error the messages
// stay at the head of the queue and the timer keeps running.
func (q *Queue) Tick() error {
	if !q.connected || len(q.pending) == 0 {
		q.stopTicker()
		return nil
	}

	var buf []byte
	n := 0
	for n < q.burst && n < len(q.pending) {
		next := q.pending[n].Payload
		if n > 0 && len(buf)+len(next) >= maxBatch {
			break
		}
		buf = append(buf, next...)
		n++
	}

	if err := q.write(buf); err != nil {
		return err
	}

	q.pending = q.pending[n:]
	q.lastSent = q.clock.Now()
	q.metrics.SetQueueDepth(len(q.pending))
	if len(q.pending) == 0 {
		q.stopTicker()
	}
	return nil
}

func (q *Queue) write(b []byte) error {
	n, err := q.w.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		q.metrics.SendFailed()
		return fmt.Errorf("failed to write to transport: %w", err)
	}
	q.metrics.LineSent(len(b))
	return nil
}

// Reset stops the timer and drops every pending message
func (q *Queue) Reset() {
	q.stopTicker()
	if len(q.pending) > 0 {
		q.log.Debug().Int("dropped", len(q.pending)).Msg("Dropping pending messages")
	}
	q.pending = nil
	q.connected = false
	q.metrics.SetQueueDepth(0)
}

func (q *Queue) startTicker() {
	if q.ticker == nil {
		q.ticker = q.clock.NewTicker(q.interval)
	}
}

func (q *Queue) stopTicker() {
	if q.ticker != nil {
		q.ticker.Stop()
		q.ticker = nil
	}
}
