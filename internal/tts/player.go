package tts

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Player turns PCM streams into audible speech through the default output
// device.
type Player struct {
	mu     sync.Mutex
	otoCtx *oto.Context
}

// NewPlayer initializes the output device at PlaybackRate mono 16-bit.
func NewPlayer() (*Player, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   PlaybackRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   200 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	return &Player{otoCtx: otoCtx}, nil
}

// PlayStream drains the PCM channel through the speaker and blocks until
// playback finishes or ctx is cancelled. The error channel reports stream
// failures; anything already buffered still plays.
func (p *Player) PlayStream(ctx context.Context, pcmCh <-chan []byte, errCh <-chan error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := &chanReader{ctx: ctx, ch: pcmCh}
	player := p.otoCtx.NewPlayer(r)
	player.Play()
	defer player.Close()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	if err, ok := <-errCh; ok && err != nil {
		return err
	}
	return nil
}

// PlayClip plays a fully buffered PCM clip.
func (p *Player) PlayClip(ctx context.Context, pcm []byte) error {
	pcmCh := make(chan []byte, 1)
	errCh := make(chan error)
	pcmCh <- pcm
	close(pcmCh)
	close(errCh)
	return p.PlayStream(ctx, pcmCh, errCh)
}

// chanReader adapts a chunk channel to io.Reader for oto.
type chanReader struct {
	ctx  context.Context
	ch   <-chan []byte
	rest []byte
}

func (r *chanReader) Read(p []byte) (int, error) {
	if len(r.rest) == 0 {
		select {
		case chunk, ok := <-r.ch:
			if !ok {
				return 0, io.EOF
			}
			r.rest = chunk
		case <-r.ctx.Done():
			return 0, io.EOF
		}
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}

// AlertTone synthesizes a short two-note chime used when speech synthesis
// is unavailable. Something audible still interrupts the call.
func AlertTone() []byte {
	const (
		noteDur = 300 * time.Millisecond
		gap     = 80 * time.Millisecond
	)
	notes := []float64{880, 660}

	total := (len(notes)*int(noteDur.Milliseconds()) + (len(notes)-1)*int(gap.Milliseconds())) * PlaybackRate / 1000
	out := make([]byte, total*2)

	offset := 0
	for i, freq := range notes {
		n := int(noteDur.Milliseconds()) * PlaybackRate / 1000
		for j := 0; j < n; j++ {
			// Linear fade at the edges avoids clicks.
			env := 1.0
			if j < 200 {
				env = float64(j) / 200
			} else if n-j < 200 {
				env = float64(n-j) / 200
			}
			v := math.Sin(2*math.Pi*freq*float64(j)/PlaybackRate) * env * 0.4
			binary.LittleEndian.PutUint16(out[(offset+j)*2:], uint16(int16(v*32767)))
		}
		offset += n
		if i < len(notes)-1 {
			offset += int(gap.Milliseconds()) * PlaybackRate / 1000
		}
	}
	return out
}
