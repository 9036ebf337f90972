package capture

import (
	"encoding/binary"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/CelesteBean/treehacks-anchor/internal/bridge"
	"github.com/CelesteBean/treehacks-anchor/internal/bus"
	"github.com/CelesteBean/treehacks-anchor/internal/metrics"
)

// Stage reads microphone audio and hands fixed-size chunks to a bridge for
// publication. The malgo callback does only the copy/chunk work; publication
// happens on the bridge's own goroutine.
type Stage struct {
	bridge       *bridge.Bridge
	sampleRate   int
	chunkSamples int
	deviceName   string

	mu      sync.Mutex
	pending []int16

	callbacks atomic.Uint64
	chunks    atomic.Uint64

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
}

// NewStage captures from the device whose name contains deviceName
// (case-insensitive); empty means the system default.
func NewStage(br *bridge.Bridge, sampleRate, chunkMs int, deviceName string) *Stage {
	return &Stage{
		bridge:       br,
		sampleRate:   sampleRate,
		chunkSamples: sampleRate * chunkMs / 1000,
		deviceName:   deviceName,
	}
}

// Start opens the default capture device and begins streaming.
func (s *Stage) Start() error {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	s.malgoCtx = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(s.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	if s.deviceName != "" {
		if id, name, found := resolveDevice(malgoCtx, s.deviceName); found {
			deviceConfig.Capture.DeviceID = id.Pointer()
			log.Printf("capture: using device %q", name)
		} else {
			log.Printf("capture: no device matching %q, falling back to default", s.deviceName)
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.ingest(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		return fmt.Errorf("init microphone: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}
	log.Printf("capture: microphone streaming at %dHz, %d-sample chunks", s.sampleRate, s.chunkSamples)
	return nil
}

// resolveDevice finds the first capture device whose name contains needle,
// case-insensitive.
func resolveDevice(malgoCtx *malgo.AllocatedContext, needle string) (malgo.DeviceID, string, bool) {
	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		log.Printf("capture: device enumeration failed: %v", err)
		return malgo.DeviceID{}, "", false
	}
	lowered := strings.ToLower(needle)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), lowered) {
			return info.ID, info.Name(), true
		}
	}
	return malgo.DeviceID{}, "", false
}

// ingest converts little-endian S16 bytes and emits full chunks.
func (s *Stage) ingest(input []byte) {
	s.callbacks.Add(1)
	s.mu.Lock()
	for i := 0; i+1 < len(input); i += 2 {
		s.pending = append(s.pending, int16(binary.LittleEndian.Uint16(input[i:])))
	}
	var chunks [][]int16
	for len(s.pending) >= s.chunkSamples {
		chunk := make([]int16, s.chunkSamples)
		copy(chunk, s.pending[:s.chunkSamples])
		s.pending = s.pending[s.chunkSamples:]
		chunks = append(chunks, chunk)
	}
	s.mu.Unlock()

	for _, chunk := range chunks {
		s.chunks.Add(1)
		metrics.ChunksCaptured.Inc()
		s.bridge.Offer(bus.NewAudioPayload(chunk, s.sampleRate))
	}
}

// Callbacks reports how many device callbacks have been seen.
func (s *Stage) Callbacks() uint64 { return s.callbacks.Load() }

// Chunks reports how many full chunks have been handed to the bridge.
func (s *Stage) Chunks() uint64 { return s.chunks.Load() }

// Stop halts capture and releases the device.
func (s *Stage) Stop() {
	if s.device != nil {
		s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.malgoCtx != nil {
		s.malgoCtx.Uninit()
		s.malgoCtx = nil
	}
}

// ListDevices names the available capture devices.
func ListDevices() ([]string, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer malgoCtx.Uninit()

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}
