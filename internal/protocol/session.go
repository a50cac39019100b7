package protocol

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aicodix/cofdmtv/internal/audio"
	"github.com/aicodix/cofdmtv/internal/fec"
	"github.com/aicodix/cofdmtv/internal/modem"
)

// SessionMode represents the operating mode.
type SessionMode int

const (
	ModeSend    SessionMode = iota
	ModeReceive
	ModeDuplex
)

// SessionStatus represents the session state.
type SessionStatus int

const (
	StatusDisconnected SessionStatus = iota
	StatusConnecting
	StatusConnected
	StatusTransferring
	StatusCompleted
	StatusError
)

// String returns the status name.
func (s SessionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusTransferring:
		return "transferring"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StagedInfo carries the preamble metadata latched by the decoder for
// the most recent physical frame: who is transmitting, in which
// operation mode, and at what carrier-frequency offset.
type StagedInfo struct {
	CallSign string
	Mode     int
	CFOHz    float64
}

// SessionEvent is sent to listeners when session state changes. Staged
// is set on events that follow a decoded physical frame.
type SessionEvent struct {
	Status   SessionStatus
	Message  string
	Progress float64 // 0.0 to 1.0
	Error    error
	Staged   *StagedInfo
}

// maxChunkPayload is the largest slice of RS-encoded bytes a single
// physical frame's payload can carry once the chunk sub-header is
// deducted. The fragmentation itself (EncodeChunk/DecodeChunk) lives in
// frame.go next to the rest of the wire format.
const maxChunkPayload = modem.MaxPayloadBytes - ChunkHeaderSize

// Session manages an audio modem communication session built on the
// COFDMTV physical layer (modem.Encoder / modem.Decoder).
type Session struct {
	audioIO   *audio.AudioIO
	encoder   *modem.Encoder
	decoder   *modem.Decoder
	rsEncoder *fec.RSEncoder
	transport *Transport

	rate          modem.Rate
	carrierFreqHz float64
	callSign      string
	noiseSymbols  int
	fancyHeader   bool
	channel       modem.ChannelSelect

	mode   SessionMode
	status SessionStatus

	eventChan chan SessionEvent

	hasInput  bool
	hasOutput bool
}

// NewSession creates a new communication session transmitting/receiving
// over rate's COFDMTV physical layer at carrierFreqHz, identifying
// itself with callSign (used as the preamble metadata call sign on
// every physical frame this session sends).
func NewSession(rate modem.Rate, carrierFreqHz float64, callSign string, mode SessionMode) (*Session, error) {
	rsEnc, err := fec.NewRSEncoder()
	if err != nil {
		return nil, fmt.Errorf("create RS encoder: %w", err)
	}

	enc, err := modem.NewEncoder(rate, carrierFreqHz)
	if err != nil {
		return nil, fmt.Errorf("create modem encoder: %w", err)
	}
	dec, err := modem.NewDecoder(rate, carrierFreqHz)
	if err != nil {
		return nil, fmt.Errorf("create modem decoder: %w", err)
	}

	s := &Session{
		audioIO:       audio.NewAudioIO(float64(rate), enc.Layout().ExtendedLen),
		encoder:       enc,
		decoder:       dec,
		rsEncoder:     rsEnc,
		rate:          rate,
		carrierFreqHz: carrierFreqHz,
		callSign:      callSign,
		noiseSymbols:  1,
		channel:       modem.ChannelMono,
		mode:          mode,
		eventChan:     make(chan SessionEvent, 100),
	}

	s.transport = NewTransport(s.sendFrame, s.receiveFrame)

	return s, nil
}

// SetFancyHeader toggles the call-sign bitmap header on transmitted frames.
func (s *Session) SetFancyHeader(on bool) { s.fancyHeader = on }

// SetNoiseSymbols sets the number of randomised preamble-padding symbols.
func (s *Session) SetNoiseSymbols(n int) { s.noiseSymbols = n }

// SetChannel selects the mono/stereo/complex-baseband PCM convention.
func (s *Session) SetChannel(c modem.ChannelSelect) { s.channel = c }

// Open initializes the audio I/O based on the session mode.
func (s *Session) Open() error {
	s.setStatus(StatusConnecting, "Opening audio devices...")

	switch s.mode {
	case ModeSend:
		// Send mode: need output (required) + input (optional, for ACK)
		if err := s.audioIO.OpenOutput(); err != nil {
			s.setStatus(StatusError, fmt.Sprintf("Audio output open failed: %v", err))
			return err
		}
		s.hasOutput = true

		if err := s.audioIO.OpenInput(); err != nil {
			log.Printf("Warning: No input device available. ACK reception disabled: %v", err)
			s.hasInput = false
		} else {
			s.hasInput = true
		}

	case ModeReceive:
		// Receive mode: need input (required) + output (optional, for ACK)
		if err := s.audioIO.OpenInput(); err != nil {
			s.setStatus(StatusError, fmt.Sprintf("Audio input open failed: %v", err))
			return err
		}
		s.hasInput = true

		if err := s.audioIO.OpenOutput(); err != nil {
			log.Printf("Warning: No output device available. ACK sending disabled: %v", err)
			s.hasOutput = false
		} else {
			s.hasOutput = true
		}

	case ModeDuplex:
		// Need both
		if err := s.audioIO.OpenDuplex(); err != nil {
			s.setStatus(StatusError, fmt.Sprintf("Audio open failed: %v", err))
			return err
		}
		s.hasInput = true
		s.hasOutput = true
	}

	s.setStatus(StatusConnected, "Audio devices ready")
	return nil
}

// Close releases all resources.
func (s *Session) Close() error {
	s.setStatus(StatusDisconnected, "Session closed")
	return s.audioIO.Close()
}

// Events returns the event channel for monitoring session state.
func (s *Session) Events() <-chan SessionEvent {
	return s.eventChan
}

// Transport returns the transport layer for file transfer operations.
func (s *Session) Transport() *Transport {
	return s.transport
}

// sendFrame RS-protects a protocol Frame, fragments the result across
// as many COFDMTV physical frames as modem.MaxPayloadBytes requires,
// and transmits each through the Encoder's configure/produce surface.
func (s *Session) sendFrame(frame *Frame) error {
	if !s.hasOutput {
		return fmt.Errorf("no output device available")
	}

	raw := frame.Encode()
	encoded, err := s.rsEncoder.Encode(raw)
	if err != nil {
		return fmt.Errorf("RS encode: %w", err)
	}

	chunks := SplitChunks(encoded, maxChunkPayload)
	if len(chunks) > MaxChunkCount {
		return fmt.Errorf("frame too large for chunk header: %d chunks", len(chunks))
	}

	if err := s.audioIO.StartOutput(); err != nil {
		return fmt.Errorf("start output: %w", err)
	}
	defer s.audioIO.StopOutput()

	buf := make([]int16, s.encoder.Layout().ExtendedLen)

	for i, chunk := range chunks {
		payload := EncodeChunk(i, len(chunks), chunk)

		if err := s.encoder.Configure(payload, s.callSign, s.noiseSymbols, s.fancyHeader); err != nil {
			return fmt.Errorf("configure physical frame %d/%d: %w", i+1, len(chunks), err)
		}

		for s.encoder.Produce(buf, s.channel) {
			if err := s.audioIO.Write(int16ToFloat32(buf)); err != nil {
				return fmt.Errorf("write samples: %w", err)
			}
		}
	}

	return nil
}

// receiveFrame feeds microphone PCM through the Decoder until every
// chunk of one RS-protected protocol Frame has been recovered, then
// reassembles, RS-decodes, and parses it.
func (s *Session) receiveFrame(timeout time.Duration) (*Frame, error) {
	if !s.hasInput {
		return nil, fmt.Errorf("no input device available")
	}

	if err := s.audioIO.StartInput(); err != nil {
		return nil, fmt.Errorf("start input: %w", err)
	}
	defer s.audioIO.StopInput()

	deadline := time.Now().Add(timeout)

	chunks := make(map[int][]byte)
	total := -1

collect:
	for time.Now().Before(deadline) {
		samples32, err := s.audioIO.Read()
		if err != nil {
			return nil, fmt.Errorf("read audio: %w", err)
		}

		if !s.decoder.Feed(float32ToInt16(samples32), s.channel) {
			continue
		}

		if s.decoder.Process() != modem.StatusDone {
			continue
		}

		fetched := make([]byte, modem.MaxPayloadBytes)
		n := s.decoder.Fetch(fetched)
		if n < 0 {
			log.Printf("physical frame failed payload decode, waiting for retransmission")
			continue
		}

		staged := s.Staged()
		idx, count, data, err := DecodeChunk(fetched, n)
		if err != nil {
			log.Printf("discarding physical frame from %s: %v", staged.CallSign, err)
			continue
		}
		chunks[idx] = data
		total = count
		s.emitStaged(staged, fmt.Sprintf("physical frame %d/%d from %s", idx+1, count, staged.CallSign))

		if total > 0 && len(chunks) >= total {
			break collect
		}
	}

	if total <= 0 || len(chunks) < total {
		got := len(chunks)
		return nil, fmt.Errorf("timeout: received %d/%d physical frames", got, total)
	}

	var encoded []byte
	for i := 0; i < total; i++ {
		chunk, ok := chunks[i]
		if !ok {
			return nil, fmt.Errorf("missing physical frame %d of %d", i, total)
		}
		encoded = append(encoded, chunk...)
	}

	decoded, err := s.rsEncoder.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("RS decode: %w", err)
	}

	frame, err := DecodeFrame(decoded)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	return frame, nil
}

// Staged reports the preamble metadata the decoder latched for the most
// recently synchronised physical frame.
func (s *Session) Staged() StagedInfo {
	cfoHz, mode, call := s.decoder.Staged()
	return StagedInfo{
		CallSign: strings.TrimSpace(modem.DecodeCallSign(call)),
		Mode:     mode,
		CFOHz:    cfoHz,
	}
}

func (s *Session) setStatus(status SessionStatus, message string) {
	s.status = status
	s.emit(SessionEvent{Status: status, Message: message})
}

// emitStaged publishes a decoded-frame event carrying the transmitter's
// staged preamble info alongside the usual status text.
func (s *Session) emitStaged(staged StagedInfo, message string) {
	info := staged
	s.emit(SessionEvent{Status: s.status, Message: message, Staged: &info})
}

func (s *Session) emit(event SessionEvent) {
	select {
	case s.eventChan <- event:
	default:
		log.Printf("Event channel full, dropping: %s - %s", event.Status, event.Message)
	}
}

func int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v) / 32768
	}
	return out
}

func float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		f := v * 32768
		if f > 32767 {
			f = 32767
		}
		if f < -32768 {
			f = -32768
		}
		out[i] = int16(f)
	}
	return out
}
