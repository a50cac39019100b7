package protocol

import (
	"bytes"
	"testing"
)

func TestFrameEncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{"DATA frame", NewDataFrame(42, []byte("chunk of a file in flight"))},
		{"ACK frame", NewACKFrame(42)},
		{"NACK frame", NewNACKFrame(7)},
		{"PING frame", NewPingFrame()},
		{"PONG frame", NewPongFrame()},
		{"CONTROL frame", NewControlFrame([]byte{0x01, 0x02})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeFrame(tt.frame.Encode())
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if decoded.Type != tt.frame.Type {
				t.Errorf("Type: 0x%02x != 0x%02x", decoded.Type, tt.frame.Type)
			}
			if decoded.SeqNum != tt.frame.SeqNum {
				t.Errorf("SeqNum: %d != %d", decoded.SeqNum, tt.frame.SeqNum)
			}
			if decoded.PayloadLen != tt.frame.PayloadLen {
				t.Errorf("PayloadLen: %d != %d", decoded.PayloadLen, tt.frame.PayloadLen)
			}
			if !bytes.Equal(decoded.Payload, tt.frame.Payload) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestFrameCRCDetectsCorruption(t *testing.T) {
	encoded := NewDataFrame(1, []byte("integrity across the air")).Encode()
	encoded[5] ^= 0xFF
	if _, err := DecodeFrame(encoded); err == nil {
		t.Error("expected CRC error for corrupted frame")
	}
}

func TestFrameTooShort(t *testing.T) {
	if _, err := DecodeFrame([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error for short frame")
	}
}

// A protocol frame's RS-protected bytes are fragmented into chunks, one
// per COFDMTV physical frame; splitting, heading and parsing must
// reassemble losslessly.
func TestChunkRoundTrip(t *testing.T) {
	data := make([]byte, 700)
	for i := range data {
		data[i] = byte(i * 3)
	}
	const size = 167 // physical-frame payload minus the sub-header

	chunks := SplitChunks(data, size)
	wantCount := (len(data) + size - 1) / size
	if len(chunks) != wantCount {
		t.Fatalf("chunk count = %d, want %d", len(chunks), wantCount)
	}

	var reassembled []byte
	for i, chunk := range chunks {
		payload := EncodeChunk(i, len(chunks), chunk)
		idx, count, got, err := DecodeChunk(payload, len(payload))
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if idx != i || count != len(chunks) {
			t.Fatalf("chunk %d: header says %d/%d", i, idx, count)
		}
		reassembled = append(reassembled, got...)
	}
	if !bytes.Equal(reassembled, data) {
		t.Error("reassembled bytes differ from input")
	}
}

func TestChunkEmptyInput(t *testing.T) {
	chunks := SplitChunks(nil, 167)
	if len(chunks) != 1 || len(chunks[0]) != 0 {
		t.Fatalf("SplitChunks(nil) = %v, want one empty chunk", chunks)
	}
	payload := EncodeChunk(0, 1, chunks[0])
	idx, count, data, err := DecodeChunk(payload, len(payload))
	if err != nil || idx != 0 || count != 1 || len(data) != 0 {
		t.Fatalf("empty chunk round trip: idx=%d count=%d data=%v err=%v", idx, count, data, err)
	}
}

func TestChunkRejectsMalformed(t *testing.T) {
	if _, _, _, err := DecodeChunk([]byte{0, 1}, 2); err == nil {
		t.Error("undersized payload accepted")
	}
	// index beyond count
	if _, _, _, err := DecodeChunk([]byte{5, 3, 0}, 3); err == nil {
		t.Error("chunk index past count accepted")
	}
	// zero count
	if _, _, _, err := DecodeChunk([]byte{0, 0, 0}, 3); err == nil {
		t.Error("zero chunk count accepted")
	}
}

// The length field may claim more than the decoded payload actually
// carried (a short final chunk in a fixed 170-byte physical frame);
// DecodeChunk must clamp, not over-read.
func TestChunkClampsLength(t *testing.T) {
	payload := []byte{0, 1, 200, 0xAA, 0xBB}
	_, _, data, err := DecodeChunk(payload, len(payload))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{0xAA, 0xBB}) {
		t.Errorf("data = %v, want the two available bytes", data)
	}
}

func TestFileMetaEncodeDecode(t *testing.T) {
	meta := &FileMetadata{
		Filename: "wx_report.txt",
		Size:     12345,
		MD5Hash:  "d41d8cd98f00b204e9800998ecf8427e",
	}

	decoded, err := DecodeFileMeta(EncodeFileMeta(meta))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if decoded.Filename != meta.Filename {
		t.Errorf("Filename: %s != %s", decoded.Filename, meta.Filename)
	}
	if decoded.Size != meta.Size {
		t.Errorf("Size: %d != %d", decoded.Size, meta.Size)
	}
	if decoded.MD5Hash != meta.MD5Hash {
		t.Errorf("MD5: %s != %s", decoded.MD5Hash, meta.MD5Hash)
	}
}
