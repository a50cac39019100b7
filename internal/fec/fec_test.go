package fec

import (
	"bytes"
	"testing"
)

func TestCRC32Deterministic(t *testing.T) {
	data := []byte("physical frame payload under test")
	if CRC32(data) != CRC32(data) {
		t.Error("CRC32 not deterministic")
	}
	if CRC32(data) == 0 {
		t.Error("CRC32 should not be 0 for non-empty data")
	}

	tweaked := append([]byte(nil), data...)
	tweaked[0] ^= 1
	if CRC32(data) == CRC32(tweaked) {
		t.Error("single-bit change left CRC32 unchanged")
	}
}

func TestCRC32AppendVerify(t *testing.T) {
	data := []byte("frame trailer integrity")

	withCRC := AppendCRC32(data)
	if len(withCRC) != len(data)+4 {
		t.Fatalf("length %d, want %d", len(withCRC), len(data)+4)
	}

	recovered, valid := VerifyCRC32(withCRC)
	if !valid {
		t.Error("CRC verification failed for valid data")
	}
	if !bytes.Equal(recovered, data) {
		t.Error("recovered data mismatch")
	}

	withCRC[5] ^= 0xFF
	if _, valid = VerifyCRC32(withCRC); valid {
		t.Error("CRC verification passed for corrupted data")
	}
}

// Default geometry must keep each shard within one COFDMTV physical
// frame's chunk payload even for the largest protocol frame.
func TestRSEncoderShardGeometry(t *testing.T) {
	rs, err := NewRSEncoder()
	if err != nil {
		t.Fatalf("create erasure coder: %v", err)
	}

	frame := make([]byte, 1032) // max protocol frame: header + 1024 payload + CRC
	for i := range frame {
		frame[i] = byte(i)
	}

	encoded, err := rs.Encode(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	totalShards := rs.DataShards() + rs.ParityShards()
	shardSize := len(encoded) / totalShards
	if len(encoded)%totalShards != 0 {
		t.Fatalf("encoded size %d not shard-aligned", len(encoded))
	}
	if shardSize > frameShardLimit {
		t.Errorf("shard size %d exceeds the physical frame limit %d", shardSize, frameShardLimit)
	}
}

func TestRSEncoderRejectsOversizedTransfer(t *testing.T) {
	rs, err := NewRSEncoder()
	if err != nil {
		t.Fatal(err)
	}
	huge := make([]byte, DefaultDataShards*frameShardLimit+1)
	if _, err := rs.Encode(huge); err == nil {
		t.Error("payload past the per-frame shard limit accepted")
	}
}

func TestRSEncoderRoundTrip(t *testing.T) {
	rs, err := NewRSEncoder()
	if err != nil {
		t.Fatalf("create erasure coder: %v", err)
	}

	frame := []byte("a protocol frame's worth of file content, RS-protected " +
		"before being fragmented into physical frames for the speaker")

	encoded, err := rs.Encode(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := rs.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded[:len(frame)], frame) {
		t.Error("decoded bytes differ from input")
	}
}

// Byte-per-shard erasure repair: zero out as many bytes as there are
// parity shards and recover them by position.
func TestRSEncoderErasureRepair(t *testing.T) {
	rs, err := NewRSEncoderCustom(10, 4)
	if err != nil {
		t.Fatalf("create erasure coder: %v", err)
	}

	data := []byte("CQ CQ DX!!") // exactly 10 bytes
	encoded, err := rs.EncodeBlock(data)
	if err != nil {
		t.Fatalf("encode block: %v", err)
	}

	corrupted := append([]byte(nil), encoded...)
	erasures := []int{2, 5, 9, 12}
	for _, idx := range erasures {
		corrupted[idx] = 0
	}

	decoded, err := rs.DecodeBlock(corrupted, erasures)
	if err != nil {
		t.Fatalf("decode block with erasures: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("repaired block = %q, want %q", decoded, data)
	}
}
