package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/magefree/tcg-server-go/internal/game/rules"
)

// EncodeState serializes a snapshot without its game data. encoding/json
// sorts map keys, so equal snapshots encode to equal bytes.
func EncodeState(st *rules.GameState) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("encode state: nil state")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// DecodeState is the inverse of EncodeState; gd is attached to the result.
func DecodeState(data []byte, gd *rules.GameData) (*rules.GameState, error) {
	var st rules.GameState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.Data = gd
	return &st, nil
}

// Checksum is the SHA-256 of the encoded snapshot.
func Checksum(st *rules.GameState) (string, error) {
	data, err := EncodeState(st)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum reports whether st hashes to expected.
func VerifyChecksum(st *rules.GameState, expected string) (bool, error) {
	actual, err := Checksum(st)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

// ValidateRoundtrip checks that a snapshot survives EncodeState/DecodeState
// unchanged.
func ValidateRoundtrip(st *rules.GameState) error {
	data, err := EncodeState(st)
	if err != nil {
		return err
	}
	decoded, err := DecodeState(data, st.Data)
	if err != nil {
		return err
	}
	again, err := EncodeState(decoded)
	if err != nil {
		return err
	}
	if !bytes.Equal(data, again) {
		return fmt.Errorf("state changed after roundtrip")
	}
	return nil
}
