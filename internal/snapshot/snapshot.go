package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"deliberation/internal/vector"
)

// Version is the snapshot format written by Write.
const Version = 1

var ErrVersion = errors.New("unsupported snapshot version")

type Header struct {
	Version    int    `json:"version"`
	Simulation string `json:"simulation,omitempty"`
	TakenAt    string `json:"taken_at"`
}

// ProjectState is the mutable part of a project.
type ProjectState struct {
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// State is everything a settlement can change: balances, completion flags and
// metric values.
type State struct {
	Header     Header                      `json:"header"`
	Characters map[string]vector.Resources `json:"characters"`
	Projects   map[string]ProjectState     `json:"projects"`
	Metrics    map[string]int              `json:"metrics"`
}

// Write encodes s as a zstd stream holding a JSON header line followed by
// the JSON body.
func Write(w io.Writer, s State) error {
	if s.Header.Version == 0 {
		s.Header.Version = Version
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)
	hb, err := json.Marshal(s.Header)
	if err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(&s); err != nil {
		enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Read decodes a stream produced by Write.
func Read(r io.Reader) (State, error) {
	var s State
	dec, err := zstd.NewReader(r)
	if err != nil {
		return s, err
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return s, fmt.Errorf("read snapshot header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return s, fmt.Errorf("decode snapshot header: %w", err)
	}
	if h.Version != Version {
		return s, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	if err := json.NewDecoder(br).Decode(&s); err != nil {
		return s, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

func WriteFile(path string, s State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadFile(path string) (State, error) {
	f, err := os.Open(path)
	if err != nil {
		return State{}, err
	}
	defer f.Close()
	return Read(f)
}
