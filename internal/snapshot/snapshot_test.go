package snapshot

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"deliberation/internal/vector"
)

func sampleState() State {
	at := "2024-01-01T00:00:00Z"
	return State{
		Header: Header{Simulation: "test", TakenAt: at},
		Characters: map[string]vector.Resources{
			"character-1": {Time: 5, Money: 3, Labor: 2},
			"character-2": {Time: 0, Money: 0, Labor: 0},
		},
		Projects: map[string]ProjectState{
			"project-1": {Completed: true, CompletedAt: &at},
			"project-2": {},
		},
		Metrics: map[string]int{"environment": 7, "economy": 6, "welfare": 5},
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snaps", "round.zst")
	in := sampleState()
	require.NoError(t, WriteFile(path, in))

	out, err := ReadFile(path)
	require.NoError(t, err)
	in.Header.Version = Version
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderLineIsReadable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleState()))

	dec, err := zstd.NewReader(&buf)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := io.ReadAll(dec)
	require.NoError(t, err)
	line, _, ok := bytes.Cut(raw, []byte("\n"))
	require.True(t, ok)
	require.JSONEq(t, `{"version":1,"simulation":"test","taken_at":"2024-01-01T00:00:00Z"}`, string(line))
}

func TestRejectsUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	s := sampleState()
	s.Header.Version = 99
	require.NoError(t, Write(&buf, s))

	_, err := Read(&buf)
	require.ErrorIs(t, err, ErrVersion)
}

func TestRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not zstd at all")))
	require.Error(t, err)
}
