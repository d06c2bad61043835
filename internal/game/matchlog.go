package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/magefree/tcg-server-go/internal/game/mutator"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

const matchLogVersion = 1

// Checkpoint is one pause of a match: the mutations applied since the
// previous pause and the checksum of the state they lead to.
type Checkpoint struct {
	Seq       int
	Phase     rules.Phase
	Round     int
	CanResume bool
	Mutations [][]byte
	Checksum  string
}

// MatchLog records the checkpoints of a match. Replaying the mutations of
// every checkpoint on the initial state rebuilds the match.
type MatchLog struct {
	MatchID string
	Initial []byte

	mu          sync.RWMutex
	checkpoints []Checkpoint
}

// NewMatchLog starts a log from the initial state of a match.
func NewMatchLog(matchID string, initial *rules.GameState) (*MatchLog, error) {
	data, err := EncodeState(initial)
	if err != nil {
		return nil, err
	}
	return &MatchLog{MatchID: matchID, Initial: data}, nil
}

// RestoreMatchLog rebuilds a log from its stored parts. Checkpoints must be
// in sequence order.
func RestoreMatchLog(matchID string, initial []byte, checkpoints []Checkpoint) *MatchLog {
	return &MatchLog{MatchID: matchID, Initial: initial, checkpoints: slices.Clone(checkpoints)}
}

// Record appends a checkpoint for p.
func (l *MatchLog) Record(p mutator.Pause) error {
	muts := make([][]byte, 0, len(p.Mutations))
	for _, m := range p.Mutations {
		data, err := rules.EncodeMutation(m)
		if err != nil {
			return fmt.Errorf("record %s: %w", m.Type(), err)
		}
		muts = append(muts, data)
	}
	sum, err := Checksum(p.State)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checkpoints = append(l.checkpoints, Checkpoint{
		Seq:       len(l.checkpoints),
		Phase:     p.State.Phase,
		Round:     p.State.RoundNumber,
		CanResume: p.CanResume,
		Mutations: muts,
		Checksum:  sum,
	})
	return nil
}

// Size returns the number of checkpoints.
func (l *MatchLog) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.checkpoints)
}

// Checkpoints returns a copy of the recorded checkpoints.
func (l *MatchLog) Checkpoints() []Checkpoint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.checkpoints)
}

// Last returns the latest checkpoint.
func (l *MatchLog) Last() (Checkpoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return l.checkpoints[len(l.checkpoints)-1], true
}

// StateAt rebuilds the state after checkpoint index, verifying every
// checksum on the way. gd must hold the definitions the match ran with.
func (l *MatchLog) StateAt(gd *rules.GameData, index int) (*rules.GameState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.checkpoints) {
		return nil, fmt.Errorf("checkpoint %d out of range [0, %d)", index, len(l.checkpoints))
	}
	st, err := DecodeState(l.Initial, gd)
	if err != nil {
		return nil, err
	}
	for _, cp := range l.checkpoints[:index+1] {
		for i, data := range cp.Mutations {
			m, err := rules.DecodeMutation(data)
			if err != nil {
				return nil, fmt.Errorf("checkpoint %d mutation %d: %w", cp.Seq, i, err)
			}
			if st, err = rules.Apply(st, m); err != nil {
				return nil, fmt.Errorf("checkpoint %d mutation %d: %w", cp.Seq, i, err)
			}
		}
		ok, err := VerifyChecksum(st, cp.Checksum)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("checkpoint %d: checksum mismatch", cp.Seq)
		}
	}
	return st, nil
}

// Replay rebuilds the final recorded state.
func (l *MatchLog) Replay(gd *rules.GameData) (*rules.GameState, error) {
	return l.StateAt(gd, l.Size()-1)
}

type matchLogHeader struct {
	MatchID         string
	Timestamp       time.Time
	Version         int
	CheckpointCount int
	Initial         []byte
}

func matchLogPath(directory, matchID string) string {
	return filepath.Join(directory, fmt.Sprintf("%s.replay", matchID))
}

// SaveToFile writes the log as a gzipped gob stream named after the match.
func (l *MatchLog) SaveToFile(directory string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(matchLogPath(directory, l.MatchID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	encoder := gob.NewEncoder(gz)
	header := matchLogHeader{
		MatchID:         l.MatchID,
		Timestamp:       time.Now(),
		Version:         matchLogVersion,
		CheckpointCount: len(l.checkpoints),
		Initial:         l.Initial,
	}
	if err := encoder.Encode(&header); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	for i := range l.checkpoints {
		if err := encoder.Encode(&l.checkpoints[i]); err != nil {
			return fmt.Errorf("failed to encode checkpoint %d: %w", i, err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to flush replay: %w", err)
	}
	return nil
}

// LoadMatchLog reads a log written by SaveToFile.
func LoadMatchLog(directory, matchID string) (*MatchLog, error) {
	file, err := os.Open(matchLogPath(directory, matchID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	decoder := gob.NewDecoder(gz)
	var header matchLogHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	if header.Version != matchLogVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", header.Version)
	}
	l := &MatchLog{MatchID: header.MatchID, Initial: header.Initial}
	for i := 0; i < header.CheckpointCount; i++ {
		var cp Checkpoint
		if err := decoder.Decode(&cp); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint %d: %w", i, err)
		}
		l.checkpoints = append(l.checkpoints, cp)
	}
	return l, nil
}

// ReplayRecorder keeps the logs of running matches and writes finished ones
// to disk.
type ReplayRecorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	logs    map[string]*MatchLog
	saveDir string
}

// NewReplayRecorder creates a recorder saving into saveDir.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{
		logger:  logger,
		logs:    make(map[string]*MatchLog),
		saveDir: saveDir,
	}
}

// Track starts following the log of a match.
func (rr *ReplayRecorder) Track(l *MatchLog) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.logs[l.MatchID] = l
	rr.logger.Info("started replay recording", zap.String("match_id", l.MatchID))
}

// Get returns a tracked log.
func (rr *ReplayRecorder) Get(matchID string) (*MatchLog, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	l, ok := rr.logs[matchID]
	return l, ok
}

// Save writes a tracked log to disk and stops tracking it.
func (rr *ReplayRecorder) Save(matchID string) error {
	rr.mu.Lock()
	l, ok := rr.logs[matchID]
	if !ok {
		rr.mu.Unlock()
		return fmt.Errorf("no replay found for match %s", matchID)
	}
	delete(rr.logs, matchID)
	rr.mu.Unlock()

	if err := l.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}
	rr.logger.Info("saved replay to disk",
		zap.String("match_id", matchID),
		zap.Int("checkpoint_count", l.Size()),
		zap.String("directory", rr.saveDir),
	)
	return nil
}

// Load reads a saved log.
func (rr *ReplayRecorder) Load(matchID string) (*MatchLog, error) {
	l, err := LoadMatchLog(rr.saveDir, matchID)
	if err != nil {
		return nil, err
	}
	rr.logger.Info("loaded replay from disk",
		zap.String("match_id", matchID),
		zap.Int("checkpoint_count", l.Size()),
	)
	return l, nil
}

// Clear stops tracking a log without saving it.
func (rr *ReplayRecorder) Clear(matchID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.logs, matchID)
	rr.logger.Debug("cleared replay from memory", zap.String("match_id", matchID))
}
