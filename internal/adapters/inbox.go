package adapters

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/overseer/internal/clock"
	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/domain"
	overseererrors "github.com/mrz1836/overseer/internal/errors"
	"github.com/mrz1836/overseer/internal/fsutil"
)

// maxPollBytes caps how much of the inbox one poll reads.
const maxPollBytes = 1 << 20

// inboxLine is the JSON form of an inbox entry. Plain text lines are accepted
// too.
type inboxLine struct {
	Text       string `json:"text"`
	ReceivedAt string `json:"received_at,omitempty"`
}

// FileCommandSource reads operator instructions appended to a file, one per
// line. The byte offset of the last consumed line is persisted so a restart
// neither replays nor loses instructions. A partial final line waits for the
// next poll.
type FileCommandSource struct {
	mu         sync.Mutex
	path       string
	offsetPath string
	clock      clock.Clock
	logger     zerolog.Logger
}

// NewFileCommandSource reads inbox and keeps its offset under stateDir. An
// empty inbox path yields a source that never has instructions.
func NewFileCommandSource(inbox, stateDir string, c clock.Clock, logger zerolog.Logger) *FileCommandSource {
	return &FileCommandSource{
		path:       inbox,
		offsetPath: filepath.Join(stateDir, constants.InboxOffsetFileName),
		clock:      clock.OrReal(c),
		logger:     logger,
	}
}

// Poll returns the instructions appended since the last poll, oldest first.
func (s *FileCommandSource) Poll(ctx context.Context) ([]domain.Instruction, error) {
	if s.path == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path) //nolint:gosec // G304: operator-configured inbox
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, overseererrors.Wrap(err, "open inbox")
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, overseererrors.Wrap(err, "stat inbox")
	}

	offset := s.loadOffset()
	if offset > info.Size() {
		s.logger.Info().Int64("offset", offset).Int64("size", info.Size()).Msg("inbox shrank, reading from the start")
		offset = 0
	}
	if offset == info.Size() {
		return nil, nil
	}

	buf := make([]byte, min(info.Size()-offset, maxPollBytes))
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, overseererrors.Wrap(err, "read inbox")
	}
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		if n < maxPollBytes {
			return nil, nil
		}
		return nil, s.skipOversize(f, offset, info.Size())
	}
	consumed := buf[:end+1]

	var out []domain.Instruction
	for _, raw := range bytes.Split(consumed, []byte{'\n'}) {
		if in, ok := s.parse(raw); ok {
			out = append(out, in)
		}
	}

	if err := s.saveOffset(offset + int64(len(consumed))); err != nil {
		return nil, err
	}
	return out, nil
}

// skipOversize moves the offset past a line longer than maxPollBytes that
// starts at offset. Until the line is terminated the offset stays put.
func (s *FileCommandSource) skipOversize(f io.ReaderAt, offset, size int64) error {
	start := offset + maxPollBytes
	r := bufio.NewReaderSize(io.NewSectionReader(f, start, size-start), 64<<10)
	skipped := int64(0)
	for {
		chunk, err := r.ReadSlice('\n')
		skipped += int64(len(chunk))
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return overseererrors.Wrap(err, "read inbox")
	}

	next := start + skipped
	s.logger.Warn().
		Int64("offset", offset).
		Int64("bytes", next-offset).
		Msg("skipping oversize inbox line")
	return s.saveOffset(next)
}

func (s *FileCommandSource) saveOffset(next int64) error {
	if err := fsutil.AtomicWrite(s.offsetPath, []byte(strconv.FormatInt(next, 10)), fsutil.FilePerm); err != nil {
		return overseererrors.Wrapf(overseererrors.ErrPersistence, "save inbox offset: %v", err)
	}
	return nil
}

func (s *FileCommandSource) parse(raw []byte) (domain.Instruction, bool) {
	line := strings.TrimSpace(string(raw))
	if line == "" || strings.HasPrefix(line, "#") {
		return domain.Instruction{}, false
	}

	in := domain.Instruction{Text: line, ReceivedAt: s.clock.Now()}
	if !strings.HasPrefix(line, "{") {
		return in, true
	}

	var l inboxLine
	if err := json.Unmarshal([]byte(line), &l); err != nil || strings.TrimSpace(l.Text) == "" {
		s.logger.Warn().Str("line", line).Msg("skipping malformed inbox entry")
		return domain.Instruction{}, false
	}
	in.Text = strings.TrimSpace(l.Text)
	if at, err := time.Parse(time.RFC3339, l.ReceivedAt); err == nil {
		in.ReceivedAt = at
	}
	return in, true
}

// loadOffset returns the persisted offset, or 0 when none is readable.
func (s *FileCommandSource) loadOffset() int64 {
	data, err := os.ReadFile(s.offsetPath)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || n < 0 {
		s.logger.Warn().Str("path", s.offsetPath).Msg("ignoring unreadable inbox offset")
		return 0
	}
	return n
}
