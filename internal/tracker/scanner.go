package tracker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/suiguard/suiguard/internal/metrics"
	"github.com/suiguard/suiguard/internal/protocol"
	"github.com/suiguard/suiguard/internal/suirpc"
)

// ChainReader is the slice of the Sui RPC the scanner needs.
type ChainReader interface {
	LatestCheckpoint(ctx context.Context) (uint64, error)
	CheckpointTransactions(ctx context.Context, seq uint64) ([]string, error)
	PublishedPackages(ctx context.Context, digest string) ([]suirpc.PublishedPackage, error)
}

// Scanner walks checkpoints and yields packages published by tracked
// protocols.
//
// The first Scan only records the chain head; nothing published before
// the scanner started is reported. Afterwards each Scan covers every
// checkpoint after the cursor up to the head (or MaxCheckpointsPerScan of
// them, when set) and then moves the cursor. The cursor lives in memory, so
// a restart baselines again.
type Scanner struct {
	reader   ChainReader
	registry *protocol.Registry
	maxPer   uint64
	logger   *slog.Logger

	mu        sync.Mutex
	cursor    uint64
	baselined bool
}

// NewScanner creates a scanner. maxPerScan of 0 means no cap.
func NewScanner(reader ChainReader, registry *protocol.Registry, maxPerScan uint64, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		reader:   reader,
		registry: registry,
		maxPer:   maxPerScan,
		logger:   logger.With("component", "scanner"),
	}
}

// Cursor returns the last fully scanned checkpoint and whether a baseline
// has been taken.
func (s *Scanner) Cursor() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.baselined
}

// Scan runs one pass and calls yield for each match, in chain order. Only a
// failure to read the chain head is returned; errors fetching a single
// checkpoint or transaction are logged and that item is skipped. Scan is
// not safe for concurrent use; Cursor is.
func (s *Scanner) Scan(ctx context.Context, yield func(ContractEvent)) error {
	head, err := s.reader.LatestCheckpoint(ctx)
	if err != nil {
		return err
	}

	cursor, baselined := s.Cursor()
	if !baselined {
		s.advance(head)
		s.logger.Info("scanner baselined", "checkpoint", head)
		return nil
	}
	if head <= cursor {
		return nil
	}

	end := head
	if s.maxPer > 0 && head-cursor > s.maxPer {
		end = cursor + s.maxPer
		s.logger.Info("scan capped", "from", cursor+1, "to", end, "head", head)
	}

	for seq := cursor + 1; seq <= end; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.scanCheckpoint(ctx, seq, yield)
	}

	s.advance(end)
	return nil
}

func (s *Scanner) advance(to uint64) {
	s.mu.Lock()
	s.cursor, s.baselined = to, true
	s.mu.Unlock()
	metrics.TrackerLastCheckpoint.Set(float64(to))
}

func (s *Scanner) scanCheckpoint(ctx context.Context, seq uint64, yield func(ContractEvent)) {
	digests, err := s.reader.CheckpointTransactions(ctx, seq)
	if err != nil {
		s.logger.Error("failed to fetch checkpoint", "checkpoint", seq, "error", err)
		return
	}

	found := 0
	for _, digest := range digests {
		published, err := s.reader.PublishedPackages(ctx, digest)
		if err != nil {
			s.logger.Error("failed to fetch transaction", "checkpoint", seq, "tx", digest, "error", err)
			continue
		}
		for _, p := range published {
			name := s.registry.Identify(p.PackageID, p.Modules, p.Sender)
			if name == protocol.Unknown {
				s.logger.Debug("unrecognised package", "package_id", p.PackageID)
				continue
			}
			found++
			s.logger.Info("tracked package published",
				"package_id", p.PackageID,
				"protocol", name,
				"deployer", p.Sender,
				"modules", p.Modules,
			)
			yield(eventFromPublished(p, name))
		}
	}
	s.logger.Debug("checkpoint scanned", "checkpoint", seq, "transactions", len(digests), "matches", found)
}
