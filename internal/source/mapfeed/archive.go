package mapfeed

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/mossishahi/flightnet/internal/flight"
)

// Archiver writes raw timetable response bodies to a blob store so a
// run can be replayed or audited without re-fetching. Safe for use from
// multiple workers.
type Archiver struct {
	blobs   flight.BlobStore
	hasher  flight.Hasher
	prefix  string
	airline string
	runID   string
	logger  *zap.Logger
}

// NewArchiver creates an archiver scoped to one run.
func NewArchiver(blobs flight.BlobStore, hasher flight.Hasher, prefix, airline, runID string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		blobs:   blobs,
		hasher:  hasher,
		prefix:  prefix,
		airline: airline,
		runID:   runID,
		logger:  logger.Named("archive"),
	}
}

// Store persists one response body under
// <prefix>/<airline>/<run-id>/<origin>-<destination>-<window-start>-<hash8>.json.
// Archive failures are logged and swallowed: losing an archive copy
// must never fail the harvest itself.
func (a *Archiver) Store(ctx context.Context, pair flight.RoutePair, w flight.Window, body []byte) {
	digest := a.hasher.Hash(body)
	if len(digest) > 8 {
		digest = digest[:8]
	}
	name := fmt.Sprintf("%s-%s-%s-%s.json", pair.Origin, pair.Destination, w.FromDate(), digest)
	objectPath := path.Join(a.prefix, a.airline, a.runID, name)

	uri, err := a.blobs.PutObject(ctx, objectPath, "application/json", body)
	if err != nil {
		a.logger.Warn("archive write failed", zap.String("path", objectPath), zap.Error(err))
		return
	}
	a.logger.Debug("archived response", zap.String("uri", uri))
}
