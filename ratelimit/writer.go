package ratelimit

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// limitedWriter debits the data bucket before letting bytes flow to the
// wrapped writer, stalling the caller (backpressure) rather than buffering
// unbounded data when the bucket is empty.
type limitedWriter struct {
	w      io.Writer
	rl     *RateLimiter
	bucket *TokenBucket
	ctx    context.Context
	logger *zap.Logger
}

// WrapWriter returns a stream wrapper that debits bytes from the data
// bucket before permitting them to flow downstream. If no data bucket is
// configured, the stream is returned unchanged.
func (rl *RateLimiter) WrapWriter(ctx context.Context, w io.Writer, logger *zap.Logger) io.Writer {
	if rl.Data == nil {
		return w
	}
	return &limitedWriter{w: w, rl: rl, bucket: rl.Data, ctx: ctx, logger: logger}
}

// Write debits tokens for p in as many rounds as the data bucket's
// MaxQueueGrantSize requires, writing each granted chunk through before
// asking for the remainder. Any round that the bucket denies outright
// (shutdown) ends the write with whatever was flushed so far.
func (lw *limitedWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		remaining := float64(len(p) - written)
		grant := lw.bucket.RequestGrant(lw.ctx, remaining)
		lw.rl.sample("data", lw.bucket)
		if grant.Grant <= 0 {
			if lw.logger != nil {
				lw.logger.Debug("data rate limiter denied write", zap.Int("written", written), zap.Int("total", len(p)))
			}
			return written, io.ErrShortWrite
		}

		chunkLen := int(grant.Grant)
		if chunkLen > len(p)-written {
			chunkLen = len(p) - written
		}
		n, err := lw.w.Write(p[written : written+chunkLen])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
