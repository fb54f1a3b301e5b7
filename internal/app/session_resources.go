package app

import (
	"context"
	"errors"
	"log/slog"

	"pdfchat/internal/repository"
)

// SessionResources is the production SecondaryResources implementation:
// the per-session vector collection (chunk rows), the conversation
// memory (message rows) and the redis history cache.
type SessionResources struct {
	chunks   *repository.ChunkRepository
	messages *repository.MessageRepository
	cache    HistoryCache
	log      *slog.Logger
}

func NewSessionResources(
	chunks *repository.ChunkRepository,
	messages *repository.MessageRepository,
	cache HistoryCache,
	log *slog.Logger,
) *SessionResources {
	return &SessionResources{
		chunks:   chunks,
		messages: messages,
		cache:    cache,
		log:      log,
	}
}

// DeleteBySession drops all secondary state for the session. Each
// store is attempted even when an earlier one fails; the combined
// error is returned for the caller to log.
func (r *SessionResources) DeleteBySession(ctx context.Context, sessionID, userID uint) error {
	var errs []error
	if err := r.chunks.DeleteBySessionID(sessionID); err != nil {
		errs = append(errs, err)
	}
	if err := r.messages.DeleteBySessionID(sessionID); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.DeleteHistory(ctx, sessionID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	r.log.Debug("secondary resources deleted", "session_id", sessionID, "user_id", userID)
	return nil
}

// CountMessages reports the conversation length; sessions with no
// history count as zero.
func (r *SessionResources) CountMessages(ctx context.Context, sessionID uint) (int64, error) {
	return r.messages.CountBySessionID(sessionID)
}
