package simplearticle

import (
	"context"
	"log/slog"
	"time"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ArticleCreated(ctx context.Context, article *Article) error { return nil }

func (n *NoopEventSink) ArticleSaved(ctx context.Context, article *Article) error { return nil }

func (n *NoopEventSink) ArticlePublished(ctx context.Context, snapshot *PublishedSnapshot) error {
	return nil
}

func (n *NoopEventSink) ArticleUnpublished(ctx context.Context, number int64) error { return nil }

func (n *NoopEventSink) ArticleDeleted(ctx context.Context, number int64) error { return nil }

func (n *NoopEventSink) ArticleRestored(ctx context.Context, article *Article) error { return nil }

func (n *NoopEventSink) RedirectsChanged(ctx context.Context, result *RedirectCreationResult) error {
	return nil
}

// LoggingEventSink writes every event to a slog logger.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs at INFO level.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger.With("component", "events")}
}

func (l *LoggingEventSink) ArticleCreated(ctx context.Context, article *Article) error {
	l.logger.InfoContext(ctx, "article created", "article_number", article.Number, "url_path", article.URLPath)
	return nil
}

func (l *LoggingEventSink) ArticleSaved(ctx context.Context, article *Article) error {
	l.logger.InfoContext(ctx, "article saved", "article_number", article.Number, "version", article.Version)
	return nil
}

func (l *LoggingEventSink) ArticlePublished(ctx context.Context, snapshot *PublishedSnapshot) error {
	l.logger.InfoContext(ctx, "article published", "article_number", snapshot.Number,
		"version", snapshot.Version, "published_at", snapshot.PublishedAt)
	return nil
}

func (l *LoggingEventSink) ArticleUnpublished(ctx context.Context, number int64) error {
	l.logger.InfoContext(ctx, "article unpublished", "article_number", number)
	return nil
}

func (l *LoggingEventSink) ArticleDeleted(ctx context.Context, number int64) error {
	l.logger.InfoContext(ctx, "article deleted", "article_number", number)
	return nil
}

func (l *LoggingEventSink) ArticleRestored(ctx context.Context, article *Article) error {
	l.logger.InfoContext(ctx, "article restored", "article_number", article.Number, "url_path", article.URLPath)
	return nil
}

func (l *LoggingEventSink) RedirectsChanged(ctx context.Context, result *RedirectCreationResult) error {
	l.logger.InfoContext(ctx, "redirects changed",
		"succeeded", result.SuccessCount, "skipped", result.SkippedCount, "failed", len(result.Failed))
	return nil
}

// passthroughTx runs fn directly. Used when the repository offers no
// transactions of its own.
type passthroughTx struct{}

func (passthroughTx) ExecTx(ctx context.Context, fn TxFn) error { return fn(ctx) }

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, error, time.Duration) {}
func (noopMetrics) RedirectOutcome(string, int)                   {}
func (noopMetrics) ChainDepthExceeded()                           {}

// NoopTemplateProvider gives every new article an empty body.
type NoopTemplateProvider struct{}

func (NoopTemplateProvider) DefaultBody(ctx context.Context, templateID string) (string, error) {
	return "", nil
}
