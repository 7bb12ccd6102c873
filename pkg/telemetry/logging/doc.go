// Package logging builds the process logger on log/slog.
//
// The returned *slog.Logger is what every component receives. Its handler
// adds request, job and trace identifiers from the context of each record
// and, when enabled, redacts secrets:
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//
//	ctx = logging.WithJobID(ctx, id)
//	logger.InfoContext(ctx, "job started", "api_key", key) // job_id added, key masked
//
// # Redaction
//
// Values under keys such as password, token or api_key are masked to a
// four character hint. String values and errors are scrubbed for API keys,
// bearer tokens, inline passwords, emails and Redis URL credentials.
package logging
