/*
Package observability provides lifecycle hooks for monitoring the engine.

LoggingHooks audits runs and steps through slog. Combine fans one set of
events out to several hook sets, e.g. logging together with metrics.
*/
package observability
