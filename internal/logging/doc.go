// Package logging provides file-based structured logging with rotation for
// CaseGrounds. Logs are written as JSON lines to ~/.casegrounds/logs/ and,
// by default, mirrored to stderr.
package logging
