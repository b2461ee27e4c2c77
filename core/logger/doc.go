// Package logger provides structured logging attribute helpers for Go's standard
// slog package: a comprehensive set of pre-built, zero-value-safe slog.Attr
// constructors for common logging scenarios, plus federation-specific ones
// (Issuer, Subject, Anchor, ChainDepth, ChainLen, FetchEndpoint).
//
// The package has no logger constructor, handler or context extraction of its
// own: callers build a *slog.Logger with log/slog and pass these attributes to it.
//
// # Features
//
//   - Built on Go's standard slog for compatibility and performance
//   - Comprehensive attribute helpers for common logging patterns
//   - Type-safe attribute creation with nil safety
//
// # Basic Usage
//
// Build a logger with log/slog and use the helpers as attributes:
//
//	import (
//		"log/slog"
//		"os"
//
//		"github.com/openfedgo/trustchain/core/logger"
//	)
//
//	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//
//	log.Info("Server starting",
//		logger.Component("server"),
//		logger.Event("startup"),
//	)
//
// # Attribute Helpers
//
// The package provides numerous helper functions for creating common attributes:
//
//	// Error handling
//	log.Error("Operation failed",
//		logger.Error(err),
//		logger.Action("database_query"),
//		logger.Component("user_service"),
//	)
//
//	// Multiple errors
//	log.Error("Multiple failures",
//		logger.Errors(err1, err2, err3),
//		logger.RetryCount(3),
//	)
//
//	// HTTP logging
//	log.Info("Request processed",
//		logger.Method("POST"),
//		logger.Path("/api/users"),
//		logger.StatusCode(201),
//		logger.ClientIP("192.168.1.1"),
//		logger.Latency(time.Since(start)),
//		logger.BytesIn(1024),
//		logger.BytesOut(512),
//	)
//
//	// Timing and performance
//	start := time.Now()
//	// ... do work ...
//	log.Info("Task completed",
//		logger.Duration(time.Since(start)),
//		logger.Elapsed(start),
//		logger.Component("worker"),
//	)
//
//	// Identifiers and tracing
//	log.Info("Processing payment",
//		logger.RequestID("req-12345"),
//		logger.TraceID("trace-67890"),
//		logger.CorrelationID("corr-abcde"),
//		logger.ID("payment_id", paymentID),
//	)
//
// # Structured Logging Patterns
//
// Create well-structured logs for different scenarios:
//
//	// Service startup
//	log.Info("Service initialized",
//		logger.Component("auth_service"),
//		logger.Event("startup"),
//		logger.Version("v1.2.3"),
//		logger.Group("config",
//			slog.String("port", "8080"),
//			slog.String("env", "production"),
//		),
//	)
//
//	// Database operations
//	log.Debug("Executing query",
//		logger.Component("database"),
//		logger.Action("select"),
//		logger.Key("table", "users"),
//		logger.Key("query", query),
//	)
//
//	// Background jobs
//	log.Info("Job completed",
//		logger.Component("job_processor"),
//		logger.Event("job_finished"),
//		logger.Type("email_notification"),
//		logger.Result("success"),
//		logger.Duration(time.Since(jobStart)),
//		logger.Count("emails_sent", emailCount),
//	)
//
// # Error Logging Best Practices
//
// Use the error helpers for consistent error logging:
//
//	func processUser(userID string) error {
//		user, err := getUserFromDB(userID)
//		if err != nil {
//			log.Error("Failed to fetch user",
//				logger.Error(err),
//				logger.ID("user_id", userID),
//				logger.Component("user_service"),
//				logger.Action("fetch_user"),
//			)
//			return err
//		}
//
//		if err := validateUser(user); err != nil {
//			log.Warn("User validation failed",
//				logger.Error(err),
//				logger.ID("user_id", userID),
//				logger.Component("validator"),
//			)
//			return err
//		}
//
//		return nil
//	}
//
// # HTTP Request Logging
//
// Create comprehensive HTTP request logs:
//
//	func logHTTPRequest(r *http.Request, status int, duration time.Duration, bytes int64) {
//		log.Info("HTTP request processed",
//			logger.Method(r.Method),
//			logger.Path(r.URL.Path),
//			logger.StatusCode(status),
//			logger.ClientIP(getClientIP(r)),
//			logger.UserAgent(r.UserAgent()),
//			logger.Latency(duration),
//			logger.BytesOut(bytes),
//			logger.Group("headers",
//				slog.String("accept", r.Header.Get("Accept")),
//				slog.String("content_type", r.Header.Get("Content-Type")),
//			),
//		)
//	}
//
// # Performance Monitoring
//
// Log performance metrics and timing information:
//
//	func monitorOperation(name string, fn func() error) error {
//		start := time.Now()
//		log.Debug("Operation starting",
//			logger.Event("operation_start"),
//			logger.Action(name),
//		)
//
//		err := fn()
//		duration := time.Since(start)
//
//		if err != nil {
//			log.Error("Operation failed",
//				logger.Error(err),
//				logger.Action(name),
//				logger.Duration(duration),
//				logger.Result("failure"),
//			)
//		} else {
//			log.Info("Operation completed",
//				logger.Action(name),
//				logger.Duration(duration),
//				logger.Result("success"),
//			)
//		}
//
//		return err
//	}
//
// # Debugging and Diagnostics
//
// Use debugging helpers for troubleshooting:
//
//	func debugFunction() {
//		log.Debug("Debug information",
//			logger.Stack(),        // Full stack trace
//			logger.Caller(),       // Calling function info
//			logger.Component("debug"),
//		)
//	}
//
//	// Conditional debugging
//	if log.Enabled(context.Background(), slog.LevelDebug) {
//		expensiveData := generateDebugData()
//		log.Debug("Expensive debug info",
//			logger.Key("debug_data", expensiveData),
//		)
//	}
//
// # Global Logger Setup
//
// Set up a global default logger for your application with log/slog:
//
//	func initLogging() {
//		var handler slog.Handler
//
//		switch os.Getenv("APP_ENV") {
//		case "production", "staging":
//			handler = slog.NewJSONHandler(os.Stdout, nil)
//		default:
//			handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
//		}
//
//		// Set as global default
//		slog.SetDefault(slog.New(handler))
//	}
//
//	// Use anywhere in your application
//	slog.Info("Using global logger", logger.Component("global"))
//
// # Testing with Custom Output
//
// Capture logs during testing:
//
//	import (
//		"bytes"
//		"testing"
//	)
//
//	func TestLogging(t *testing.T) {
//		var buf bytes.Buffer
//		log := slog.New(slog.NewJSONHandler(&buf, nil))
//
//		log.Info("Test message", logger.Component("test"))
//
//		output := buf.String()
//		assert.Contains(t, output, "Test message")
//		assert.Contains(t, output, `"component":"test"`)
//	}
//
// # Advanced Configuration
//
// Fine-tune logger behavior with log/slog's handler options:
//
//	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
//		AddSource: true,  // Add source file info
//		Level:     slog.LevelDebug,
//		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
//			// Custom attribute processing
//			if a.Key == slog.TimeKey {
//				return slog.String("timestamp", a.Value.Time().Format(time.RFC3339))
//			}
//			return a
//		},
//	})).With(
//		slog.String("service", "myapp"),
//		logger.Version("1.0.0"),
//		slog.String("environment", "production"),
//	)
//
// # Best Practices
//
//   - Use structured logging with consistent attribute naming
//   - Include context information (request IDs, user IDs, etc.)
//   - Use appropriate log levels (Debug for development, Info for production)
//   - Log errors with sufficient context for debugging
//   - Use the attribute helpers for consistency across your application
//   - Configure different slog handlers (text, JSON) for different environments
//   - Monitor log volume and adjust levels appropriately
//   - Use groups to organize related attributes
//   - Include timing information for performance monitoring
package logger
