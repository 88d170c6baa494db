package observability

import (
	"strings"
)

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrDeploymentEnv  = "deployment.environment"
	AttrRequestID      = "request.id"
	AttrDispatchID     = "fanout.dispatch.id"
	AttrConnectionName = "db.connection.name"
	AttrBackendKind    = "db.system"
	AttrOutcome        = "fanout.outcome"
	AttrRowCount       = "fanout.row_count"
	AttrTargetCount    = "fanout.target_count"
	AttrMergeType      = "fanout.merge_type"
	AttrHTTPMethod     = "http.request.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.response.status_code"
	AttrErrorType      = "error.type"
)

// OutcomeSuccess labels a dispatch unit that returned rows.
const OutcomeSuccess = "SUCCESS"

var secretKeySubstrings = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"connection_string",
	"dsn",
	"sslkey",
}

// RedactAttributeValue masks values for known-sensitive attribute keys.
func RedactAttributeValue(key string, value string) string {
	lower := strings.ToLower(key)
	for _, needle := range secretKeySubstrings {
		if strings.Contains(lower, needle) {
			return "[REDACTED]"
		}
	}
	return value
}

// RedactOptions returns a copy of driver options with sensitive values
// masked, suitable for logs.
func RedactOptions(options map[string]string) map[string]string {
	if len(options) == 0 {
		return nil
	}
	out := make(map[string]string, len(options))
	for k, v := range options {
		out[k] = RedactAttributeValue(k, v)
	}
	return out
}
