// Package testutil provides shared constants and fakes for testing across labkit.
// These constants eliminate repeated string literals in test files and ensure consistency.
package testutil

// Test Platform Identifiers
//
// These constants define the account scope used by platform and chaos tests.

const (
	// TestAPIKey is a fake platform API key. It must never appear unmasked in logs.
	TestAPIKey = "pat.test-account.0123456789"

	// TestAccountID is the platform account identifier used in request queries.
	TestAccountID = "acc-test"

	// TestOrgID is the organization identifier used in request queries.
	TestOrgID = "default"

	// TestProjectID is the project identifier used in request queries.
	TestProjectID = "lab_project"
)

// Test Participant Values
//
// These constants define the participant a lab is provisioned for.

const (
	// TestUserEmail is the participant e-mail address.
	TestUserEmail = "student@example.com"

	// TestUserPassword is the participant password.
	TestUserPassword = "S3cret!pass"

	// TestHostName is the sandbox host name.
	TestHostName = "sandbox-host"

	// TestParticipantID is the sandbox participant identifier.
	TestParticipantID = "p-1234"
)

// Test Orchestration Values
//
// These constants define the service used by load-balancer discovery tests.

const (
	// TestNamespace is the namespace of the test service.
	TestNamespace = "lab"

	// TestServiceName is the load-balanced service name.
	TestServiceName = "frontend"

	// TestServiceIP is the ingress IP the service eventually reports.
	TestServiceIP = "203.0.113.10"
)

// Test Error Messages

const (
	// TestError is a generic error message for test error scenarios.
	TestError = "test error"

	// TestConnectionRefused is the common network error message for connection failures.
	TestConnectionRefused = "connection refused"
)
