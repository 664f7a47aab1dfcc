// Package http provides the request/retry client every labkit operation is
// built on.
//
// A call is described by an Endpoint (method, URL, headers, body encoding),
// a body, and a Policy. The client serializes the body, sends it, parses the
// response (JSON when the content type says so, raw bytes otherwise) and
// classifies the result into an Outcome:
//
//   - OutcomeSuccess: the policy's success predicate passed.
//   - OutcomeRetryable: transport failure, or the predicate rejected the
//     response (a business rejection).
//   - OutcomeFatal: invalid request, interceptor failure, cancelled context,
//     or a transport failure on a non-idempotent call.
//
// Retries
//   - Policy.MaxAttempts bounds the number of calls (N). At most N-1 sleeps
//     happen between them.
//   - Policy.Delay is constant. There is no growth and no jitter.
//   - A retryable outcome on the last attempt becomes an *AttemptsExhaustedError that
//     carries the last response for diagnostics.
//
// Predicates
//   - Status family: Status2xx, StatusIn, StatusRange.
//   - Field family: FieldEquals, NonEmptyField, MinCount, evaluated against
//     the JSON body with buger/jsonparser path semantics ("[0]" indexes arrays).
//
// Cleanup
//   - Teardown flows call Soften so that one failed cleanup step is logged and
//     skipped instead of aborting the rest of the teardown.
package http
