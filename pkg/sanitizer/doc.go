// Package sanitizer normalizes client input before validation and storage.
//
// All functions are idempotent: applying them twice yields the same result as applying
// them once. Invalid input is cleaned rather than rejected; rejecting is the validator's job.
//
// Normalization includes:
//   - Identifiers: strip control characters, trim surrounding whitespace, keep case
//   - Free text: collapse runs of whitespace into one space and trim
//   - Booking dates: UTC, truncated to whole seconds
package sanitizer
