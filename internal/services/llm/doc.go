// Package llm wraps an OpenRouter-style chat completion API behind the
// structured-JSON generation contract the pipeline steps expect.
//
// Transport failures are retried here, bounded, with Retry-After and
// exponential backoff; domain validation of the returned JSON is the
// caller's business (see the pipeline retry combinator).
package llm
