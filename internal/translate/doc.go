// Package translate fills the translated track with an LLM. Requests are
// batched per chunk; missing lines in a response shrink into a smaller
// follow-up request instead of repeating the whole batch, and whatever is
// still missing after the last attempt falls back to the original text so a
// chunk never ships half-empty.
package translate
