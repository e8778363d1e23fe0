// Package refine rewrites raw transcriptions with an LLM: merging fragments,
// fixing punctuation, assigning speakers, and repairing timing. Each refined
// chunk is validated against timeline anomaly detection; corrupted ranges
// trigger bounded re-generation, and whatever survives the last attempt is
// marked rather than discarded.
package refine
