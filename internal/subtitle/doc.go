// Package subtitle defines the chunk and subtitle item data model shared by
// every pipeline stage, plus SRT encoding and decoding.
//
// Items are owned by the chunk that produced them until the scheduler merges
// them into the final ordered track; after that they belong to the caller.
package subtitle
