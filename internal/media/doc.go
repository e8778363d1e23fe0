// Package media wraps ffprobe/ffmpeg behind the audio source contract the
// pipeline consumes: probe a file's duration, plan chunk time-ranges, and
// extract audio segments on demand by time-range so long inputs never have
// to be held in memory.
package media
