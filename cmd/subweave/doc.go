// Command subweave generates, translates, and regenerates subtitles for
// media files through a chunked concurrent pipeline.
package main
