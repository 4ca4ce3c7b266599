// Package audio implements the PCM codec and the streaming playback
// scheduler that together form the output half of the Chronos voice
// pipeline.
//
// The codec converts between float samples, 16-bit signed PCM, raw byte
// buffers, and base64 text. The scheduler owns an output device and
// plays arbitrary-length PCM chunks back-to-back with no gaps or
// overlap, tracking whether anything is audible and supporting a hard
// stop with a short restart grace period.
//
// Sample rates are fixed by the remote model contract: 24000 Hz for
// model output (playback) and 16000 Hz for microphone capture.
package audio
