// Package voice implements the duplex realtime voice session: it
// captures 16 kHz microphone audio, streams it to the remote model
// over a websocket, schedules the model's 24 kHz reply audio on the
// playback scheduler, and dispatches the model's createNote/updateNote
// tool calls to the note store.
//
// The Session owns the microphone and the stream exclusively while
// Open; the playback device is owned by the injected scheduler. Only
// one Session should be Open at a time.
package voice
