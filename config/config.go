// Package config holds the compile-time tuning constants of the engine.
package config

// SR is the sample rate the engine renders at. Decoded audio at other rates
// is resampled on the way in.
const SR = 44100

// BlockSize is the number of frames rendered per block. All realtime work
// happens in whole blocks.
const BlockSize = 512

// MaxChannels caps the channel count of any buffer, generator or bus.
const MaxChannels = 16

// BufferChunkSize is the number of frames per chunk of decoded buffer
// storage.
const BufferChunkSize = 1024 * 16

// CommandQueueDepth is the capacity of a context's command queue.
const CommandQueueDepth = 1024

// CommandsPerBlock bounds how many commands the render loop drains per
// block, capping worst-case block latency.
const CommandsPerBlock = 256

// StreamLatencyBlocks is the depth of a streaming generator's ring in
// blocks, roughly 100ms of audio.
const StreamLatencyBlocks = (SR/10 + BlockSize - 1) / BlockSize

// StreamRingFrames is the ring depth in frames.
const StreamRingFrames = StreamLatencyBlocks * BlockSize
