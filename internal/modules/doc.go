// Package modules implements the pipeline module handlers: transcription,
// AI correction and summarization, thumbnail generation and composition,
// publishing, and archival. Handlers receive resolved inputs from the
// orchestrator and report their outputs as logical name to path maps.
package modules
