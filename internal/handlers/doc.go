// Package handlers wires the drive state machine, the MakeMKV and drapto
// drivers, and the metadata store into the
// consumer.Handler functions the consumer loops dispatch to: scan and rip
// on the daemon, transcode and insert on the controller.
package handlers
