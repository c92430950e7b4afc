// Package mqtt connects the node to its broker: it subscribes to the
// command topic, feeds decoded command lines into the dispatcher
// queue, and publishes telemetry records to the telemetry topic.
//
// The connection uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect the client re-subscribes to the command topic and
// publishes a retained "online" birth message to the availability
// topic; a will message transitions it to "offline" on unexpected
// disconnects. Both protocol directions use QoS 2.
//
// The initial connection is the one startup operation allowed to be
// fatal: if the broker is unreachable for the configured timeout the
// process exits with a diagnostic. After that, outages are absorbed by
// autopaho's reconnect loop and surface only as per-publish errors,
// which abort the in-flight measure command but never the process.
package mqtt
