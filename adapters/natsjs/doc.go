// Package natsjs backs the durable delivery queue with a NATS JetStream
// work-queue stream and a durable pull consumer.
package natsjs
