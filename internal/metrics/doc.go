// Package metrics exposes beagle's Prometheus metrics.
//
// Metrics live on a private registry so tests and multiple instances never
// collide. Every recording method accepts a nil receiver, which lets
// components take a *Metrics without caring whether metrics are enabled.
// `beagle term --metrics-addr 127.0.0.1:9464` serves them on /metrics.
package metrics
