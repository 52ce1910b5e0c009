// Package ppubsub contains the in-process publish-subscribe
// primitive used to deliver protocol lifecycle events
// to any number of concurrent observers.
package ppubsub
