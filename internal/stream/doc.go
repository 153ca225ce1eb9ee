// Package stream provides the reference-counted broadcast used to share one
// producer between many consumers.
//
// A Hub runs its Producer only while at least one Subscription is open. The
// first subscriber starts it, the last Close cancels it and discards the cached
// value, so a later subscriber always triggers a fresh producer run and never
// sees a value from a torn-down session. While running, the hub replays the
// last value to new subscribers and drops values equal to the previous one.
//
// Subscription channels conflate: a slow consumer always reads the newest
// value and never blocks the producer.
package stream
