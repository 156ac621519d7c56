// Package schedule evaluates cron expressions.
//
// It parses and validates expressions and computes upcoming run times
// in the location of the reference time.
package schedule
