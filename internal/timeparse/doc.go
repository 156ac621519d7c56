// Package timeparse turns human time expressions into schedules.
//
// A small set of recurring phrases ("every day at 9am", "every monday at 10:30pm",
// "every hour", "every 6 hours") map onto five-field cron expressions. Anything else
// is handed to a natural-language date parser and resolved to a single future instant.
package timeparse
