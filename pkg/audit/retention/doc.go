// Package retention prunes durable audit records by age and by count on a
// cron schedule.
package retention
