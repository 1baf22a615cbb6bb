// Package notify provides circulation.Notifier implementations and decorators.
//
// LogNotifier and RedisNotifier deliver notices; Fanout, Deduplicating and Throttled wrap other notifiers:
//
//	redisNotifier, _ := notify.NewRedisNotifier(redisClient, notify.WithChannel("library.notices"))
//	logNotifier, _ := notify.NewLogNotifier(slog.Default())
//	notifier := notify.NewThrottled(
//		notify.NewDeduplicating(notify.NewFanout(logNotifier, redisNotifier), 24*time.Hour),
//		rate.Limit(20), 5,
//	)
package notify
