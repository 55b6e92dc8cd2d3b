package di

import (
	"FinSense/internal/services/learner"
	"FinSense/internal/services/modelmgr"
	"FinSense/internal/services/tracker"
	"FinSense/pkg/cache"
	"FinSense/pkg/config"
	applogger "FinSense/pkg/logger"
	"FinSense/pkg/queue"
)

// Toolkit is the subset of the service used by finsensectl. It shares the
// stores and model directory with the running service but starts no loops.
type Toolkit struct {
	Logger  *applogger.Logger
	Learner *learner.Learner
	Manager *modelmgr.Manager
	Tracker *tracker.Tracker
	// Jobs is nil unless the Redis queue is enabled.
	Jobs *queue.RedisQueue
}

// ProvideJobPublisher returns a publish-only queue handle for async retraining.
func ProvideJobPublisher(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisPublisher(l, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix))
}

func ProvideToolkit(
	l *applogger.Logger,
	ln *learner.Learner,
	mgr *modelmgr.Manager,
	t *tracker.Tracker,
	jobs *queue.RedisQueue,
) *Toolkit {
	return &Toolkit{Logger: l, Learner: ln, Manager: mgr, Tracker: t, Jobs: jobs}
}
