package logging

import "github.com/sirupsen/logrus"

// BaseFields builds the action + config path fields shared by startup logs.
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields builds the resource/upstream/cache-hit field set every
// front-door request log line carries.
func RequestFields(resource, upstream string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"resource":  resource,
		"upstream":  upstream,
		"cache_hit": cacheHit,
	}
}
