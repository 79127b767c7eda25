/*
Package health implements the HTTP liveness/readiness check each
worker binary runs against its backing LTA REST DB, and the status
tracking (consecutive-failure hysteresis) that would back a richer
probe if one were added later.

# Usage

	checker := health.NewHTTPChecker(ltaRestURL).WithStatusRange(200, 499)
	result := checker.Check(ctx)
	if !result.Healthy {
		// serve 503
	}

Status tracks a check's result over time with hysteresis, so a single
flaky response doesn't flip a worker unhealthy:

	status := health.NewStatus()
	config := health.DefaultConfig()
	status.Update(checker.Check(ctx), config)
	if !status.Healthy {
		// consecutive failures >= config.Retries
	}
*/
package health
