// Package guard assembles the guardrails engine from configuration.
//
//	svc, err := guard.Open(ctx, cfg, guard.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	result := svc.Check(ctx, "write a quick mock of the payment API", map[string]string{"file_type": "py"})
//	if result.Blocked {
//	    // refuse to generate
//	}
//
// Triggers are counted in the store and recorded as unlabeled events in the
// supervisor; Feedback later labels them so precision, drift and health can
// be computed.
package guard
