// Package quality scores a session's generated content against its
// originating request.
//
// Five independent sub-scores in [0,1] fold into a weighted composite:
// keyword overlap, domain classification match, structured-data reuse,
// embedding cosine similarity, and persona-voice authenticity. A separate
// boolean checklist averages into a response-quality score and yields one
// deterministic improvement suggestion per failing check. Three threshold
// gates are judged independently; failing any makes the session invalid
// without ever escalating past a warning.
//
// The validator never returns an error. A broken sub-step is contained and
// reported as the single critical issue "validation system error" while the
// other sub-steps' results survive. Flaky external dependencies (the
// embedding provider) degrade to a neutral 0.5 instead.
package quality
