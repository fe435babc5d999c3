// Package autarch coordinates multi-stage, AI-assisted development
// workflows. A workflow progresses through gated stages (scoping,
// researching, planning, execution, review), each stage producing an
// approval-gated artifact and each stage driven by agent sessions that may
// fan work out to parallel sub-agent sessions.
//
// The engine is built from pluggable service layers:
//
//   - registry   – resumable agent sessions and their parent/child linkage
//   - dispatch   – fan-out: one subtask and child session per task definition
//   - reconcile  – fan-in: exactly-once merge-and-resume when the last
//     sibling settles
//   - merge      – the aggregate findings report delivered to the coordinator
//   - gate       – stage transitions and artifact approval decisions
//   - runner     – workers executing queued session runs
//   - watchdog   – liveness deadlines for hung sub-agents
//
// Autarch is designed to be embedded in host applications. End-users
// typically interact with the engine via the high-level Service facade
// exposed by the root package:
//
//	srv, _ := autarch.New(autarch.WithAgent(agent), autarch.WithDiffSource(diffs))
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	flow, _ := rt.CreateWorkflow(ctx, "main", "feature/x")
//	_ = rt.StartWorkflow(ctx, flow.ID)
//
// For more details see the README and individual sub-packages.
package autarch
