// Package agent drives LLM runs against a tool manager: model turn, tool
// dispatch, results back to the model, until the model answers or a tool
// takes control of the conversation.
//
// Invariants:
// - Tool calls route through toolmanager only.
// - A tool that takes control ends the loop; its output is the run result.
// - Provider failover walks auth profiles by priority, skipping cooldowns.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{
//		Manager:      manager,
//		AuthProfiles: profiles,
//		Logger:       logger,
//	})
//	result, _ := runner.Run(agent.RunParams{
//		Prompt: "summarize the incident",
//		Config: agent.DefaultRunConfig(),
//	})
//	_ = result
package agent
