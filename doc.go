// Package depth is a deep-research orchestration engine. It decomposes an
// open-ended question into a supervised, budget-constrained set of concurrent
// research units, iterates until an evidence-quality bar is met or the budget
// runs out, and synthesizes a cited final report.
//
// The engine is provider-agnostic: callers supply a Provider (any chat-style
// language model backend) and a ToolProvider (named, role-scoped tools such as
// web search or database query). Progress is streamed over a channel of
// ProgressEvent values; the final Result carries the report, its ordered
// references, and usage totals.
//
// Typical use:
//
//	llm := depth.WithRetry(openaicompat.NewProvider(apiKey, model, baseURL))
//	reg := depth.NewRegistry(searchTool, docTool)
//	eng, err := depth.New(llm, reg, depth.WithLogger(logger))
//	res, err := eng.Run(ctx, depth.Request{Question: "..."})
package depth
