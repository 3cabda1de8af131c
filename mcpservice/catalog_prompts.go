package mcpservice

import "github.com/netra-systems/zen-sub153/mcp"

func arg(name, desc string, required bool) mcp.PromptArgument {
	return mcp.PromptArgument{Name: name, Description: desc, Required: required}
}

// BuiltinPrompts returns the shipped prompt templates.
func BuiltinPrompts() []Prompt {
	return []Prompt{
		{
			Name:        "optimize_workload",
			Description: "Plan optimizations for an AI workload",
			Category:    CategoryOptimization,
			Arguments: []mcp.PromptArgument{
				arg("workload_description", "What the workload does", true),
				arg("goals", "Optimization goals such as cost or latency", false),
				arg("constraints", "Constraints that must hold", false),
			},
			Template: "Analyze the following AI workload and propose optimizations.\n\n" +
				"Workload: {{workload_description}}\nGoals: {{goals}}\nConstraints: {{constraints}}\n\n" +
				"Provide concrete recommendations with expected impact on cost, latency and quality.",
		},
		{
			Name:        "cost_analysis",
			Description: "Break down and reduce AI spend",
			Category:    CategoryOptimization,
			Arguments: []mcp.PromptArgument{
				arg("usage_data", "Usage figures to analyze", true),
				arg("budget", "Target monthly budget", false),
			},
			Template: "Review this usage data and identify the largest cost drivers.\n\n" +
				"Usage: {{usage_data}}\nBudget: {{budget}}\n\n" +
				"List savings opportunities ranked by estimated monthly impact.",
		},
		{
			Name:        "performance_analysis",
			Description: "Diagnose latency and throughput",
			Category:    CategoryOptimization,
			Arguments: []mcp.PromptArgument{
				arg("metrics", "Observed performance metrics", true),
				arg("sla", "Service level targets", false),
			},
			Template: "Given these performance metrics, find bottlenecks and propose fixes.\n\n" +
				"Metrics: {{metrics}}\nSLA: {{sla}}",
		},
		{
			Name:        "error_diagnosis",
			Description: "Diagnose failures in an AI pipeline",
			Category:    CategoryAgents,
			Arguments: []mcp.PromptArgument{
				arg("error_message", "The observed error", true),
				arg("context", "Surrounding context or logs", false),
			},
			Template: "Diagnose the root cause of this error and suggest a remediation.\n\n" +
				"Error: {{error_message}}\nContext: {{context}}",
		},
		{
			Name:        "generate_test_data",
			Description: "Describe synthetic data to generate",
			Category:    CategorySynthetic,
			Arguments: []mcp.PromptArgument{
				arg("data_type", "Kind of data to generate", true),
				arg("count", "Number of records", false),
				arg("schema", "Record schema", false),
			},
			Template: "Generate {{count}} synthetic {{data_type}} records that follow this schema:\n{{schema}}",
		},
		{
			Name:        "create_optimization_plan",
			Description: "Build a phased optimization plan",
			Category:    CategoryOptimization,
			Arguments: []mcp.PromptArgument{
				arg("current_state", "Current architecture and spend", true),
				arg("target_state", "Desired outcome", true),
				arg("timeline", "Available time", false),
			},
			Template: "Create a phased plan to move from the current state to the target state.\n\n" +
				"Current: {{current_state}}\nTarget: {{target_state}}\nTimeline: {{timeline}}",
		},
		{
			Name:        "summarize_results",
			Description: "Summarize optimization results for stakeholders",
			Category:    CategoryOptimization,
			Arguments: []mcp.PromptArgument{
				arg("results", "Results to summarize", true),
				arg("audience", "Who will read the summary", false),
			},
			Template: "Summarize these results for {{audience}}, leading with business impact.\n\n{{results}}",
		},
	}
}
