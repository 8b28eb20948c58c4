package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zentiam/assistd/internal/answer"
	"github.com/zentiam/assistd/internal/knowledge"
	"github.com/zentiam/assistd/internal/metrics"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Knowledge *knowledge.Store
	Engine    *answer.Engine
	Metrics   *metrics.Aggregator
}

// NewMCPServer creates an MCP server exposing the knowledge base as tools:
// answering questions, searching raw material, and curating approved answers.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"assistd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("assistd — session-scoped website assistant backed by a curated knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question from the current knowledge base. Returns the reply, whether it matched, and which source produced it."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Search approved answers and document chunks by keyword overlap."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("upsert_answer",
			mcp.WithDescription("Create or replace an approved answer for a question pattern. Publishes a new knowledge snapshot."),
			mcp.WithString("pattern", mcp.Description("Question pattern the answer covers"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The reply to give"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags improving fuzzy matching")),
		),
		mcpUpsertAnswer(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"assistd://metrics",
			"Learning Metrics",
			mcp.WithResourceDescription("Answer-rate and feedback metrics for the last 7 days"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceMetrics(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		res := deps.Engine.Answer(ctx, deps.Knowledge.Current(), question)
		if res.AnswerID != "" {
			deps.Knowledge.NoteAnswerUsed(res.AnswerID)
		}

		b, err := json.Marshal(map[string]any{
			"response": res.Text,
			"matched":  res.Matched,
			"source":   res.Source,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		type searchResult struct {
			Kind  string  `json:"kind"`
			ID    string  `json:"id"`
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		}

		terms := knowledge.Terms(query)
		snap := deps.Knowledge.Current()

		var results []searchResult
		if snap != nil && len(terms) > 0 {
			for i, a := range snap.Answers {
				if score := overlap(terms, snap.AnswerTerms(i)); score > 0 {
					results = append(results, searchResult{Kind: "answer", ID: a.ID, Text: a.Answer, Score: score})
				}
			}
			for i, c := range snap.Chunks {
				if score := overlap(terms, snap.ChunkTerms(i)); score > 0 {
					results = append(results, searchResult{Kind: "chunk", ID: c.ID, Text: c.Body, Score: score})
				}
			}
		}

		sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		if len(results) > limit {
			results = results[:limit]
		}
		if results == nil {
			results = []searchResult{}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpUpsertAnswer(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pattern, err := req.RequireString("pattern")
		if err != nil {
			return mcpError("pattern is required"), nil
		}
		answerText, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}
		tags := req.GetStringSlice("tags", nil)

		version, id, err := deps.Knowledge.UpsertApprovedAnswer(pattern, answerText, tags)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to upsert answer: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored answer %s at knowledge version %d", id, version)), nil
	}
}

func mcpResourceMetrics(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		report, err := deps.Metrics.Report(7, 5, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to build report: %w", err)
		}

		b, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal report: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// overlap is the fraction of query terms present in the candidate term set.
func overlap(queryTerms, candidateTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(candidateTerms))
	for _, t := range candidateTerms {
		set[t] = struct{}{}
	}
	hits := 0
	for _, t := range queryTerms {
		if _, ok := set[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
