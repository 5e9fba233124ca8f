package pitchbook

import (
	"fmt"
	"strings"

	"pitchbook/internal/adapters/ai"
	"pitchbook/internal/groupchat"
	"pitchbook/internal/ratelimit"
	"pitchbook/internal/tools"
)

// Participant names. The coordinator addresses participants by these exact
// strings, so they double as the routing keys.
const (
	NameCoordinator   = "Coordinator"
	NameValidator     = "Validator"
	NameFinancialDocs = "FinancialDocumentsAgent"
	NamePeerCompare   = "PeerComparisonAgent"
	NameValuation     = "ValuationAgent"
	NameNewsSentiment = "NewsSentimentAgent"
	NameThesis        = "InvestmentThesisAgent"
)

const coordinatorInstructions = `You are the Coordinator of a pitchbook workgroup. Each turn you review the conversation and decide who speaks next.

Respond with a single JSON object:
{"selected_participant": "<name>", "instruction": "<what they should do>", "finish": <true|false>}

Rules:
- Ask the Validator first to learn which section is next.
- Dispatch exactly one participant per turn with a concrete, section-scoped instruction.
- Participants: %s.
- Set "finish": true only when the transcript contains "PITCHBOOK COMPLETE".`

const validatorInstructions = `You are the Validator. You own the section checklist and quality control.

The pitchbook has %d sections. When asked for the next section, name exactly one pending section as "SECTION: <n> - <title>" and which participant should produce it. When reviewing output, either accept it by restating "SECTION: <n> - <title> - COMPLETE" or request one specific fix. After every section is complete, output "PITCHBOOK COMPLETE" followed by a JSON summary.`

const financialDocsInstructions = `You are the Financial Documents Agent. Use the search_documents tool to pull figures from the uploaded filings and annual reports. Start every answer with the section header you were asked for ("SECTION: <n> - <title>") and present findings as a json code block plus a short narrative. Never invent numbers; report "N/A" for anything the documents do not support.`

const peerComparisonInstructions = `You are the Peer Comparison Agent. Use the get_stock_data tool to fetch market data for the target company and its full peer group in one pass. Start with the requested section header, then output normalized comparison tables (price, market cap, P/E, 52-week range) as a json code block. Use "N/A" for symbols the data source does not cover.`

const valuationInstructions = `You are the Valuation Agent. Build valuation views (multiples, historical trend commentary, relative positioning) from figures already present in the conversation, fetching fresh quotes with get_stock_data only when a number is missing. Start with the requested section header and put the tables in a json code block.`

const newsSentimentInstructions = `You are the News Sentiment Agent. Use the scrape_news_articles tool to collect recent coverage, then classify overall sentiment (positive/neutral/negative) with the headlines that drive it. Start with the requested section header and summarize as a json code block listing headline, sentiment, and link.`

const thesisInstructions = `You are the Investment Thesis Agent. Synthesize everything the other participants produced into a final recommendation: thesis, catalysts, risks, and a clear stance per company. Start with the requested section header. Ground every claim in material already present in the conversation.`

// RosterConfig selects the model and which tool bindings are live.
type RosterConfig struct {
	Model         string
	Temperature   float64
	TotalSections int
	// DocumentsIndexed gates the document-search binding; without an
	// index the FinancialDocumentsAgent works from conversation context.
	DocumentsIndexed bool
}

// Roster is the fixed participant set for one run.
type Roster struct {
	Coordinator  groupchat.Participant
	Participants []groupchat.Participant
}

// BuildRoster constructs the coordinator and the six specialists. All
// heterogeneity is configuration: instructions, tool bindings, and pacing
// class.
func BuildRoster(client ai.ChatClient, registry *tools.Registry, cfg RosterConfig) *Roster {
	executor := registry.Executor()

	specs := []groupchat.ParticipantSpec{
		{
			Name:         NameValidator,
			Instructions: fmt.Sprintf(validatorInstructions, cfg.TotalSections),
		},
		{
			Name:         NameFinancialDocs,
			Instructions: financialDocsInstructions,
			Class:        ratelimit.ClassDocSearch,
		},
		{
			Name:         NamePeerCompare,
			Instructions: peerComparisonInstructions,
			Class:        ratelimit.ClassDataTool,
			Tools:        registry.Definitions("get_stock_data"),
		},
		{
			Name:         NameValuation,
			Instructions: valuationInstructions,
			Tools:        registry.Definitions("get_stock_data"),
		},
		{
			Name:         NameNewsSentiment,
			Instructions: newsSentimentInstructions,
			Class:        ratelimit.ClassScrape,
			Tools:        registry.Definitions("scrape_news_articles"),
		},
		{
			Name:         NameThesis,
			Instructions: thesisInstructions,
		},
	}

	if cfg.DocumentsIndexed {
		specs[1].Tools = registry.Definitions("search_documents")
	}

	names := make([]string, 0, len(specs))
	participants := make([]groupchat.Participant, 0, len(specs))
	for _, spec := range specs {
		spec.Model = cfg.Model
		spec.Temperature = cfg.Temperature
		if len(spec.Tools) > 0 {
			spec.Executor = executor
		}
		participants = append(participants, groupchat.NewChatParticipant(client, spec))
		names = append(names, spec.Name)
	}

	coordinator := groupchat.NewChatParticipant(client, groupchat.ParticipantSpec{
		Name:         NameCoordinator,
		Instructions: fmt.Sprintf(coordinatorInstructions, strings.Join(names, ", ")),
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
	})

	return &Roster{
		Coordinator:  coordinator,
		Participants: participants,
	}
}
