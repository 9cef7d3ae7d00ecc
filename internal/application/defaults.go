package application

import "github.com/visably/optimo/internal/domain"

// DefaultWeights returns the bootstrap weight vector for an algorithm type.
// These serve scoring requests until the first learned or research-based
// version is promoted; GetActiveOrDefault synthesizes a version zero from
// them. Returns nil for unknown types.
func DefaultWeights(t domain.AlgorithmType) domain.Weights {
	switch t {
	case domain.AlgorithmSEO:
		return domain.Weights{
			"keywordDensity":  1.0,
			"titleTags":       0.9,
			"metaDescription": 0.7,
			"headings":        0.8,
			"altText":         0.5,
			"internalLinks":   0.6,
		}
	case domain.AlgorithmGEO:
		return domain.Weights{
			"entityClarity":      1.0,
			"citations":          0.9,
			"quotability":        0.8,
			"factDensity":        0.85,
			"conversationalTone": 0.6,
		}
	case domain.AlgorithmStructure:
		return domain.Weights{
			"headingHierarchy": 1.0,
			"schemaMarkup":     0.9,
			"listUsage":        0.6,
			"paragraphLength":  0.5,
			"tableUsage":       0.4,
		}
	case domain.AlgorithmFreshness:
		return domain.Weights{
			"lastUpdated":     1.0,
			"contentAge":      0.8,
			"updateFrequency": 0.7,
			"datedReferences": 0.5,
		}
	}
	return nil
}

// DefaultPromptTemplate returns the fallback prompt for an agent type, used
// until a template variant accumulates the minimum sample size. Returns the
// empty string for unknown types.
func DefaultPromptTemplate(agent domain.AgentType) string {
	switch agent {
	case domain.AgentChat:
		return "You are a content discoverability assistant. Answer the user's question " +
			"about improving their page's visibility in AI search results, grounded in the " +
			"page analysis below.\n\nAnalysis:\n{{analysis}}\n\nQuestion:\n{{message}}"
	case domain.AgentContentRevision:
		return "Rewrite the content below to improve its discoverability in AI search " +
			"engines. Preserve the author's voice and factual claims. Apply the listed " +
			"recommendations.\n\nRecommendations:\n{{recommendations}}\n\nContent:\n{{content}}"
	case domain.AgentSuggestions:
		return "Given the page analysis below, produce a prioritized list of concrete " +
			"improvements that would raise the page's AI-search visibility score. One " +
			"suggestion per line, most impactful first.\n\nAnalysis:\n{{analysis}}"
	}
	return ""
}
